package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appcfg "github.com/kapu/lcstudy-go/internal/config"
	"github.com/kapu/lcstudy-go/internal/engine"
	"github.com/kapu/lcstudy-go/internal/game"
	"github.com/kapu/lcstudy-go/internal/history"
	"github.com/kapu/lcstudy-go/internal/install"
	"github.com/kapu/lcstudy-go/internal/obslog"
	"github.com/kapu/lcstudy-go/internal/script"
	"github.com/kapu/lcstudy-go/internal/seedgen"
	"github.com/kapu/lcstudy-go/internal/server"
	"github.com/kapu/lcstudy-go/internal/session"
)

func main() {
	root := &cobra.Command{
		Use:           "lcstudy",
		Short:         "Guess-the-move chess training against precomputed Leela games",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), seedgenCmd(), historyCmd(), installCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup() (*appcfg.AppConfig, *zap.Logger, error) {
	cfg, err := appcfg.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		return nil, nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, obslog.L(), nil
}

// userGamesDir is where the seed generator drops finished games. Scripts
// in this directory are deleted from disk once consumed; bundled seeds
// under SeedsDir are not.
func userGamesDir(cfg *appcfg.AppConfig) string {
	return filepath.Join(cfg.DataDir, "games")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newStore(cfg *appcfg.AppConfig, log *zap.Logger) (session.Store, error) {
	if cfg.RedisURL == "" {
		return session.NewMemoryStore(), nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	log.Info("using redis session store", zap.String("addr", opt.Addr))
	return session.NewRedisStore(redis.NewClient(opt), time.Duration(cfg.SessionTTLSec)*time.Second), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the study HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			scripts := script.NewRepository(cfg.SeedsDir, userGamesDir(cfg), log.Named("scripts"))
			hist, err := history.NewRepository(cfg.HistoryFile)
			if err != nil {
				return err
			}
			store, err := newStore(cfg, log)
			if err != nil {
				return err
			}

			ttl := time.Duration(cfg.SessionTTLSec) * time.Second
			svc := game.NewService(store, scripts, hist, ttl, log.Named("game"))

			ctx, stop := signalContext()
			defer stop()

			sweep := session.NewSweeper(store, ttl, time.Duration(cfg.SweepIntervalSec)*time.Second, log.Named("sweeper"))
			go sweep.Run(ctx)

			srv := server.New(cfg.ListenAddr, svc, hist, scripts, cfg.PracticeLevels, log.Named("http"))
			log.Info("lcstudy serving",
				zap.String("addr", cfg.ListenAddr),
				zap.Int("scripts", scripts.Count()))
			return srv.ListenAndServe(ctx)
		},
	}
}

func seedgenCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "seedgen",
		Short: "Generate precomputed training games in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			lc0 := cfg.Lc0Path
			if lc0 == "" {
				lc0, err = install.FindLc0()
				if err != nil {
					return fmt.Errorf("lc0 not found, run `lcstudy install` first: %w", err)
				}
			}
			eng, err := engine.New(engine.Config{
				Lc0Path:    lc0,
				WeightsDir: cfg.WeightsDir,
				Threads:    cfg.EngineThreads,
			}, log.Named("engine"))
			if err != nil {
				return err
			}
			defer eng.Close() //nolint:errcheck

			gen := seedgen.New(seedgen.Config{
				OutDir:      userGamesDir(cfg),
				Levels:      cfg.PracticeLevels,
				MaxSeeds:    cfg.MaxSeedsPerLevel,
				IdleWait:    time.Duration(cfg.SeedgenIdleSec) * time.Second,
				StrongNodes: cfg.EngineNodes,
			}, eng, log.Named("seedgen"))

			ctx, stop := signalContext()
			defer stop()

			if once {
				level := cfg.PracticeLevels[0]
				path, err := gen.GenerateOne(ctx, level, 1.0)
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			}
			gen.Run(ctx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "generate a single game and exit")
	return cmd
}

func historyCmd() *cobra.Command {
	var statsOnly bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the completed-game log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			hist, err := history.NewRepository(cfg.HistoryFile)
			if err != nil {
				return err
			}
			stats, err := hist.Statistics()
			if err != nil {
				return err
			}
			if !statsOnly {
				entries, err := hist.All()
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Printf("%s  level=%d  moves=%d  avg_retries=%.2f  %s\n",
						e.Date, e.PracticeLevel, e.TotalMoves, e.AverageRetries, e.Result)
				}
			}
			fmt.Printf("games=%d avg_retries=%.2f avg_moves=%.1f completion=%.0f%%\n",
				stats.TotalGames, stats.AverageRetries, stats.AverageMoves, stats.CompletionRate)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statsOnly, "stats", false, "print only the summary line")
	return cmd
}

func installCmd() *cobra.Command {
	var levels []int
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Download the Leela and Maia network weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			if _, err := install.FindLc0(); err != nil {
				log.Warn("lc0 binary not found on PATH, install it separately", zap.Error(err))
			}

			ins := install.New(cfg.WeightsDir, log.Named("install"))
			if path, err := ins.InstallBestNetwork(); err != nil {
				log.Warn("best network download failed", zap.Error(err))
			} else {
				fmt.Println(path)
			}

			if len(levels) == 0 {
				for _, p := range ins.InstallMaiaAll() {
					fmt.Println(p)
				}
				return nil
			}
			for _, level := range levels {
				path, err := ins.InstallMaia(level)
				if err != nil {
					log.Warn("maia download failed", zap.Int("level", level), zap.Error(err))
					continue
				}
				fmt.Println(path)
			}
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&levels, "levels", nil, "maia levels to install (default: all supported)")
	return cmd
}
