package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig holds every runtime knob for the study server and the
// companion commands. Values resolve in three layers: built-in defaults,
// an optional YAML file, then LCSTUDY_* environment overrides.
type AppConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	DataDir     string `yaml:"data_dir"`
	SeedsDir    string `yaml:"seeds_dir"`
	WeightsDir  string `yaml:"weights_dir"`
	HistoryFile string `yaml:"history_file"`

	Lc0Path  string `yaml:"lc0_path"`
	RedisURL string `yaml:"redis_url"`

	SessionTTLSec    int `yaml:"session_ttl_sec"`
	SweepIntervalSec int `yaml:"sweep_interval_sec"`

	MaxSeedsPerLevel int `yaml:"max_seeds_per_level"`
	SeedgenIdleSec   int `yaml:"seedgen_idle_sec"`

	EngineNodes          int `yaml:"engine_nodes"`
	EngineMoveTimeMillis int `yaml:"engine_move_time_ms"`
	EngineThreads        int `yaml:"engine_threads"`

	PracticeLevels []int `yaml:"practice_levels"`
}

// Load resolves the configuration. A config file is read only when
// LCSTUDY_CONFIG points at one; a missing default file is not an error.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("LCSTUDY_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if cfg.SeedsDir == "" {
		cfg.SeedsDir = filepath.Join(cfg.DataDir, "seeds")
	}
	if cfg.WeightsDir == "" {
		cfg.WeightsDir = filepath.Join(cfg.DataDir, "weights")
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = filepath.Join(cfg.DataDir, "history.json")
	}
	if len(cfg.PracticeLevels) == 0 {
		cfg.PracticeLevels = []int{1100, 1300, 1500, 1700, 1900, 2200}
	}
	return cfg, nil
}

func defaults() *AppConfig {
	return &AppConfig{
		ListenAddr:           ":8729",
		DataDir:              "data",
		SessionTTLSec:        7200,
		SweepIntervalSec:     300,
		MaxSeedsPerLevel:     20,
		SeedgenIdleSec:       60,
		EngineNodes:          1,
		EngineMoveTimeMillis: 0,
		EngineThreads:        1,
	}
}

func (c *AppConfig) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	setStr := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}

	setStr("LCSTUDY_LISTEN_ADDR", &c.ListenAddr)
	setStr("LCSTUDY_DATA_DIR", &c.DataDir)
	setStr("LCSTUDY_SEEDS_DIR", &c.SeedsDir)
	setStr("LCSTUDY_WEIGHTS_DIR", &c.WeightsDir)
	setStr("LCSTUDY_HISTORY_FILE", &c.HistoryFile)
	setStr("LCSTUDY_LC0_PATH", &c.Lc0Path)
	setStr("LCSTUDY_REDIS_URL", &c.RedisURL)

	setInt("LCSTUDY_SESSION_TTL", &c.SessionTTLSec)
	setInt("LCSTUDY_SWEEP_INTERVAL", &c.SweepIntervalSec)
	setInt("LCSTUDY_MAX_SEEDS", &c.MaxSeedsPerLevel)
	setInt("LCSTUDY_SEEDGEN_IDLE", &c.SeedgenIdleSec)
	setInt("LCSTUDY_ENGINE_NODES", &c.EngineNodes)
	setInt("LCSTUDY_ENGINE_MOVETIME_MS", &c.EngineMoveTimeMillis)
	setInt("LCSTUDY_ENGINE_THREADS", &c.EngineThreads)

	if v := strings.TrimSpace(os.Getenv("LCSTUDY_PRACTICE_LEVELS")); v != "" {
		var levels []int
		for _, p := range strings.Split(v, ",") {
			s := strings.TrimSpace(p)
			if s == "" {
				continue
			}
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				levels = append(levels, n)
			}
		}
		if len(levels) > 0 {
			c.PracticeLevels = levels
		}
	}
}
