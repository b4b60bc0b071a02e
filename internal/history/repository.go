package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kapu/lcstudy-go/internal/domain"
)

// Repository is an append-only log of completed games backed by a single
// JSON array file. Writes rewrite the whole file; the log stays small
// enough that this is fine.
type Repository struct {
	path string
	mu   sync.Mutex
}

func NewRepository(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &Repository{path: path}, nil
}

func (r *Repository) Append(entry domain.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.load()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	return r.save(entries)
}

func (r *Repository) All() ([]domain.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

func (r *Repository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save([]domain.HistoryEntry{})
}

// Stats summarizes the log for the stats endpoint.
type Stats struct {
	TotalGames     int     `json:"total_games"`
	AverageRetries float64 `json:"average_retries"`
	AverageMoves   float64 `json:"average_moves"`
	CompletionRate float64 `json:"completion_rate"`
}

func (r *Repository) Statistics() (Stats, error) {
	entries, err := r.All()
	if err != nil {
		return Stats{}, err
	}
	if len(entries) == 0 {
		return Stats{}, nil
	}
	var retries, moves float64
	completed := 0
	for _, e := range entries {
		retries += e.AverageRetries
		moves += float64(e.TotalMoves)
		if e.Result == string(domain.ResultFinished) {
			completed++
		}
	}
	n := float64(len(entries))
	return Stats{
		TotalGames:     len(entries),
		AverageRetries: retries / n,
		AverageMoves:   moves / n,
		CompletionRate: float64(completed) / n * 100.0,
	}, nil
}

func (r *Repository) load() ([]domain.HistoryEntry, error) {
	raw, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return []domain.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var entries []domain.HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse history: %w", err)
	}
	return entries, nil
}

func (r *Repository) save(entries []domain.HistoryEntry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.WriteFile(r.path, raw, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
