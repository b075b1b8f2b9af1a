// Package cleanup enforces retention: old completed runs are pruned from
// the in-memory registries and expired report files are removed from disk.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warbandhq/warband/pkg/config"
)

// Pruner removes completed entries that ended before olderThan, keeping at
// least keep entries. Implemented by the run and suite coordinators.
type Pruner interface {
	PruneCompleted(olderThan time.Time, keep int) int
}

// Service periodically applies the retention policy. All operations are
// idempotent.
type Service struct {
	cfg     *config.RetentionConfig
	pruners []Pruner
	logger  *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service over the given registries.
func NewService(cfg *config.RetentionConfig, pruners ...Pruner) *Service {
	return &Service{
		cfg:     cfg,
		pruners: pruners,
		logger:  slog.Default().With("component", "cleanup"),
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Cleanup service started",
		"window", s.cfg.Window,
		"keep_count", s.cfg.KeepCount,
		"interval", s.cfg.Interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce applies the retention policy a single time. Exported so tests and
// operators can trigger a pass directly.
func (s *Service) RunOnce() {
	cutoff := time.Now().Add(-s.cfg.Window)

	pruned := 0
	for _, p := range s.pruners {
		pruned += p.PruneCompleted(cutoff, s.cfg.KeepCount)
	}
	if pruned > 0 {
		s.logger.Info("Retention: pruned completed runs", "count", pruned)
	}

	removed := s.pruneReportFiles(cutoff)
	if removed > 0 {
		s.logger.Info("Retention: removed expired report files", "count", removed)
	}
}

// pruneReportFiles removes report files older than the cutoff from the
// reports directory. A missing directory means no reports were ever
// written.
func (s *Service) pruneReportFiles(cutoff time.Time) int {
	if s.cfg.ReportsDir == "" {
		return 0
	}
	entries, err := os.ReadDir(s.cfg.ReportsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("Retention: failed to read reports directory",
				"dir", s.cfg.ReportsDir, "error", err)
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !isReportFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.cfg.ReportsDir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Error("Retention: failed to remove report file",
				"path", path, "error", err)
			continue
		}
		removed++
	}
	return removed
}

func isReportFile(name string) bool {
	return strings.HasSuffix(name, ".txt") || strings.HasSuffix(name, ".json")
}
