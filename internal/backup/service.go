package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Service takes snapshots on a fixed interval.
type Service struct {
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	mu   sync.Mutex // serializes snapshots
	last time.Time
}

// NewService validates cfg, fills defaults and creates the snapshot directory.
func NewService(cfg Config, logger *log.Logger) (*Service, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("backup: database path is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("backup: directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Retention == (RetentionPolicy{}) {
		cfg.Retention = DefaultRetention()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("backup: failed to create directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{cfg: cfg, logger: logger.With("component", "backup"), now: time.Now}, nil
}

// Run snapshots every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.Info("snapshots scheduled", "interval", s.cfg.Interval, "dir", s.cfg.Dir)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.BackupNow(ctx)
			if err != nil {
				s.logger.Error("snapshot failed", "err", err)
				continue
			}
			s.logger.Info("snapshot written",
				"path", result.Path,
				"bytes", result.Size,
				"duration", result.Duration,
				"verified", result.Verified,
				"pruned", result.Pruned)
		}
	}
}

// BackupNow writes one snapshot, verifies it when configured and applies
// retention. A snapshot that fails verification is removed.
func (s *Service) BackupNow(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	if _, err := os.Stat(s.cfg.DBPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	path := filepath.Join(s.cfg.Dir, snapshotName(start))
	if err := snapshotSQLite(ctx, s.cfg.DBPath, path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	result := &Result{Path: path, Size: info.Size()}

	if s.cfg.Verify {
		if err := verifySnapshot(ctx, path); err != nil {
			_ = os.Remove(path)
			return nil, err
		}
		result.Verified = true
	}

	pruned, err := applyRetention(s.cfg.Dir, s.cfg.Retention, s.now())
	if err != nil {
		s.logger.Warn("retention incomplete", "err", err)
	}
	result.Pruned = pruned
	result.Duration = s.now().Sub(start)
	s.last = start
	return result, nil
}

// LastBackup returns when the last successful snapshot started.
func (s *Service) LastBackup() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
