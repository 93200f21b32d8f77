// Package scheduler runs periodic housekeeping for the video service.
package scheduler

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/drewmudry/visium-api/tasks"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// InFlightChecker tells the janitor which tasks still own their scratch files.
type InFlightChecker interface {
	InFlight(id string) bool
}

// Janitor removes scratch leftovers (for example from a crash mid-render) and,
// when a retention is configured, expires finished tasks and their videos.
type Janitor struct {
	Registry      tasks.Registry
	Tasks         InFlightChecker
	ScratchDir    string
	VideoDir      string
	ScratchMaxAge time.Duration
	Retention     time.Duration // zero keeps tasks for the life of the process
	Logger        *zap.Logger

	now  func() time.Time
	cron *cron.Cron
}

// NewJanitor creates a janitor. Scratch entries younger than an hour are left alone.
func NewJanitor(registry tasks.Registry, inFlight InFlightChecker, scratchDir, videoDir string, retention time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		Registry:      registry,
		Tasks:         inFlight,
		ScratchDir:    scratchDir,
		VideoDir:      videoDir,
		ScratchMaxAge: time.Hour,
		Retention:     retention,
		Logger:        logger,
		now:           time.Now,
	}
}

// Start schedules RunOnce using a cron spec such as "@every 10m".
func (j *Janitor) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, j.RunOnce); err != nil {
		return err
	}
	j.cron = c
	c.Start()
	j.Logger.Info("janitor scheduled", zap.String("schedule", schedule), zap.Duration("retention", j.Retention))
	return nil
}

// Stop halts the schedule; the returned context is done once a running sweep finishes.
func (j *Janitor) Stop() context.Context {
	if j.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return j.cron.Stop()
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce() {
	removed := j.SweepScratch()
	evicted := j.EvictExpired()
	if removed > 0 || evicted > 0 {
		j.Logger.Info("janitor sweep finished", zap.Int("scratch_removed", removed), zap.Int("tasks_evicted", evicted))
	}
}

// SweepScratch deletes stale scratch scripts and media directories that no
// running task owns, and returns how many entries it removed.
func (j *Janitor) SweepScratch() int {
	entries, err := os.ReadDir(j.ScratchDir)
	if err != nil {
		j.Logger.Warn("read scratch dir", zap.String("dir", j.ScratchDir), zap.Error(err))
		return 0
	}
	cutoff := j.now().Add(-j.ScratchMaxAge)
	removed := 0
	for _, entry := range entries {
		id := strings.TrimSuffix(entry.Name(), ".py")
		if j.Tasks != nil && j.Tasks.InFlight(id) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.ScratchDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			j.Logger.Warn("remove stale scratch entry", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}

// EvictExpired drops finished tasks older than the retention along with their
// videos, and returns how many tasks were evicted.
func (j *Janitor) EvictExpired() int {
	if j.Retention <= 0 {
		return 0
	}
	ids := j.Registry.EvictTerminalBefore(j.now().Add(-j.Retention))
	for _, id := range ids {
		path := filepath.Join(j.VideoDir, id+".mp4")
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			j.Logger.Warn("remove expired video", zap.String("task_id", id), zap.Error(err))
		}
	}
	return len(ids)
}
