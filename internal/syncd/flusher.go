package syncd

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// FlushFunc re-syncs every record still marked unsynced
type FlushFunc func() error

// Flusher periodically drains unsynced records, the app-level counterpart to
// the per-mutation debounce. A record that failed to sync is retried here at
// the latest, so offline bursts eventually converge without user action.
type Flusher struct {
	scheduler *gocron.Scheduler
	logger    *zap.Logger
}

// NewFlusher schedule flush to run every interval
func NewFlusher(interval time.Duration, flush FlushFunc, logger *zap.Logger) (*Flusher, error) {
	s := gocron.NewScheduler(time.UTC)
	_, err := s.Every(interval).Do(func() {
		if err := flush(); err != nil {
			logger.Warn("Background flush failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return &Flusher{scheduler: s, logger: logger}, nil
}

// Start begin running in the background
func (f *Flusher) Start() {
	f.scheduler.StartAsync()
}

// Stop terminate the periodic flush
func (f *Flusher) Stop() {
	f.scheduler.Stop()
}
