// Package scheduler defers fire-and-forget jobs off the request path.
package scheduler

import (
	"log/slog"
	"sync"
	"time"
)

// TimerScheduler runs jobs after a delay using plain timers. Pending jobs are
// dropped on Stop; everything scheduled here must be safe to lose on restart.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	stopped bool
	logger  *slog.Logger
}

func NewTimerScheduler(logger *slog.Logger) *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[*time.Timer]struct{}),
		logger: logger,
	}
}

func (s *TimerScheduler) RunAfter(delay time.Duration, job func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, timer)
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled job panicked", "panic", r)
			}
		}()
		job()
	})
	s.timers[timer] = struct{}{}
}

// Stop cancels all pending jobs.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
}

// Immediate runs jobs synchronously, ignoring the delay. Test use only.
type Immediate struct{}

func (Immediate) RunAfter(_ time.Duration, job func()) { job() }
