package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var ErrStopped = errors.New("scheduler is stopped")

// Scheduler runs periodic sweeps on a cron and one-shot timers keyed by name.
// Scheduling a one-shot under an existing key replaces the pending timer.
type Scheduler struct {
	logger  *logrus.Logger
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func New(logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		logger:  logger,
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		entries: make(map[string]cron.EntryID),
		timers:  make(map[string]*time.Timer),
	}
}

// Every registers fn to run every interval under name, replacing any job
// previously registered with that name.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
	}
	id, err := s.cron.AddFunc("@every "+interval.String(), fn)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	s.entries[name] = id
	return nil
}

func (s *Scheduler) After(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.timers[key]; ok && t.Stop() {
		s.wg.Done()
	}
	s.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.timers[key] == timer {
			delete(s.timers, key)
		}
		s.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithField("key", key).Errorf("scheduled task panicked: %v", r)
			}
		}()
		fn()
	})
	s.timers[key] = timer
}

// Cancel stops a pending one-shot. It reports whether a timer was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[key]
	if !ok {
		return false
	}
	delete(s.timers, key)
	if t.Stop() {
		s.wg.Done()
		return true
	}
	return false
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels pending one-shots and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for key, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, key)
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.wg.Wait()
}
