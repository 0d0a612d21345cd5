package refresh

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Tier of a refresh job.
type Tier int

const (
	Initial Tier = iota
	Steady
)

func (t Tier) String() string {
	if t == Initial {
		return "initial"
	}
	return "steady"
}

// Job is the schedule of one device.
type Job struct {
	DeviceID string    `json:"device_id"`
	NextDue  time.Time `json:"next_due"`
	Tier     Tier      `json:"tier"`
}

// Config holds scheduling intervals.
type Config struct {
	InitialDelay time.Duration // first pass after attach, default 2m
	Interval     time.Duration // steady-state period, default 6h
}

func (c Config) withDefaults() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Minute
	}
	if c.Interval <= 0 {
		c.Interval = 6 * time.Hour
	}
	return c
}

// PassFunc runs one refresh pass for a device.
type PassFunc func(ctx context.Context, deviceID string) Report

type jobEntry struct {
	job    Job
	cancel context.CancelFunc
	gen    uint64
}

// Scheduler runs one timer-driven job per device.
type Scheduler struct {
	cfg    Config
	pass   PassFunc
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]*jobEntry
	gen  uint64
	wg   sync.WaitGroup
}

// NewScheduler creates a scheduler. Nothing runs until Schedule is called.
func NewScheduler(cfg Config, pass PassFunc, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:    cfg.withDefaults(),
		pass:   pass,
		logger: logger.With("component", "refresh"),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*jobEntry),
	}
}

// Schedule starts (or restarts) the job for a device: one pass after the
// initial delay, then one every interval.
func (s *Scheduler) Schedule(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if prev, ok := s.jobs[deviceID]; ok {
		prev.cancel()
	}
	s.gen++
	ctx, cancel := context.WithCancel(s.ctx)
	e := &jobEntry{
		job:    Job{DeviceID: deviceID, NextDue: time.Now().Add(s.cfg.InitialDelay), Tier: Initial},
		cancel: cancel,
		gen:    s.gen,
	}
	s.jobs[deviceID] = e
	s.wg.Add(1)
	go s.run(ctx, deviceID, e.gen)
}

func (s *Scheduler) run(ctx context.Context, deviceID string, gen uint64) {
	defer func() {
		s.mu.Lock()
		if e, ok := s.jobs[deviceID]; ok && e.gen == gen {
			delete(s.jobs, deviceID)
		}
		s.mu.Unlock()
		s.wg.Done()
	}()

	delay := s.cfg.InitialDelay
	for {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}

		r := s.runPass(ctx, deviceID)
		if ctx.Err() != nil {
			return
		}
		s.logger.Debug("refresh pass", "device", deviceID,
			"attempted", r.Attempted, "updated", r.Updated, "skipped", r.Skipped)

		delay = s.cfg.Interval
		s.mu.Lock()
		if e, ok := s.jobs[deviceID]; ok && e.gen == gen {
			e.job.Tier = Steady
			e.job.NextDue = time.Now().Add(delay)
		}
		s.mu.Unlock()
	}
}

// runPass isolates a panicking pass so the job keeps its schedule.
func (s *Scheduler) runPass(ctx context.Context, deviceID string) (r Report) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("refresh pass panic", "device", deviceID, "panic", rec)
		}
	}()
	return s.pass(ctx, deviceID)
}

// Cancel stops a device's job. Safe to call for unknown or already
// cancelled devices.
func (s *Scheduler) Cancel(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.jobs[deviceID]; ok {
		e.cancel()
		delete(s.jobs, deviceID)
	}
}

// Job returns the schedule of one device.
func (s *Scheduler) Job(deviceID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[deviceID]
	if !ok {
		return Job{}, false
	}
	return e.job, true
}

// Jobs returns the current schedule, ordered by device id.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.job)
	}
	slices.SortFunc(out, func(a, b Job) int { return strings.Compare(a.DeviceID, b.DeviceID) })
	return out
}

// Stop cancels every job and waits for running passes to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.jobs = make(map[string]*jobEntry)
	s.mu.Unlock()
	s.wg.Wait()
}
