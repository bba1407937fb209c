package backfill

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voicegw-platform/internal/calls"
	"voicegw-platform/internal/vapi"
)

// DefaultMaxAttempts is 1 initial poll plus 5 retries.
const DefaultMaxAttempts = 6

// Scheduler polls the provider for transcripts that were missing from the
// terminating event. Each attempt is a discrete timer-driven unit of work
// with its delay doubling between attempts; the chain for a call runs to
// success or exhaustion.
//
// Attempt state lives in the Task map, not in timer closures, so tests and
// the status surface can inspect it. Nothing here is persisted: a restart
// abandons in-flight chains, which the deployment accepts for a long-lived
// single process.
type Scheduler struct {
	store   calls.Store
	clients vapi.Factory
	log     *slog.Logger

	// onTranscript fires after a fetched transcript is persisted.
	onTranscript func(callID string)

	maxAttempts    int
	attemptTimeout time.Duration

	// newTimer is swappable for tests.
	newTimer func(d time.Duration, f func()) *time.Timer

	mu     sync.Mutex
	tasks  map[string]*Task
	closed bool
	wg     sync.WaitGroup
}

// Task is the retry state for one call's transcript chain.
type Task struct {
	CallID         string
	OrganizationID string

	// Attempt counts polls made so far.
	Attempt   int
	NextDelay time.Duration

	timer *time.Timer
}

func NewScheduler(store calls.Store, clients vapi.Factory, onTranscript func(callID string), log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if onTranscript == nil {
		onTranscript = func(string) {}
	}
	return &Scheduler{
		store:          store,
		clients:        clients,
		log:            log,
		onTranscript:   onTranscript,
		maxAttempts:    DefaultMaxAttempts,
		attemptTimeout: 30 * time.Second,
		newTimer:       time.AfterFunc,
		tasks:          make(map[string]*Task),
	}
}

// Schedule starts a transcript chain for the call. A call with a chain
// already in flight is left alone; duplicate call-ended deliveries must not
// multiply polling.
func (s *Scheduler) Schedule(callID, orgID string, initialDelay time.Duration) {
	if callID == "" {
		return
	}
	if initialDelay <= 0 {
		initialDelay = time.Second
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, ok := s.tasks[callID]; ok {
		return
	}

	t := &Task{CallID: callID, OrganizationID: orgID, NextDelay: initialDelay}
	s.tasks[callID] = t
	s.arm(t, initialDelay)
	s.log.Info("transcript backfill scheduled", "call_id", callID, "delay", initialDelay)
}

// arm must be called with s.mu held.
func (s *Scheduler) arm(t *Task, delay time.Duration) {
	s.wg.Add(1)
	t.timer = s.newTimer(delay, func() {
		defer s.wg.Done()
		s.attempt(t.CallID)
	})
}

func (s *Scheduler) attempt(callID string) {
	s.mu.Lock()
	t, ok := s.tasks[callID]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	t.Attempt++
	attempt := t.Attempt
	orgID := t.OrganizationID
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.attemptTimeout)
	transcript, fetched, err := s.fetch(ctx, callID, orgID)
	cancel()

	if err != nil || transcript == "" {
		// A timed-out or failed fetch is the same as "no transcript yet".
		if err != nil {
			s.log.Warn("transcript fetch attempt failed", "call_id", callID, "attempt", attempt, "err", err)
		}
		s.reschedule(callID, attempt)
		return
	}

	patch := calls.Patch{Transcript: &transcript}
	if fetched.Summary != "" {
		patch.Summary = &fetched.Summary
	}
	if fetched.RecordingURL != "" {
		patch.RecordingURL = &fetched.RecordingURL
	}
	if _, err := s.store.UpdateByRef(context.Background(), callID, patch); err != nil {
		s.log.Error("transcript persist failed", "call_id", callID, "err", err)
		s.reschedule(callID, attempt)
		return
	}

	s.drop(callID)
	s.log.Info("transcript backfilled", "call_id", callID, "attempt", attempt)
	s.onTranscript(callID)
}

func (s *Scheduler) fetch(ctx context.Context, callID, orgID string) (string, vapi.Call, error) {
	client, err := s.clients(ctx, orgID)
	if err != nil {
		return "", vapi.Call{}, err
	}
	c, err := client.GetCall(ctx, callID)
	if err != nil {
		return "", vapi.Call{}, err
	}
	if !c.HasTranscript() {
		return "", c, nil
	}
	return c.Transcript, c, nil
}

func (s *Scheduler) reschedule(callID string, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[callID]
	if !ok || s.closed {
		return
	}
	if attempt >= s.maxAttempts {
		delete(s.tasks, callID)
		// Exhaustion is a terminal, accepted outcome; log, don't escalate.
		s.log.Warn("transcript backfill exhausted", "call_id", callID, "attempts", attempt)
		return
	}
	t.NextDelay *= 2
	s.arm(t, t.NextDelay)
}

func (s *Scheduler) drop(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, callID)
}

// Pending returns a snapshot of in-flight chains.
func (s *Scheduler) Pending() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, Task{
			CallID:         t.CallID,
			OrganizationID: t.OrganizationID,
			Attempt:        t.Attempt,
			NextDelay:      t.NextDelay,
		})
	}
	return out
}

// Stop cancels pending timers and waits for running attempts to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	for _, t := range s.tasks {
		if t.timer != nil && t.timer.Stop() {
			s.wg.Done()
		}
	}
	s.tasks = make(map[string]*Task)
	s.mu.Unlock()
	s.wg.Wait()
}
