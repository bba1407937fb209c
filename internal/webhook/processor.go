package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voicegw-platform/internal/aitrigger"
	"voicegw-platform/internal/auditlog"
	"voicegw-platform/internal/calls"
)

// BackfillScheduler is the transcript-recovery hook used by the call-ended
// handler.
type BackfillScheduler interface {
	Schedule(callID, orgID string, initialDelay time.Duration)
}

// Processor runs the post-acknowledgment pipeline: dedup, audit, route.
// Everything here executes after the HTTP 200 has been written, so failures
// are logged and archived, never surfaced to the provider.
type Processor struct {
	calls    calls.Store
	audit    *auditlog.Writer
	dedup    Deduplicator
	backfill BackfillScheduler
	trigger  aitrigger.Trigger
	log      *slog.Logger
	clock    func() time.Time

	backfillInitialDelay time.Duration

	wg sync.WaitGroup
}

type ProcessorConfig struct {
	Calls    calls.Store
	Audit    *auditlog.Writer
	Dedup    Deduplicator
	Backfill BackfillScheduler
	Trigger  aitrigger.Trigger
	Log      *slog.Logger

	BackfillInitialDelay time.Duration
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	trigger := cfg.Trigger
	if trigger == nil {
		trigger = aitrigger.Noop{}
	}
	delay := cfg.BackfillInitialDelay
	if delay <= 0 {
		delay = 30 * time.Second
	}
	return &Processor{
		calls:                cfg.Calls,
		audit:                cfg.Audit,
		dedup:                cfg.Dedup,
		backfill:             cfg.Backfill,
		trigger:              trigger,
		log:                  log,
		clock:                time.Now,
		backfillInitialDelay: delay,
	}
}

// ProcessAsync runs Process on its own goroutine with a panic boundary.
// Called by the receiver after the response is written; the request context
// is already dead, so processing runs under context.Background().
func (p *Processor) ProcessAsync(ev Event, raw []byte, orgID string, receivedAt time.Time) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				key, _ := EventKey(ev, receivedAt)
				err := fmt.Errorf("panic: %v", r)
				p.log.Error("webhook processing panicked", "event_id", key, "type", ev.Type, "err", err)
				p.audit.RecordError(context.Background(), key, err, raw)
			}
		}()
		p.Process(context.Background(), ev, raw, orgID, receivedAt)
	}()
}

// Drain waits for in-flight processing, bounded by ctx.
func (p *Processor) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process deduplicates, archives, and routes one event.
func (p *Processor) Process(ctx context.Context, ev Event, raw []byte, orgID string, receivedAt time.Time) {
	key, synthesized := EventKey(ev, receivedAt)
	if synthesized {
		// Synthesized keys are a known dedup gap; keep it visible.
		p.log.Warn("event id missing, synthesized dedup key", "type", ev.Type, "key", key)
	}

	if p.dedup != nil {
		dup, err := p.dedup.Seen(ctx, key)
		if err != nil {
			// Fail open: at-least-once beats dropped events when the dedup
			// store is unreachable.
			p.log.Error("dedup check failed", "event_id", key, "err", err)
		} else if dup {
			p.log.Debug("duplicate event skipped", "event_id", key, "type", ev.Type)
			return
		}
	}

	// Audit archival and routing are failure-isolated from each other.
	p.audit.RecordReceived(ctx, key, ev.Type, ev.ResolveCallID(), orgID, raw)

	if err := p.route(ctx, ev, raw, orgID); err != nil {
		p.log.Error("event handling failed", "event_id", key, "type", ev.Type, "err", err)
		p.audit.RecordError(ctx, key, err, raw)
	}
}

// Replay re-runs routing for an already-archived event. Dedup and audit
// archival are skipped: the delivery was recorded the first time around,
// and the dedup set would short-circuit the re-run. The routing error is
// returned to the caller instead of being swallowed.
func (p *Processor) Replay(ctx context.Context, ev Event, raw []byte, orgID string) error {
	return p.route(ctx, ev, raw, orgID)
}

func (p *Processor) route(ctx context.Context, ev Event, raw []byte, orgID string) error {
	switch ev.Type {
	case EventCallStarted:
		return p.handleCallStarted(ctx, ev, raw, orgID)
	case EventCallEnded, EventEndOfCallReport:
		return p.handleCallEnded(ctx, ev, raw, orgID)
	case EventTranscript, EventTranscriptComplete, EventTranscriptionComplete:
		return p.handleTranscript(ctx, ev)
	case EventAnalysisComplete:
		return p.handleAnalysisComplete(ctx, ev)
	case EventSpeechUpdate, EventStatusUpdate:
		return p.handleSpeechUpdate(ctx, ev)
	case EventRecordingReady, EventRecordingAvailable:
		return p.handleRecordingReady(ctx, ev)
	default:
		p.log.Info("unrecognized event type ignored", "type", ev.Type)
		return nil
	}
}

func (p *Processor) handleCallStarted(ctx context.Context, ev Event, raw []byte, orgID string) error {
	if ev.Call == nil || ev.Call.ID == "" {
		p.log.Warn("call-started without call id, skipped")
		return nil
	}

	status := calls.CallStatusInProgress
	startedAt := ev.Call.StartedAt
	if startedAt == nil {
		now := p.clock().UTC()
		startedAt = &now
	}
	rawStr := string(raw)
	patch := calls.Patch{
		Status:     &status,
		StartedAt:  startedAt,
		RawWebhook: &rawStr,
	}
	if orgID != "" {
		patch.OrganizationID = &orgID
	}
	if ev.Call.AssistantID != "" {
		patch.AssistantID = &ev.Call.AssistantID
	}
	if ev.Call.Customer != nil && ev.Call.Customer.Number != "" {
		patch.PhoneNumber = &ev.Call.Customer.Number
	}

	if _, err := p.calls.UpsertByProviderID(ctx, ev.Call.ID, patch); err != nil {
		return fmt.Errorf("call-started upsert: %w", err)
	}
	return nil
}

func (p *Processor) handleCallEnded(ctx context.Context, ev Event, raw []byte, orgID string) error {
	if ev.Call == nil || ev.Call.ID == "" {
		p.log.Warn("call-ended without call id, skipped", "type", ev.Type)
		return nil
	}

	status := calls.CallStatusCompleted
	endedAt := ev.Call.EndedAt
	if endedAt == nil {
		now := p.clock().UTC()
		endedAt = &now
	}
	rawStr := string(raw)
	patch := calls.Patch{
		Status:     &status,
		EndedAt:    endedAt,
		RawWebhook: &rawStr,
	}
	if ev.Call.EndedReason != "" {
		patch.EndReason = &ev.Call.EndedReason
	}
	if ev.Call.Duration != nil {
		d := int(*ev.Call.Duration)
		patch.DurationSeconds = &d
	}
	if ev.Call.Cost != nil {
		patch.Cost = ev.Call.Cost
	}
	transcript := ev.ResolveTranscript()
	if transcript != "" {
		patch.Transcript = &transcript
	}
	if ev.Call.Summary != "" {
		patch.Summary = &ev.Call.Summary
	}
	if url := ev.ResolveRecordingURL(); url != "" {
		patch.RecordingURL = &url
	}
	if a := ev.analysisFragment(); a != nil {
		applyAnalysis(&patch, a)
	}

	// Events can arrive out of order; a call-ended for an unseen call still
	// creates the row.
	updated, err := p.calls.UpdateByRef(ctx, ev.Call.ID, patch)
	if err == calls.ErrNotFound {
		updated, err = p.calls.UpsertByProviderID(ctx, ev.Call.ID, patch)
	}
	if err != nil {
		return fmt.Errorf("call-ended update: %w", err)
	}

	if transcript != "" {
		p.triggerAnalysis(ctx, updated.VapiCallID)
		return nil
	}

	if p.backfill != nil {
		org := orgID
		if org == "" {
			org = updated.OrganizationID
		}
		p.backfill.Schedule(ev.Call.ID, org, p.backfillInitialDelay)
	}
	return nil
}

func (p *Processor) handleTranscript(ctx context.Context, ev Event) error {
	transcript := ev.ResolveTranscript()
	callID := ev.ResolveCallID()
	if transcript == "" || callID == "" {
		p.log.Warn("transcript event missing text or call id, skipped")
		return nil
	}

	if _, err := p.calls.UpdateByRef(ctx, callID, calls.Patch{Transcript: &transcript}); err != nil {
		if err == calls.ErrNotFound {
			p.log.Warn("transcript for unknown call, skipped", "call_id", callID)
			return nil
		}
		return fmt.Errorf("transcript update: %w", err)
	}

	p.triggerAnalysis(ctx, callID)
	return nil
}

func (p *Processor) handleAnalysisComplete(ctx context.Context, ev Event) error {
	callID := ev.ResolveCallID()
	if ev.Analysis == nil || callID == "" {
		p.log.Warn("analysis-complete missing analysis or call id, skipped")
		return nil
	}

	var patch calls.Patch
	applyAnalysis(&patch, ev.Analysis)
	if patch.IsZero() {
		return nil
	}

	if _, err := p.calls.UpdateByRef(ctx, callID, patch); err != nil {
		if err == calls.ErrNotFound {
			p.log.Warn("analysis for unknown call, skipped", "call_id", callID)
			return nil
		}
		return fmt.Errorf("analysis update: %w", err)
	}
	return nil
}

func (p *Processor) handleSpeechUpdate(ctx context.Context, ev Event) error {
	callID := ev.ResolveCallID()
	var partial string
	if ev.Message != nil {
		partial = ev.Message.Transcript
	}
	if partial == "" || callID == "" {
		return nil
	}

	// Only the in-progress transcript field; the final transcript is owned
	// by the terminal events.
	if _, err := p.calls.UpdateByRef(ctx, callID, calls.Patch{PartialTranscript: &partial}); err != nil {
		if err == calls.ErrNotFound {
			return nil
		}
		return fmt.Errorf("speech-update: %w", err)
	}
	return nil
}

func (p *Processor) handleRecordingReady(ctx context.Context, ev Event) error {
	callID := ev.ResolveCallID()
	url := ev.ResolveRecordingURL()
	if url == "" || callID == "" {
		return nil
	}

	if _, err := p.calls.UpdateByRef(ctx, callID, calls.Patch{RecordingURL: &url}); err != nil {
		if err == calls.ErrNotFound {
			return nil
		}
		return fmt.Errorf("recording-ready: %w", err)
	}
	return nil
}

// triggerAnalysis notifies the downstream analysis service. Fire-and-forget:
// a synchronous failure is logged and dropped.
func (p *Processor) triggerAnalysis(ctx context.Context, callID string) {
	if err := p.trigger.ProcessCall(ctx, callID); err != nil {
		p.log.Warn("ai processing trigger failed", "call_id", callID, "err", err)
	}
}

func (ev Event) analysisFragment() *Analysis {
	if ev.Analysis != nil {
		return ev.Analysis
	}
	if ev.Call != nil {
		return ev.Call.Analysis
	}
	return nil
}

func applyAnalysis(patch *calls.Patch, a *Analysis) {
	if a.Sentiment != "" {
		patch.Sentiment = &a.Sentiment
	}
	if len(a.KeyPoints) > 0 {
		if b, err := json.Marshal(a.KeyPoints); err == nil {
			s := string(b)
			patch.KeyPoints = &s
		}
	}
	if a.Outcome != "" {
		patch.Outcome = &a.Outcome
	}
	if a.QualityScore != nil {
		patch.QualityScore = a.QualityScore
	}
	if len(a.Raw) > 0 {
		s := string(a.Raw)
		patch.RawAnalysis = &s
	}
}
