package webhook

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"voicegw-platform/internal/auditlog"
	"voicegw-platform/internal/calls"
)

type fakeBackfill struct {
	mu        sync.Mutex
	scheduled []scheduledBackfill
}

type scheduledBackfill struct {
	callID string
	orgID  string
	delay  time.Duration
}

func (f *fakeBackfill) Schedule(callID, orgID string, initialDelay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, scheduledBackfill{callID, orgID, initialDelay})
}

type countingTrigger struct {
	mu      sync.Mutex
	callIDs []string
}

func (c *countingTrigger) ProcessCall(ctx context.Context, callID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callIDs = append(c.callIDs, callID)
	return nil
}

type processorFixture struct {
	calls    *calls.MemoryRepo
	audit    *auditlog.MemoryRepo
	backfill *fakeBackfill
	trigger  *countingTrigger
	proc     *Processor
}

func newProcessorFixture() *processorFixture {
	f := &processorFixture{
		calls:    calls.NewMemoryRepo(),
		audit:    auditlog.NewMemoryRepo(),
		backfill: &fakeBackfill{},
		trigger:  &countingTrigger{},
	}
	f.proc = NewProcessor(ProcessorConfig{
		Calls:                f.calls,
		Audit:                auditlog.NewWriter(f.audit, nil),
		Dedup:                NewMemoryDeduplicator(),
		Backfill:             f.backfill,
		Trigger:              f.trigger,
		BackfillInitialDelay: 30 * time.Second,
	})
	return f
}

func (f *processorFixture) entriesOfType(typ auditlog.EntryType) []auditlog.Entry {
	var out []auditlog.Entry
	for _, e := range f.audit.Entries() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestProcess_DuplicateEventHandledOnce(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()
	raw := []byte(`{"type":"call-started","id":"evt-1","call":{"id":"c-1"}}`)
	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatal(err)
	}

	at := time.Now()
	f.proc.Process(ctx, ev, raw, "org-1", at)
	f.proc.Process(ctx, ev, raw, "org-1", at)

	if got := f.entriesOfType(auditlog.EntryTypeReceived); len(got) != 1 {
		t.Fatalf("duplicate delivery archived %d times, want 1", len(got))
	}
}

func TestProcess_CallStarted(t *testing.T) {
	f := newProcessorFixture()
	raw := []byte(`{"type":"call-started","id":"evt-1","call":{"id":"c-1","assistantId":"a-1","customer":{"number":"+15550001111"}}}`)
	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatal(err)
	}

	f.proc.Process(context.Background(), ev, raw, "org-1", time.Now())

	c, err := f.calls.GetByRef(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("call not created: %v", err)
	}
	if c.Status != calls.CallStatusInProgress {
		t.Fatalf("status = %q", c.Status)
	}
	if c.StartedAt == nil {
		t.Fatal("startedAt not defaulted")
	}
	if c.OrganizationID != "org-1" || c.AssistantID != "a-1" || c.PhoneNumber != "+15550001111" {
		t.Fatalf("call fields not mapped: %+v", c)
	}
	if !strings.Contains(c.RawWebhook, `"call-started"`) {
		t.Fatal("raw payload not archived on the call row")
	}
}

func TestProcess_CallEndedWithTranscriptTriggersAnalysis(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	started := []byte(`{"type":"call-started","id":"evt-1","call":{"id":"c-1"}}`)
	ev, _ := ParseEvent(started)
	f.proc.Process(ctx, ev, started, "org-1", time.Now())

	ended := []byte(`{"type":"end-of-call-report","id":"evt-2","call":{"id":"c-1","transcript":"hi there","summary":"greeting","duration":12.7,"cost":0.04,"endedReason":"customer-ended-call","recordingUrl":"https://rec.example/c-1.wav"}}`)
	ev, err := ParseEvent(ended)
	if err != nil {
		t.Fatal(err)
	}
	f.proc.Process(ctx, ev, ended, "org-1", time.Now())

	c, err := f.calls.GetByRef(ctx, "c-1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != calls.CallStatusCompleted || c.EndedAt == nil {
		t.Fatalf("call not completed: %+v", c)
	}
	if c.Transcript != "hi there" || c.Summary != "greeting" {
		t.Fatalf("transcript fields: %+v", c)
	}
	if c.DurationSeconds != 12 || c.Cost != 0.04 {
		t.Fatalf("duration/cost: %d %v", c.DurationSeconds, c.Cost)
	}
	if c.RecordingURL != "https://rec.example/c-1.wav" || c.EndReason != "customer-ended-call" {
		t.Fatalf("recording/end reason: %+v", c)
	}

	if len(f.trigger.callIDs) != 1 || f.trigger.callIDs[0] != "c-1" {
		t.Fatalf("ai trigger calls = %v, want one for c-1", f.trigger.callIDs)
	}
	if len(f.backfill.scheduled) != 0 {
		t.Fatalf("backfill scheduled despite transcript present: %v", f.backfill.scheduled)
	}
}

func TestProcess_CallEndedWithoutTranscriptSchedulesBackfill(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	ended := []byte(`{"type":"call-ended","id":"evt-2","call":{"id":"c-9","endedReason":"assistant-ended-call"}}`)
	ev, err := ParseEvent(ended)
	if err != nil {
		t.Fatal(err)
	}
	f.proc.Process(ctx, ev, ended, "org-2", time.Now())

	// Out-of-order delivery: no prior call-started, the row is still created.
	c, err := f.calls.GetByRef(ctx, "c-9")
	if err != nil {
		t.Fatalf("call not upserted: %v", err)
	}
	if c.Status != calls.CallStatusCompleted {
		t.Fatalf("status = %q", c.Status)
	}

	if len(f.trigger.callIDs) != 0 {
		t.Fatalf("trigger fired without transcript: %v", f.trigger.callIDs)
	}
	if len(f.backfill.scheduled) != 1 {
		t.Fatalf("backfill scheduled %d times, want 1", len(f.backfill.scheduled))
	}
	got := f.backfill.scheduled[0]
	if got.callID != "c-9" || got.orgID != "org-2" || got.delay != 30*time.Second {
		t.Fatalf("backfill args: %+v", got)
	}
}

func TestProcess_TranscriptEvent(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	started := []byte(`{"type":"call-started","id":"evt-1","call":{"id":"c-1"}}`)
	ev, _ := ParseEvent(started)
	f.proc.Process(ctx, ev, started, "org-1", time.Now())

	tr := []byte(`{"type":"transcript-complete","id":"evt-2","callId":"c-1","transcript":"full text"}`)
	ev, err := ParseEvent(tr)
	if err != nil {
		t.Fatal(err)
	}
	f.proc.Process(ctx, ev, tr, "org-1", time.Now())

	c, _ := f.calls.GetByRef(ctx, "c-1")
	if c.Transcript != "full text" {
		t.Fatalf("transcript = %q", c.Transcript)
	}
	if len(f.trigger.callIDs) != 1 {
		t.Fatalf("trigger calls = %v", f.trigger.callIDs)
	}
}

func TestProcess_TranscriptForUnknownCallIsNoOp(t *testing.T) {
	f := newProcessorFixture()
	raw := []byte(`{"type":"transcript","id":"evt-1","callId":"ghost","transcript":"text"}`)
	ev, _ := ParseEvent(raw)

	f.proc.Process(context.Background(), ev, raw, "", time.Now())

	if got := f.entriesOfType(auditlog.EntryTypeError); len(got) != 0 {
		t.Fatalf("unexpected error entries: %+v", got)
	}
	if len(f.trigger.callIDs) != 0 {
		t.Fatal("trigger fired for unknown call")
	}
}

func TestProcess_SpeechUpdateOnlyTouchesPartialTranscript(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	started := []byte(`{"type":"call-started","id":"evt-1","call":{"id":"c-1","transcript":""}}`)
	ev, _ := ParseEvent(started)
	f.proc.Process(ctx, ev, started, "org-1", time.Now())

	speech := []byte(`{"type":"speech-update","id":"evt-2","callId":"c-1","message":{"role":"user","transcript":"so far"}}`)
	ev, err := ParseEvent(speech)
	if err != nil {
		t.Fatal(err)
	}
	f.proc.Process(ctx, ev, speech, "org-1", time.Now())

	c, _ := f.calls.GetByRef(ctx, "c-1")
	if c.PartialTranscript != "so far" {
		t.Fatalf("partial transcript = %q", c.PartialTranscript)
	}
	if c.Transcript != "" {
		t.Fatalf("final transcript touched: %q", c.Transcript)
	}
	if c.Status != calls.CallStatusInProgress {
		t.Fatalf("status touched: %q", c.Status)
	}
}

func TestProcess_AnalysisComplete(t *testing.T) {
	f := newProcessorFixture()
	ctx := context.Background()

	started := []byte(`{"type":"call-started","id":"evt-1","call":{"id":"c-1"}}`)
	ev, _ := ParseEvent(started)
	f.proc.Process(ctx, ev, started, "org-1", time.Now())

	analysis := []byte(`{"type":"analysis-complete","id":"evt-2","callId":"c-1","analysis":{"sentiment":"positive","keyPoints":["pricing","follow-up"],"outcome":"qualified","qualityScore":0.92}}`)
	ev, err := ParseEvent(analysis)
	if err != nil {
		t.Fatal(err)
	}
	f.proc.Process(ctx, ev, analysis, "org-1", time.Now())

	c, _ := f.calls.GetByRef(ctx, "c-1")
	if c.Sentiment != "positive" || c.Outcome != "qualified" {
		t.Fatalf("analysis fields: %+v", c)
	}
	if c.QualityScore != 0.92 {
		t.Fatalf("quality score: %v", c.QualityScore)
	}
	if !strings.Contains(c.KeyPoints, "pricing") {
		t.Fatalf("key points = %q", c.KeyPoints)
	}
	if !strings.Contains(c.RawAnalysis, "qualityScore") {
		t.Fatalf("raw analysis = %q", c.RawAnalysis)
	}
}

func TestProcess_UnrecognizedTypeIgnored(t *testing.T) {
	f := newProcessorFixture()
	raw := []byte(`{"type":"hang-notification","id":"evt-1"}`)
	ev, _ := ParseEvent(raw)

	f.proc.Process(context.Background(), ev, raw, "", time.Now())

	if got := f.entriesOfType(auditlog.EntryTypeError); len(got) != 0 {
		t.Fatalf("unexpected error entries: %+v", got)
	}
	if got := f.entriesOfType(auditlog.EntryTypeReceived); len(got) != 1 {
		t.Fatalf("delivery not archived: %d entries", len(got))
	}
}

type panickingStore struct {
	calls.Store
}

func (panickingStore) UpsertByProviderID(ctx context.Context, providerCallID string, p calls.Patch) (calls.Call, error) {
	panic("store gone")
}

func TestProcessAsync_RecoversPanicAndArchivesError(t *testing.T) {
	audit := auditlog.NewMemoryRepo()
	proc := NewProcessor(ProcessorConfig{
		Calls: panickingStore{},
		Audit: auditlog.NewWriter(audit, nil),
		Dedup: NewMemoryDeduplicator(),
	})

	raw := []byte(`{"type":"call-started","id":"evt-1","call":{"id":"c-1"}}`)
	ev, _ := ParseEvent(raw)
	proc.ProcessAsync(ev, raw, "org-1", time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := proc.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	var errs []auditlog.Entry
	for _, e := range audit.Entries() {
		if e.Type == auditlog.EntryTypeError {
			errs = append(errs, e)
		}
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Error, "panic") {
		t.Fatalf("panic not archived: %+v", errs)
	}
}
