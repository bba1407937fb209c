package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event kinds delivered by the provider. Unrecognized kinds are logged and
// ignored, never rejected: the provider adds types without notice.
const (
	EventCallStarted           = "call-started"
	EventCallEnded             = "call-ended"
	EventEndOfCallReport       = "end-of-call-report"
	EventTranscript            = "transcript"
	EventTranscriptComplete    = "transcript-complete"
	EventTranscriptionComplete = "transcription-complete"
	EventAnalysisComplete      = "analysis-complete"
	EventSpeechUpdate          = "speech-update"
	EventStatusUpdate          = "status-update"
	EventRecordingReady        = "recording-ready"
	EventRecordingAvailable    = "recording-available"
)

// SupportedEventTypes is exposed on the status endpoint.
var SupportedEventTypes = []string{
	EventCallStarted,
	EventCallEnded,
	EventEndOfCallReport,
	EventTranscript,
	EventTranscriptComplete,
	EventTranscriptionComplete,
	EventAnalysisComplete,
	EventSpeechUpdate,
	EventStatusUpdate,
	EventRecordingReady,
	EventRecordingAvailable,
}

// Event is one inbound provider payload. It is never persisted as a
// first-class record; the raw body is archived by the audit log instead.
type Event struct {
	Type string `json:"type"`
	ID   string `json:"id"`

	// CallID duplicates call.id on some event shapes.
	CallID string `json:"callId"`

	Call        *CallSnapshot `json:"call"`
	PhoneNumber *PhoneNumber  `json:"phoneNumber"`
	Message     *Message      `json:"message"`
	Analysis    *Analysis     `json:"analysis"`

	// Transcript is the top-level transcript location on transcript events.
	Transcript   string `json:"transcript"`
	RecordingURL string `json:"recordingUrl"`
}

// CallSnapshot is the provider's embedded view of the call at event time.
type CallSnapshot struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	OrgID          string     `json:"orgId"`
	AssistantID    string     `json:"assistantId"`
	Status         string     `json:"status"`
	StartedAt      *time.Time `json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt"`
	EndedReason    string     `json:"endedReason"`
	Transcript     string     `json:"transcript"`
	Summary        string     `json:"summary"`
	RecordingURL   string     `json:"recordingUrl"`
	Cost           *float64   `json:"cost"`
	Duration       *float64   `json:"duration"`
	Customer       *Customer  `json:"customer"`
	Analysis       *Analysis  `json:"analysis"`
}

type Customer struct {
	Number string `json:"number"`
}

type PhoneNumber struct {
	ID             string `json:"id"`
	Number         string `json:"number"`
	OrganizationID string `json:"organizationId"`
}

type Message struct {
	Role       string `json:"role"`
	Transcript string `json:"transcript"`
}

type Analysis struct {
	Sentiment      string          `json:"sentiment"`
	KeyPoints      []string        `json:"keyPoints"`
	Outcome        string          `json:"outcome"`
	QualityScore   *float64        `json:"qualityScore"`
	SuccessSummary string          `json:"successSummary"`
	Raw            json.RawMessage `json:"-"`
}

// ParseEvent decodes an inbound body. Some provider configurations deliver
// the JSON object double-encoded as a JSON string; both shapes are accepted.
func ParseEvent(raw []byte) (Event, error) {
	body := bytes.TrimSpace(raw)
	if len(body) == 0 {
		return Event{}, fmt.Errorf("webhook: empty body")
	}

	if body[0] == '"' {
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return Event{}, fmt.Errorf("webhook: unwrap string body: %w", err)
		}
		body = []byte(inner)
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("webhook: parse body: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("webhook: missing event type")
	}
	if ev.Analysis != nil {
		// Keep the raw analysis blob for storage alongside the parsed fields.
		if idx := bytes.Index(body, []byte(`"analysis"`)); idx >= 0 {
			var probe struct {
				Analysis json.RawMessage `json:"analysis"`
			}
			if err := json.Unmarshal(body, &probe); err == nil {
				ev.Analysis.Raw = probe.Analysis
			}
		}
	}
	return ev, nil
}

// ResolveCallID checks the two payload locations a call id may occupy.
func (ev Event) ResolveCallID() string {
	if ev.Call != nil && ev.Call.ID != "" {
		return ev.Call.ID
	}
	return ev.CallID
}

// ResolveTranscript checks the three payload locations transcript text may
// occupy, in the provider's order of authority.
func (ev Event) ResolveTranscript() string {
	if t := strings.TrimSpace(ev.Transcript); t != "" {
		return t
	}
	if ev.Message != nil {
		if t := strings.TrimSpace(ev.Message.Transcript); t != "" {
			return t
		}
	}
	if ev.Call != nil {
		if t := strings.TrimSpace(ev.Call.Transcript); t != "" {
			return t
		}
	}
	return ""
}

// ResolveRecordingURL checks the event-level and call-level locations.
func (ev Event) ResolveRecordingURL() string {
	if ev.RecordingURL != "" {
		return ev.RecordingURL
	}
	if ev.Call != nil {
		return ev.Call.RecordingURL
	}
	return ""
}

// OrganizationHint returns the tenant id when the payload carries one.
func (ev Event) OrganizationHint() string {
	if ev.Call != nil {
		if ev.Call.OrganizationID != "" {
			return ev.Call.OrganizationID
		}
		if ev.Call.OrgID != "" {
			return ev.Call.OrgID
		}
	}
	if ev.PhoneNumber != nil && ev.PhoneNumber.OrganizationID != "" {
		return ev.PhoneNumber.OrganizationID
	}
	return ""
}

// EventKey returns the dedup key and whether it had to be synthesized.
// The synthesized form is a best-effort heuristic, not a true idempotency
// key: duplicates within the same millisecond can collide either way.
// Callers surface synthesized use via logging so the gap stays visible.
func EventKey(ev Event, receivedAt time.Time) (key string, synthesized bool) {
	if ev.ID != "" {
		return ev.ID, false
	}
	return fmt.Sprintf("%s-%s-%d", ev.Type, ev.ResolveCallID(), receivedAt.UnixMilli()), true
}
