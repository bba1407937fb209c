package calls

import "time"

// Call is the durable representation of a phone call mirrored from the
// calling provider.
//
// Identity invariant: a row is addressable by EITHER the internal id or the
// provider's call id (vapi_call_id). Update paths must match on both, since
// webhook events and dashboard flows refer to the same call by different ids
// depending on call stage.
type Call struct {
	ID             string `json:"id" db:"id"`
	VapiCallID     string `json:"vapi_call_id" db:"vapi_call_id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`

	PhoneNumber string `json:"phone_number,omitempty" db:"phone_number"`
	AssistantID string `json:"assistant_id,omitempty" db:"assistant_id"`

	Status CallStatus `json:"status" db:"status"`

	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is the call duration in seconds.
	DurationSeconds int     `json:"duration" db:"duration"`
	Cost            float64 `json:"cost" db:"cost"`

	Transcript        string `json:"transcript,omitempty" db:"transcript"`
	PartialTranscript string `json:"partial_transcript,omitempty" db:"partial_transcript"`
	Summary           string `json:"summary,omitempty" db:"summary"`

	Sentiment    string  `json:"sentiment,omitempty" db:"sentiment"`
	KeyPoints    string  `json:"key_points,omitempty" db:"key_points"` // JSON array
	Outcome      string  `json:"outcome,omitempty" db:"outcome"`
	QualityScore float64 `json:"quality_score,omitempty" db:"quality_score"`
	RawAnalysis  string  `json:"raw_analysis,omitempty" db:"raw_analysis"`

	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`
	EndReason    string `json:"end_reason,omitempty" db:"end_reason"`

	// RawWebhook is the latest raw provider payload seen for this call.
	RawWebhook string `json:"raw_webhook,omitempty" db:"raw_webhook"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
)

// Patch is a partial update. Nil fields are not written, so concurrent
// handlers for the same call can race safely with last-writer-wins per field.
// This is the intended concurrency strategy: no field is ever nulled by an
// event that omits it.
type Patch struct {
	OrganizationID *string
	PhoneNumber    *string
	AssistantID    *string

	Status    *CallStatus
	StartedAt *time.Time
	EndedAt   *time.Time

	DurationSeconds *int
	Cost            *float64

	Transcript        *string
	PartialTranscript *string
	Summary           *string

	Sentiment    *string
	KeyPoints    *string
	Outcome      *string
	QualityScore *float64
	RawAnalysis  *string

	RecordingURL *string
	EndReason    *string
	RawWebhook   *string
}

// IsZero reports whether the patch writes nothing.
func (p Patch) IsZero() bool {
	return p == Patch{}
}

func (p Patch) apply(c *Call) {
	if p.OrganizationID != nil {
		c.OrganizationID = *p.OrganizationID
	}
	if p.PhoneNumber != nil {
		c.PhoneNumber = *p.PhoneNumber
	}
	if p.AssistantID != nil {
		c.AssistantID = *p.AssistantID
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.StartedAt != nil {
		c.StartedAt = p.StartedAt
	}
	if p.EndedAt != nil {
		c.EndedAt = p.EndedAt
	}
	if p.DurationSeconds != nil {
		c.DurationSeconds = *p.DurationSeconds
	}
	if p.Cost != nil {
		c.Cost = *p.Cost
	}
	if p.Transcript != nil {
		c.Transcript = *p.Transcript
	}
	if p.PartialTranscript != nil {
		c.PartialTranscript = *p.PartialTranscript
	}
	if p.Summary != nil {
		c.Summary = *p.Summary
	}
	if p.Sentiment != nil {
		c.Sentiment = *p.Sentiment
	}
	if p.KeyPoints != nil {
		c.KeyPoints = *p.KeyPoints
	}
	if p.Outcome != nil {
		c.Outcome = *p.Outcome
	}
	if p.QualityScore != nil {
		c.QualityScore = *p.QualityScore
	}
	if p.RawAnalysis != nil {
		c.RawAnalysis = *p.RawAnalysis
	}
	if p.RecordingURL != nil {
		c.RecordingURL = *p.RecordingURL
	}
	if p.EndReason != nil {
		c.EndReason = *p.EndReason
	}
	if p.RawWebhook != nil {
		c.RawWebhook = *p.RawWebhook
	}
}
