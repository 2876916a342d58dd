// Package archive persists finished call transcripts to S3 for dispute
// resolution and compliance review. Phone numbers are hashed and transcript
// text is scrubbed before anything leaves the process.
package archive

import (
	"time"

	"github.com/google/uuid"
)

// CallRecord is the top-level structure archived to S3 per finished call.
type CallRecord struct {
	Version         string     `json:"version"` // "1.0"
	CallID          string     `json:"call_id"`
	ProviderID      uuid.UUID  `json:"provider_id"`
	EmployeeID      *uuid.UUID `json:"employee_id,omitempty"`
	OccurrenceID    *uuid.UUID `json:"occurrence_id,omitempty"`
	Direction       string     `json:"direction"`
	PhoneHash       string     `json:"phone_hash"` // sha256 of caller phone
	ArchivedAt      time.Time  `json:"archived_at"`
	DurationSeconds int        `json:"duration_seconds"`
	Outcome         string     `json:"outcome"`
	FinalPhase      string     `json:"final_phase"`
	Action          string     `json:"action,omitempty"`
	ReasonCategory  string     `json:"reason_category,omitempty"`
	TurnCount       int        `json:"turn_count"`
	Turns           []Turn     `json:"turns"`
}

// Turn is a single transcript entry, either a system prompt or a caller reply.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	CallID     string `json:"call_id"`
	S3Key      string `json:"s3_key"`
	Outcome    string `json:"outcome"`
	FinalPhase string `json:"final_phase"`
	ArchivedAt string `json:"archived_at"`
	TurnCount  int    `json:"turn_count"`
}
