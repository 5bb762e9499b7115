package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a queued send job.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusInProgress JobStatus = "IN_PROGRESS"
	StatusDone       JobStatus = "DONE"
	StatusFailed     JobStatus = "FAILED"
)

func (s JobStatus) String() string { return string(s) }

func (s JobStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether a job may never leave this status again.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

func ParseJobStatusFromString(s string) (JobStatus, error) {
	st := JobStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid job status %q", ErrValidation, s)
	}
	return st, nil
}

// Customer is a snapshot of one spreadsheet row, frozen into the job at
// enqueue time so later edits to the source data never affect pending jobs.
type Customer struct {
	Company    string   `json:"company"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	DomainTags []string `json:"domainTags"`
}

func (c Customer) Validate() error {
	if !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: invalid recipient email %q", ErrValidation, c.Email)
	}
	return nil
}

// Attachment carries one file snapshot, already base64-encoded by the
// enqueue layer.
type Attachment struct {
	Name      string `json:"name"`
	MIMEType  string `json:"mimeType"`
	Base64    string `json:"base64"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Attachment size caps in bytes. The enqueue layer enforces the stricter
// cap; the dispatch path re-checks against the larger one before the first
// send of a run.
const (
	MaxEnqueueAttachmentBytes  = 25 << 20
	MaxDispatchAttachmentBytes = 35 << 20
)

// TotalAttachmentBytes sums the declared sizes of a job's attachments.
func TotalAttachmentBytes(attachments []Attachment) int64 {
	var total int64
	for _, a := range attachments {
		total += a.SizeBytes
	}
	return total
}

// Job is the unit of work: one pre-rendered email for one recipient.
// Subject and body are computed at enqueue time, never at send time, so
// what was previewed is exactly what goes out.
type Job struct {
	ID          string
	Seq         int64
	Customer    Customer
	Subject     string
	Body        string
	Attachments []Attachment
	Status      JobStatus
	Error       *string
	CreatedAt   time.Time
	SentAt      *time.Time
}

func (j *Job) Validate() error {
	if err := j.Customer.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(j.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if !j.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, j.Status)
	}
	if total := TotalAttachmentBytes(j.Attachments); total > MaxDispatchAttachmentBytes {
		return fmt.Errorf("%w: attachments total %d bytes exceeds %d", ErrValidation, total, MaxDispatchAttachmentBytes)
	}
	return nil
}

// DelayMode selects how the pause between two sends is computed.
type DelayMode string

const (
	DelayFixed  DelayMode = "FIXED"
	DelayRandom DelayMode = "RANDOM"
)

func (m DelayMode) IsValid() bool {
	return m == DelayFixed || m == DelayRandom
}

// DelayConfig is the pacing policy for one worker run. Random mode draws a
// uniform delay from [MinMs, MaxMs] before each tick.
type DelayConfig struct {
	Mode    DelayMode `json:"mode"`
	FixedMs int       `json:"fixedMs,omitempty"`
	MinMs   int       `json:"minMs,omitempty"`
	MaxMs   int       `json:"maxMs,omitempty"`
}

func (d DelayConfig) Validate() error {
	switch d.Mode {
	case DelayFixed:
		if d.FixedMs < 0 {
			return fmt.Errorf("%w: fixed delay must not be negative", ErrValidation)
		}
	case DelayRandom:
		if d.MinMs < 0 || d.MaxMs < d.MinMs {
			return fmt.Errorf("%w: random delay requires 0 <= min <= max", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: invalid delay mode %q", ErrValidation, d.Mode)
	}
	return nil
}

// WorkerState is the persisted worker snapshot. It is derivable from the
// job queue and exists so a restarted process (and the status endpoint)
// can see where the last run left off. Exactly one row is kept.
type WorkerState struct {
	ID           int
	IsRunning    bool
	Delay        DelayConfig
	Total        int
	Sent         int
	Failed       int
	NextSendInMs int
	LastLogLine  string
	UpdatedAt    time.Time
}

// WorkerStateID is the fixed primary key of the single worker state row.
const WorkerStateID = 1
