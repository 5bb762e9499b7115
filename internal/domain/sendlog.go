package domain

import "time"

// SendStatus is the recorded outcome of one send attempt.
type SendStatus string

const (
	SendSuccess SendStatus = "Success"
	SendFailed  SendStatus = "Failed"
)

func (s SendStatus) String() string { return string(s) }

// SendLogEntry records a single delivery outcome for audit. The log is
// append-only; entries are only removed by the retention purge.
type SendLogEntry struct {
	ID        string
	JobID     string
	Recipient string
	Status    SendStatus
	Error     *string
	CreatedAt time.Time
}

// SendLogRetention is how long send log entries are kept once an explicit
// purge is requested.
const SendLogRetention = 7 * 24 * time.Hour
