package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a notification record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether the status is one of the defined lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
// Failed is not terminal: a failed record with retry budget left can be
// requeued.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// Priority represents the urgency of a notification. High and urgent
// records bypass quiet hours and rate limiting at routing time.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether the priority is one of the defined values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Rank returns the dispatch ordering weight of the priority, higher first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

func (p Priority) String() string {
	return string(p)
}

// DefaultMaxRetries is the retry budget assigned at creation unless
// overridden via WithMaxRetries.
const DefaultMaxRetries = 3

// Receipt carries the delivery bookkeeping returned by a provider on a
// successful send. ResponseStatus and ResponseBody are populated for
// webhook deliveries only.
type Receipt struct {
	MessageID         string `json:"message_id"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	DeliveryStatus    string `json:"delivery_status,omitempty"`
	Provider          string `json:"provider,omitempty"`
	ResponseStatus    int    `json:"response_status,omitempty"`
	ResponseBody      string `json:"response_body,omitempty"`
}

// Record is a single notification tracked through its send lifecycle.
//
// Record is treated as an immutable value: transition methods return a new
// Record rather than mutating the receiver. Delivery bookkeeping fields are
// populated only through MarkSent; error bookkeeping only through
// MarkFailed and cleared only through Retry/ResetForRetry.
type Record struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Channel  Channel   `json:"channel"`

	TemplateID string            `json:"template_id"`
	Recipients []string          `json:"recipients"`
	Data       map[string]any    `json:"data,omitempty"`
	Subject    string            `json:"subject,omitempty"` // email only
	Metadata   map[string]string `json:"metadata,omitempty"`

	// ScheduledAt nil means "eligible to send now". A past ScheduledAt makes
	// the record due but does not transition state; routing decides.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	RetryCount int  `json:"retry_count"`
	MaxRetries int  `json:"max_retries"`
	CanRetry   bool `json:"can_retry"`

	FailedAt     *time.Time     `json:"failed_at,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`

	SentAt  *time.Time `json:"sent_at,omitempty"`
	Receipt Receipt    `json:"receipt,omitzero"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Option configures optional Record fields at creation time.
type Option func(*Record)

// WithPriority overrides the default normal priority.
func WithPriority(p Priority) Option {
	return func(r *Record) {
		if p.Valid() {
			r.Priority = p
		}
	}
}

// WithSubject sets the email subject line. Ignored by other channels.
func WithSubject(subject string) Option {
	return func(r *Record) {
		r.Subject = subject
	}
}

// WithData sets the template data map passed to the renderer.
func WithData(data map[string]any) Option {
	return func(r *Record) {
		r.Data = data
	}
}

// WithMetadata sets channel-specific extensions, e.g. webhook HTTP method,
// headers, or timeout overrides.
func WithMetadata(md map[string]string) Option {
	return func(r *Record) {
		r.Metadata = md
	}
}

// WithScheduledAt defers the record until the given time.
func WithScheduledAt(t time.Time) Option {
	return func(r *Record) {
		r.ScheduledAt = &t
	}
}

// WithMaxRetries overrides the default retry budget. Non-positive values
// are ignored.
func WithMaxRetries(n int) Option {
	return func(r *Record) {
		if n > 0 {
			r.MaxRetries = n
		}
	}
}

// New creates a pending Record. It fails fast on an empty recipient list or
// an unknown channel so that an invalid record can never be obtained.
func New(tenantID uuid.UUID, ch Channel, templateID string, recipients []string, opts ...Option) (Record, error) {
	if !ch.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidChannel, ch)
	}
	if len(recipients) == 0 {
		return Record{}, ErrNoRecipients
	}

	now := time.Now()
	rec := Record{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Channel:    ch,
		TemplateID: templateID,
		Recipients: append([]string(nil), recipients...),
		Status:     StatusPending,
		Priority:   PriorityNormal,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for _, opt := range opts {
		opt(&rec)
	}

	return rec, nil
}

// IsDue reports whether the record is eligible for dispatch at the given
// time: pending, and either unscheduled or scheduled at or before now.
func (r Record) IsDue(now time.Time) bool {
	if r.Status != StatusPending {
		return false
	}
	if r.ScheduledAt == nil {
		return true
	}
	return !r.ScheduledAt.After(now)
}

// MarkSending transitions pending -> sending. The store write backing this
// transition must be compare-and-swap guarded; the guard here is necessary
// but not sufficient under concurrent dispatchers.
func (r Record) MarkSending() (Record, error) {
	if r.Status != StatusPending {
		return r, fmt.Errorf("%w: cannot mark %s notification as sending", ErrInvalidTransition, r.Status)
	}
	r.Status = StatusSending
	r.UpdatedAt = time.Now()
	return r, nil
}

// MarkSent records a successful delivery. Allowed from sending and, for
// callers that dispatch without an intermediate sending mark, from pending.
func (r Record) MarkSent(receipt Receipt, now time.Time) (Record, error) {
	if r.Status != StatusPending && r.Status != StatusSending {
		return r, fmt.Errorf("%w: cannot mark %s notification as sent", ErrInvalidTransition, r.Status)
	}
	sentAt := now
	r.Status = StatusSent
	r.SentAt = &sentAt
	r.Receipt = receipt
	r.UpdatedAt = now
	return r, nil
}

// MarkFailed records a delivery failure with its classification. canRetry
// reflects whether the failure is transient; the retry calculator decides,
// the record only stores the verdict.
func (r Record) MarkFailed(code, message string, details map[string]any, canRetry bool, now time.Time) (Record, error) {
	if r.Status != StatusPending && r.Status != StatusSending {
		return r, fmt.Errorf("%w: cannot mark %s notification as failed", ErrInvalidTransition, r.Status)
	}
	failedAt := now
	r.Status = StatusFailed
	r.FailedAt = &failedAt
	r.ErrorCode = code
	r.ErrorMessage = message
	r.ErrorDetails = details
	r.CanRetry = canRetry && r.RetryCount < r.MaxRetries
	r.UpdatedAt = now
	return r, nil
}

// Retry requeues a failed record, charging one retry attempt. The error
// message is cleared but code and details are kept for diagnostics until
// the next outcome overwrites them.
func (r Record) Retry() (Record, error) {
	if r.Status != StatusFailed {
		return r, fmt.Errorf("%w: cannot retry %s notification", ErrInvalidTransition, r.Status)
	}
	if r.RetryCount >= r.MaxRetries {
		return r, fmt.Errorf("%w: %d of %d attempts used", ErrRetryLimitExceeded, r.RetryCount, r.MaxRetries)
	}
	r.RetryCount++
	r.CanRetry = r.RetryCount < r.MaxRetries
	r.ErrorMessage = ""
	r.Status = StatusPending
	r.UpdatedAt = time.Now()
	return r, nil
}

// ResetForRetry requeues a failed record without charging a retry attempt
// and clears all error bookkeeping. Used when the routing layer parks a
// record for reasons unrelated to the failure itself, e.g. quiet hours.
func (r Record) ResetForRetry() (Record, error) {
	if r.Status != StatusFailed {
		return r, fmt.Errorf("%w: cannot reset %s notification for retry", ErrInvalidTransition, r.Status)
	}
	r.Status = StatusPending
	r.FailedAt = nil
	r.ErrorCode = ""
	r.ErrorMessage = ""
	r.ErrorDetails = nil
	r.CanRetry = true
	r.UpdatedAt = time.Now()
	return r, nil
}

// Cancel transitions pending/sending -> cancelled. Records that went
// through a delivery attempt (sent or failed) cannot be cancelled.
func (r Record) Cancel() (Record, error) {
	switch r.Status {
	case StatusPending, StatusSending:
		r.Status = StatusCancelled
		r.UpdatedAt = time.Now()
		return r, nil
	case StatusCancelled:
		return r, ErrAlreadyCancelled
	default:
		return r, ErrAlreadySent
	}
}

// WithSchedule returns a copy of the record scheduled at the given time.
// Used by routing when a send is deferred.
func (r Record) WithSchedule(t time.Time) Record {
	scheduled := t
	r.ScheduledAt = &scheduled
	r.UpdatedAt = time.Now()
	return r
}
