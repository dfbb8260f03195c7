// Package notification delivers OTP and appointment confirmation messages
// through an SMS gateway (and optionally e-mail), recording every attempt in
// an audit log. Dispatch never panics or returns past its boundary; callers
// decide whether a failed Result is fatal.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/booking/internal/platform/metrics"
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Kind names the message template.
type Kind string

const (
	KindOTP          Kind = "otp"
	KindConfirmation Kind = "confirmation"
)

// Channel is the delivery path of an entry.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Message is one gateway call. Variables fill the DLT template in order.
type Message struct {
	Phone      string
	Kind       Kind
	TemplateID string
	Variables  []string
}

// Entry is one audit record.
type Entry struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Kind      Kind      `json:"kind"`
	Channel   Channel   `json:"channel"`
	Status    string    `json:"status"`
	Response  string    `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is the outcome handed back to callers of Dispatch.
type Result struct {
	Status   string
	Response string
	Err      error
}

func (r Result) OK() bool { return r.Err == nil }

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Gateway sends one SMS and returns the raw provider response.
type Gateway interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// AuditLog stores dispatch attempts.
type AuditLog interface {
	Record(ctx context.Context, e *Entry) error
	ListByPhone(ctx context.Context, phone string, limit int) ([]*Entry, error)
	Stats(ctx context.Context) (map[string]int, error)
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Templates maps kinds to the provider's registered DLT template ids.
type Templates struct {
	OTP          string
	Confirmation string
}

func (t Templates) idFor(k Kind) string {
	if k == KindOTP {
		return t.OTP
	}
	return t.Confirmation
}

type Dispatcher struct {
	gateway   Gateway
	email     EmailSender
	audit     AuditLog
	templates Templates
	engine    *TemplateEngine
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
	loc       *time.Location
}

// NewDispatcher builds a Dispatcher. email may be nil to disable e-mail.
func NewDispatcher(gw Gateway, email EmailSender, audit AuditLog, templates Templates,
	m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		gateway:   gw,
		email:     email,
		audit:     audit,
		templates: templates,
		engine:    NewTemplateEngine(),
		metrics:   m,
		logger:    logger.With().Str("component", "notification").Logger(),
		now:       time.Now,
		loc:       time.UTC,
	}
}

// SetLocation sets the clinic timezone named in appointment messages.
func (d *Dispatcher) SetLocation(loc *time.Location) {
	if loc != nil {
		d.loc = loc
	}
}

var errGatewayPanic = errors.New("gateway panicked")

// Dispatch calls the gateway exactly once and records the attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, phone string, kind Kind, vars ...string) Result {
	msg := Message{Phone: phone, Kind: kind, TemplateID: d.templates.idFor(kind), Variables: vars}

	resp, err := d.callGateway(ctx, msg)
	res := Result{Status: StatusSent, Response: resp, Err: err}
	if err != nil {
		res.Status = StatusFailed
	}
	d.record(ctx, phone, kind, ChannelSMS, res)
	return res
}

func (d *Dispatcher) callGateway(ctx context.Context, msg Message) (resp string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errGatewayPanic, r)
		}
	}()
	return d.gateway.Send(ctx, msg)
}

func (d *Dispatcher) record(ctx context.Context, phone string, kind Kind, ch Channel, res Result) {
	d.metrics.Notification(string(kind), res.Status)

	entry := &Entry{
		ID:        uuid.New().String(),
		Phone:     phone,
		Kind:      kind,
		Channel:   ch,
		Status:    res.Status,
		Response:  res.Response,
		CreatedAt: d.now().UTC(),
	}
	ev := d.logger.Info()
	if res.Err != nil {
		entry.Error = res.Err.Error()
		ev = d.logger.Warn().Err(res.Err)
	}
	ev.Str("phone", MaskPhone(phone)).Str("kind", string(kind)).Str("channel", string(ch)).
		Str("status", res.Status).Msg("notification dispatched")

	if d.audit == nil {
		return
	}
	if err := d.audit.Record(ctx, entry); err != nil {
		d.logger.Error().Err(err).Str("kind", string(kind)).Msg("failed to write notification audit entry")
	}
}

// SendOTP dispatches the one-time code.
func (d *Dispatcher) SendOTP(ctx context.Context, phone, code string) Result {
	return d.Dispatch(ctx, phone, KindOTP, code)
}

// Confirmation carries the data of a booked appointment.
type Confirmation struct {
	Phone       string
	PatientName string
	PatientID   string
	DoctorName  string
	Date        string // YYYY-MM-DD
	Time        string // HH:MM, 24h
	Email       *string
}

// SendConfirmation sends the confirmation SMS and, when the patient left an
// address, the confirmation e-mail. The SMS result is returned.
func (d *Dispatcher) SendConfirmation(ctx context.Context, c Confirmation) Result {
	date, clock, err := FormatAppointment(c.Date, c.Time, d.loc)
	if err != nil {
		res := Result{Status: StatusFailed, Err: err}
		d.record(ctx, c.Phone, KindConfirmation, ChannelSMS, res)
		return res
	}
	res := d.Dispatch(ctx, c.Phone, KindConfirmation, c.PatientName, date, clock)

	if d.email != nil && c.Email != nil && *c.Email != "" {
		d.sendConfirmationEmail(ctx, c, date, clock)
	}
	return res
}

func (d *Dispatcher) sendConfirmationEmail(ctx context.Context, c Confirmation, date, clock string) {
	subject, body, err := d.engine.Render(TemplateConfirmationEmail, map[string]string{
		"patient_name": c.PatientName,
		"patient_id":   c.PatientID,
		"doctor_name":  c.DoctorName,
		"date":         date,
		"time":         clock,
	})
	if err == nil {
		err = d.sendEmail(ctx, *c.Email, subject, body)
	}
	res := Result{Status: StatusSent, Err: err}
	if err != nil {
		res.Status = StatusFailed
	}
	d.record(ctx, c.Phone, KindConfirmation, ChannelEmail, res)
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, subject, body string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("email sender panicked: %v", r)
		}
	}()
	return d.email.SendEmail(ctx, to, subject, body)
}

// FormatAppointment renders a YYYY-MM-DD date as DD-MM-YYYY and an HH:MM
// time as "HH:MM AM/PM" followed by the zone abbreviation loc uses on that
// date, e.g. "02:45 PM IST".
func FormatAppointment(date, clock string, loc *time.Location) (string, string, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return "", "", fmt.Errorf("format date %q: %w", date, err)
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return "", "", fmt.Errorf("format time %q: %w", clock, err)
	}
	return d.Format("02-01-2006"), t.Format("03:04 PM MST"), nil
}

// MaskPhone keeps the last four digits.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	masked := make([]byte, len(phone))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(phone)-4:], phone[len(phone)-4:])
	return string(masked)
}
