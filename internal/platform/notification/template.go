package notification

import (
	"fmt"
	"strings"
	"sync"
)

const (
	TemplateOTPSMS            = "otp-sms"
	TemplateConfirmationSMS   = "confirmation-sms"
	TemplateConfirmationEmail = "confirmation-email"
)

// Template defines a reusable notification template.
type Template struct {
	ID      string  `json:"id"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range []Template{
		{
			ID:      TemplateOTPSMS,
			Body:    "{{code}} is your OTP to confirm your appointment. It is valid for 10 minutes. Do not share it with anyone.",
			Channel: ChannelSMS,
		},
		{
			ID:      TemplateConfirmationSMS,
			Body:    "Dear {{patient_name}}, your appointment is confirmed for {{date}} at {{time}}.",
			Channel: ChannelSMS,
		},
		{
			ID:      TemplateConfirmationEmail,
			Subject: "Appointment confirmed for {{patient_name}}",
			Body: "Dear {{patient_name}},\n\nYour appointment with {{doctor_name}} is confirmed for {{date}} at {{time}}.\n" +
				"Your patient ID is {{patient_id}}. Please quote it at the reception desk.\n",
			Channel: ChannelEmail,
		},
	} {
		e.RegisterTemplate(t)
	}
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// SMSText renders the plain-text body of a gateway message.
func (e *TemplateEngine) SMSText(msg Message) (string, error) {
	var (
		id   string
		keys []string
	)
	switch msg.Kind {
	case KindOTP:
		id, keys = TemplateOTPSMS, []string{"code"}
	case KindConfirmation:
		id, keys = TemplateConfirmationSMS, []string{"patient_name", "date", "time"}
	default:
		return "", fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
	if len(msg.Variables) != len(keys) {
		return "", fmt.Errorf("%s message expects %d variables, got %d", msg.Kind, len(keys), len(msg.Variables))
	}
	data := make(map[string]string, len(keys))
	for i, k := range keys {
		data[k] = msg.Variables[i]
	}
	_, body, err := e.Render(id, data)
	return body, err
}
