package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFast2SMSURL is the bulk endpoint used for DLT template messages.
const DefaultFast2SMSURL = "https://www.fast2sms.com/dev/bulkV2"

// Fast2SMSGateway sends DLT-registered template messages.
type Fast2SMSGateway struct {
	url      string
	apiKey   string
	senderID string
	client   *http.Client
}

func NewFast2SMSGateway(url, apiKey, senderID string, timeout time.Duration) *Fast2SMSGateway {
	if url == "" {
		url = DefaultFast2SMSURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fast2SMSGateway{
		url:      url,
		apiKey:   apiKey,
		senderID: senderID,
		client:   &http.Client{Timeout: timeout},
	}
}

type fast2smsRequest struct {
	Route           string `json:"route"`
	SenderID        string `json:"sender_id"`
	Message         string `json:"message"`
	VariablesValues string `json:"variables_values"`
	Numbers         string `json:"numbers"`
	Flash           int    `json:"flash"`
}

type fast2smsResponse struct {
	Return    bool            `json:"return"`
	RequestID string          `json:"request_id"`
	Message   json.RawMessage `json:"message"`
}

var ErrGatewayRejected = errors.New("sms gateway rejected the message")

func (g *Fast2SMSGateway) Send(ctx context.Context, msg Message) (string, error) {
	if msg.TemplateID == "" {
		return "", fmt.Errorf("no DLT template configured for %s messages", msg.Kind)
	}
	payload, err := json.Marshal(fast2smsRequest{
		Route:           "dlt",
		SenderID:        g.senderID,
		Message:         msg.TemplateID,
		VariablesValues: strings.Join(msg.Variables, "|"),
		Numbers:         msg.Phone,
	})
	if err != nil {
		return "", fmt.Errorf("encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("authorization", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("POST %s: %w", g.url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read sms response: %w", err)
	}
	body := string(raw)
	if resp.StatusCode != http.StatusOK {
		return body, fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
	}
	var parsed fast2smsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return body, fmt.Errorf("decode sms response: %w", err)
	}
	if !parsed.Return {
		return body, fmt.Errorf("%w: %s", ErrGatewayRejected, string(parsed.Message))
	}
	return body, nil
}

// LogGateway writes rendered messages to the log instead of sending them.
// Used when SMS delivery is disabled.
type LogGateway struct {
	engine *TemplateEngine
	logger zerolog.Logger
}

func NewLogGateway(logger zerolog.Logger) *LogGateway {
	return &LogGateway{engine: NewTemplateEngine(), logger: logger.With().Str("gateway", "log").Logger()}
}

func (g *LogGateway) Send(_ context.Context, msg Message) (string, error) {
	text, err := g.engine.SMSText(msg)
	if err != nil {
		return "", err
	}
	g.logger.Info().Str("phone", MaskPhone(msg.Phone)).Str("kind", string(msg.Kind)).Str("text", text).Msg("sms suppressed")
	return "logged", nil
}
