package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

const maxResponseSizeBytes = 16 << 10

type Config struct {
	WebhookURL    string        `split_words:"true"`
	SupportAgents []string      `split_words:"true" default:"CSKH"`
	AdminAgents   []string      `split_words:"true" default:"R&D"`
	Timeout       time.Duration `split_words:"true" default:"10s"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.WebhookURL) != ""
}

// Publisher queues a JSON body for later delivery to destination.
type Publisher interface {
	PublishJSON(ctx context.Context, destination string, body any) (string, error)
}

// Lark posts interactive cards to a Lark custom bot webhook, directly or through a Publisher.
type Lark struct {
	webhook    string
	support    []string
	admins     []string
	publisher  Publisher
	httpClient *http.Client
}

type Option func(*Lark)

// WithPublisher routes cards through a queue instead of posting them inline.
func WithPublisher(p Publisher) Option {
	return func(l *Lark) { l.publisher = p }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(l *Lark) {
		if hc != nil {
			l.httpClient = hc
		}
	}
}

func NewLark(cfg Config, opts ...Option) (*Lark, error) {
	webhook := strings.TrimSpace(cfg.WebhookURL)
	if webhook == "" {
		return nil, errors.New("lark webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := &Lark{
		webhook:    webhook,
		support:    cfg.SupportAgents,
		admins:     cfg.AdminAgents,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

type larkResponse struct {
	StatusCode *int   `json:"StatusCode"`
	Code       *int   `json:"code"`
	Msg        string `json:"msg"`
}

func (l *Lark) NotifyEscalation(ctx context.Context, alert contractx.EscalationAlert) error {
	card := escalationCard(alert, pick(l.support))
	return l.send(ctx, "escalation", card)
}

func (l *Lark) NotifyCourseChange(ctx context.Context, alert contractx.CourseChangeAlert) error {
	card := courseChangeCard(alert, pick(l.admins))
	return l.send(ctx, "course_change", card)
}

func (l *Lark) send(ctx context.Context, kind string, card map[string]any) error {
	if l.publisher != nil {
		id, err := l.publisher.PublishJSON(ctx, l.webhook, card)
		if err != nil {
			return fmt.Errorf("queue lark %s card: %w", kind, err)
		}
		logx.Info().Str("kind", kind).Str("message_id", id).Msg("lark card queued")
		return nil
	}

	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal lark card: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.webhook, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build lark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post lark webhook: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read lark response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("lark webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out larkResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode lark response: %w", err)
	}
	if (out.StatusCode != nil && *out.StatusCode != 0) || (out.Code != nil && *out.Code != 0) {
		return fmt.Errorf("lark rejected %s card: %s", kind, out.Msg)
	}
	logx.Info().Str("kind", kind).Msg("lark card sent")
	return nil
}

func pick(names []string) string {
	var live []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			live = append(live, n)
		}
	}
	if len(live) == 0 {
		return "CSKH"
	}
	return live[rand.IntN(len(live))]
}
