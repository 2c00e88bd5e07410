package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

const (
	maxResponseSizeBytes = 64 << 10
	// tokens are refreshed this long before Lark says they expire
	tokenSkew = 5 * time.Minute
)

var vnZone = time.FixedZone("ICT", 7*60*60)

type Config struct {
	BaseURL      string        `split_words:"true" default:"https://open.larksuite.com/open-apis"`
	AppID        string        `split_words:"true"`
	AppSecret    string        `split_words:"true"`
	BaseID       string        `split_words:"true"`
	TableID      string        `split_words:"true"`
	OrderTableID string        `split_words:"true"`
	Timeout      time.Duration `split_words:"true" default:"10s"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.AppID) != "" && strings.TrimSpace(c.AppSecret) != "" && strings.TrimSpace(c.BaseID) != ""
}

// Bitable appends complaint and order rows to Lark Bitable tables.
type Bitable struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewBitable(cfg Config) (*Bitable, error) {
	if !cfg.Enabled() {
		return nil, errors.New("lark app id, app secret and base id are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bitable{
		cfg:        cfg,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}, nil
}

// WithHTTPClient swaps the transport, mainly for tests.
func (b *Bitable) WithHTTPClient(hc *http.Client) *Bitable {
	if hc != nil {
		b.httpClient = hc
	}
	return b
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type tokenResponse struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Token  string `json:"tenant_access_token"`
	Expire int    `json:"expire"`
}

func (b *Bitable) AppendComplaint(ctx context.Context, row contractx.ComplaintRow) error {
	if strings.TrimSpace(b.cfg.TableID) == "" {
		return errors.New("lark complaint table id is not configured")
	}
	at := row.At
	if at.IsZero() {
		at = b.now()
	}
	at = at.In(vnZone)
	fields := map[string]any{
		"Student ID":     row.CustomerID,
		"Chat ID":        row.ChatID,
		"Tên":            row.Name,
		"SĐT":            row.Phone,
		"Nền tảng":       row.Platform,
		"Lịch sử chat":   row.ChatHistories,
		"Tóm tắt":        row.Summary,
		"Loại":           row.Type,
		"Mức độ ưu tiên": row.Priority,
		"Ngày":           at.Format("02-01-2006"),
		"Giờ":            at.Format("15:04:05"),
	}
	return b.appendRecord(ctx, b.cfg.TableID, fields)
}

func (b *Bitable) AppendOrder(ctx context.Context, row contractx.OrderRow) error {
	if strings.TrimSpace(b.cfg.OrderTableID) == "" {
		return errors.New("lark order table id is not configured")
	}
	fields := map[string]any{
		"Mã đơn":          row.OrderID,
		"Người nhận":      row.ReceiverName,
		"SĐT":             row.ReceiverPhone,
		"Email":           row.ReceiverEmail,
		"Khóa học":        row.CourseNames,
		"Ngày khai giảng": row.AdmissionDay,
		"Tổng cộng":       row.GrandTotal,
		"Thanh toán":      row.Payment,
	}
	return b.appendRecord(ctx, b.cfg.OrderTableID, fields)
}

func (b *Bitable) appendRecord(ctx context.Context, tableID string, fields map[string]any) error {
	token, err := b.tenantToken(ctx)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/bitable/v1/apps/%s/tables/%s/records", b.baseURL, b.cfg.BaseID, tableID)

	var out struct {
		Record struct {
			RecordID string `json:"record_id"`
		} `json:"record"`
	}
	if err := b.post(ctx, endpoint, token, map[string]any{"fields": fields}, &out); err != nil {
		return fmt.Errorf("append bitable record: %w", err)
	}
	logx.Info().Str("table_id", tableID).Str("record_id", out.Record.RecordID).Msg("bitable record appended")
	return nil
}

func (b *Bitable) tenantToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.token != "" && b.now().Before(b.expiresAt) {
		return b.token, nil
	}

	payload, err := json.Marshal(map[string]string{"app_id": b.cfg.AppID, "app_secret": b.cfg.AppSecret})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/auth/v3/tenant_access_token/internal", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build lark token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	raw, err := b.do(req)
	if err != nil {
		return "", fmt.Errorf("fetch tenant access token: %w", err)
	}
	var out tokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode tenant access token: %w", err)
	}
	if out.Code != 0 || out.Token == "" {
		return "", fmt.Errorf("lark token error %d: %s", out.Code, out.Msg)
	}

	b.token = out.Token
	b.expiresAt = b.now().Add(time.Duration(out.Expire)*time.Second - tokenSkew)
	return b.token, nil
}

func (b *Bitable) post(ctx context.Context, endpoint, token string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	raw, err := b.do(req)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode lark response: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("lark error %d: %s", env.Code, env.Msg)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (b *Bitable) do(req *http.Request) ([]byte, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
