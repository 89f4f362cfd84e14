package chanengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jinford/bsp-scan/internal/core/scan"
)

const calculatePath = "/api/chan/calculate"

// Config は解析エンジンへの接続設定
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client は缠论計算サービスの HTTP クライアント
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// コンパイル時の型チェック
var _ scan.Engine = (*Client)(nil)

type clientOptions struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithHTTPClient は HTTP クライアントを差し替える
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithClientLogger はロガーを設定する
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// NewClient は新しい Client を作成する
func NewClient(cfg Config, opts ...ClientOption) *Client {
	options := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.httpClient == nil {
		options.httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: options.httpClient,
		logger:     options.logger,
	}
}

type calculateRequest struct {
	Code      string `json:"code"`
	KlineType string `json:"kline_type"`
	Limit     int    `json:"limit"`
}

type bsPoint struct {
	Type   string  `json:"type"`
	Time   string  `json:"time"`
	Value  float64 `json:"value"`
	KluIdx int     `json:"klu_idx"`
	IsBuy  bool    `json:"is_buy"`
}

type calculateResponse struct {
	Code     string    `json:"code"`
	Name     *string   `json:"name"`
	BSPoints []bsPoint `json:"bs_points"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Analyze は1銘柄の缠论計算を依頼し、買売点を返す
func (c *Client) Analyze(ctx context.Context, code string, kline scan.KlineType, limit int) (*scan.Analysis, error) {
	body, err := json.Marshal(calculateRequest{Code: code, KlineType: string(kline), Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+calculatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chan engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Detail != "" {
			return nil, fmt.Errorf("chan engine returned status %d: %s", resp.StatusCode, e.Detail)
		}
		return nil, fmt.Errorf("chan engine returned status %d", resp.StatusCode)
	}

	var out calculateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode chan engine response: %w", err)
	}

	analysis := &scan.Analysis{
		Code:   code,
		Points: make([]scan.DecisionPoint, 0, len(out.BSPoints)),
	}
	if out.Name != nil {
		analysis.Name = *out.Name
	}
	for _, p := range out.BSPoints {
		analysis.Points = append(analysis.Points, scan.DecisionPoint{
			IsBuy: p.IsBuy,
			Tags:  ParseTags(p.Type),
			Time:  p.Time,
			Value: p.Value,
		})
	}

	c.logger.Debug("缠论計算が完了しました", "code", code, "points", len(analysis.Points))
	return analysis, nil
}
