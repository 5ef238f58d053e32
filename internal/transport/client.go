// Package transport сохраняет отчет на диск и отправляет его коллектору
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout ограничивает отправку одного отчета
const DefaultTimeout = 30 * time.Second

// maxErrorBody ограничивает часть ответа, попадающую в текст ошибки
const maxErrorBody = 512

// Client отправляет отчеты коллектору по HTTP
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOptions настраивает HTTP клиент
type ClientOptions struct {
	URL     string
	Timeout time.Duration
	// Insecure отключает проверку TLS сертификата коллектора
	Insecure bool
}

// NewClient создает новый клиент коллектора
func NewClient(options ClientOptions, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if options.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		url: options.URL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

// Send выполняет один POST запрос с телом отчета, без повторов
func (c *Client) Send(ctx context.Context, payload string) error {
	c.logger.Debug("Sending report",
		zap.String("url", c.url),
		zap.Int("bytes", len(payload)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug("Report accepted",
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
