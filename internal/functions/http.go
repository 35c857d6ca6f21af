package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/pipeline"
)

// TypeHTTP — тип функции вебхука.
const TypeHTTP = "http"

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultMaxRetries  = 3
	defaultBackoff     = 200 * time.Millisecond
	maxResponseBody    = 1 * 1024 * 1024 // 1 MB
)

// httpConfig — распарсенная конфигурация вебхука.
type httpConfig struct {
	Method     string
	URL        string
	Headers    map[string]string
	MaxRetries int
	Backoff    time.Duration
}

// WebhookPayload — тело запроса вебхука.
type WebhookPayload struct {
	Function   string         `json:"function"`
	DocumentID uuid.UUID      `json:"document_id"`
	Title      string         `json:"title"`
	Pages      int            `json:"pages"`
	Duplex     bool           `json:"duplex"`
	Properties map[string]any `json:"properties,omitempty"`
}

// HTTPError — ответ вебхука с кодом ошибки.
type HTTPError struct {
	StatusCode int
	Status     string
}

// Error реализует интерфейс error.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// httpFactory — вебхук: отправляет сводку документа на внешний URL.
//
// 5xx и транспортные ошибки повторяются с экспоненциальной задержкой,
// 4xx — нет. Код ответа записывается в property "<name>.status_code".
//
// Конфигурация:
//
//	url: https://hooks.example.com/printed   // обязателен, может быть шаблоном
//	method: POST
//	headers:
//	  Authorization: "Bearer {{ .Props.token }}"
//	max_retries: 3
//	backoff: "200ms"
func httpFactory(client *http.Client) Factory {
	return func(def engine.FunctionDef, _ *pipeline.Registry) (pipeline.WorkFunc, error) {
		cfg, err := parseHTTPConfig(def.Config)
		if err != nil {
			return nil, err
		}
		statusKey := def.Name + ".status_code"

		return func(ctx context.Context, s *pipeline.Stage) error {
			doc := s.Document()
			props := s.Properties()
			data := &engine.TemplateData{Title: doc.Title, Fields: doc.Fields, Props: props, Pages: doc.PageCount()}

			url, err := engine.Render(cfg.URL, data)
			if err != nil {
				return fmt.Errorf("render url: %w", err)
			}
			headers, err := engine.RenderStrings(cfg.Headers, data)
			if err != nil {
				return fmt.Errorf("render headers: %w", err)
			}

			body, err := json.Marshal(WebhookPayload{
				Function:   s.Name(),
				DocumentID: doc.ID,
				Title:      doc.Title,
				Pages:      doc.PageCount(),
				Duplex:     doc.Duplex,
				Properties: jsonProperties(props),
			})
			if err != nil {
				return fmt.Errorf("marshal payload: %w", err)
			}

			backoff := retry.WithMaxRetries(uint64(cfg.MaxRetries), retry.NewExponential(cfg.Backoff))

			attempt := 0
			var status int
			err = retry.Do(ctx, backoff, func(ctx context.Context) error {
				attempt++
				if s.IsCanceled() {
					return ErrCanceled
				}

				code, err := sendWebhook(ctx, client, cfg.Method, url, headers, body)
				if err != nil {
					s.Logger().Warn("webhook attempt failed", "attempt", attempt, "error", err)
					if code == 0 || code >= http.StatusInternalServerError {
						return retry.RetryableError(err)
					}
					return err
				}
				status = code
				return nil
			})
			if err != nil {
				return fmt.Errorf("webhook %s: %w", url, err)
			}

			s.SetProperty(statusKey, status)
			s.Logger().Info("webhook delivered", "status", status, "attempts", attempt)
			return nil
		}, nil
	}
}

func parseHTTPConfig(config map[string]any) (*httpConfig, error) {
	cfg := &httpConfig{
		Method:     strings.ToUpper(GetConfigString(config, "method")),
		URL:        GetConfigString(config, "url"),
		Headers:    GetConfigMapString(config, "headers"),
		MaxRetries: GetConfigInt(config, "max_retries", defaultMaxRetries),
		Backoff:    GetConfigDuration(config, "backoff", defaultBackoff),
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidConfig, TypeHTTP)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	return cfg, nil
}

// sendWebhook выполняет один запрос. Возвращает код ответа (0 — транспортная ошибка).
func sendWebhook(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return -1, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp.StatusCode, nil
}

// jsonProperties оставляет только значения, которые можно отправить в JSON.
func jsonProperties(props map[string]any) map[string]any {
	result := make(map[string]any, len(props))
	for key, value := range props {
		switch value.(type) {
		case string, bool, int, int64, float64, []string, map[string]any, []any:
			result[key] = value
		}
	}
	return result
}
