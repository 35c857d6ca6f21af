package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, клиент не зависит от internal/api) ---

// JobResponse — job из API.
type JobResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Document struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Pages  int    `json:"pages"`
		Duplex bool   `json:"duplex"`
	} `json:"document"`
	Functions []string `json:"functions,omitempty"`
	Executed  []string `json:"executed,omitempty"`
	Progress  struct {
		Max     int    `json:"max"`
		Value   int    `json:"value"`
		Percent int    `json:"percent"`
		Message string `json:"message,omitempty"`
	} `json:"progress"`
	Source         string `json:"source,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	Error          string `json:"error,omitempty"`
	StartedAt      string `json:"started_at,omitempty"`
	FinishedAt     string `json:"finished_at,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// StageResponse — запись журнала этапа из API.
type StageResponse struct {
	Index      int    `json:"index"`
	Function   string `json:"function"`
	Order      int    `json:"order"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// FunctionResponse — функция реестра из API.
type FunctionResponse struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// --- Request types ---

// SubmitJobRequest — отправка документа на печать.
// Document передаётся как есть, чтобы не терять поля документа.
type SubmitJobRequest struct {
	Document       json.RawMessage `json:"document"`
	Functions      []string        `json:"functions,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Source         string          `json:"source,omitempty"`
}

// ListJobsOpts — параметры фильтрации jobs.
type ListJobsOpts struct {
	Status string
	Source string
	Limit  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Printflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Jobs ---

// SubmitJob отправляет документ на печать.
func (c *Client) SubmitJob(req SubmitJobRequest) (*JobResponse, error) {
	var job JobResponse
	err := c.post("/api/v1/jobs", req, &job)
	return &job, err
}

// ListJobs возвращает список jobs с фильтрацией.
func (c *Client) ListJobs(opts ListJobsOpts) ([]JobResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Source != "" {
		params.Set("source", opts.Source)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var jobs []JobResponse
	err := c.list("/api/v1/jobs", params, &jobs)
	return jobs, err
}

// GetJob возвращает job по ID.
func (c *Client) GetJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/v1/jobs/"+url.PathEscape(id), &job)
	return &job, err
}

// ListStages возвращает журнал этапов job.
func (c *Client) ListStages(jobID string) ([]StageResponse, error) {
	var stages []StageResponse
	err := c.list("/api/v1/jobs/"+url.PathEscape(jobID)+"/stages", nil, &stages)
	return stages, err
}

// CancelJob отменяет job.
func (c *Client) CancelJob(id, reason string) (*JobResponse, error) {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}

	var job JobResponse
	err := c.post("/api/v1/jobs/"+url.PathEscape(id)+"/cancel", body, &job)
	return &job, err
}

// --- Functions ---

// ListFunctions возвращает функции реестра API в порядке выполнения.
func (c *Client) ListFunctions() ([]FunctionResponse, error) {
	var fns []FunctionResponse
	err := c.list("/api/v1/functions", nil, &fns)
	return fns, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
