package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskResponse — задача из API.
type TaskResponse struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	TargetURL   string          `json:"target_url"`
	Payload     map[string]any  `json:"payload,omitempty"`
	ProfileKey  string          `json:"profile_key,omitempty"`
	Status      string          `json:"status"`
	Result      *ResultResponse `json:"result,omitempty"`
	Transitions []Transition    `json:"transitions,omitempty"`
	CreatedAt   string          `json:"created_at"`
	StartedAt   string          `json:"started_at,omitempty"`
	CompletedAt string          `json:"completed_at,omitempty"`
}

// ResultResponse — итог выполнения задачи.
type ResultResponse struct {
	Success   bool         `json:"success"`
	Outcome   string       `json:"outcome"`
	Reference string       `json:"reference,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail — конверт ошибки задачи.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Transition — запись истории переходов.
type Transition struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// StatusChange — уведомление о смене статуса из SSE-потока.
type StatusChange struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// EventResponse — событие задачи из API.
type EventResponse struct {
	Seq       int            `json:"seq"`
	Type      string         `json:"type"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// StatsResponse — агрегированная статистика из API.
type StatsResponse struct {
	CountByStatus map[string]int `json:"count_by_status"`
	Total         int            `json:"total"`
	SuccessRate   float64        `json:"success_rate"`
	AvgDurationMS int64          `json:"avg_duration_ms"`
}

// --- Request types ---

// CreateTaskRequest — создание задачи.
type CreateTaskRequest struct {
	TargetURL  string         `json:"target_url"`
	Payload    map[string]any `json:"payload"`
	ProfileKey string         `json:"profile_key,omitempty"`
}

// ListTasksOpts — параметры фильтрации задач.
type ListTasksOpts struct {
	Status string
	Limit  int
	Offset int
}

// StreamMessage — сообщение SSE-потока /events/stream.
type StreamMessage struct {
	Event string // имя SSE-события: status, event, transition
	Data  json.RawMessage
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

// Client — HTTP-клиент для Tramita API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// ListTasks возвращает страницу задач с фильтрацией.
func (c *Client) ListTasks(opts ListTasksOpts) ([]TaskResponse, int, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}

	var tasks []TaskResponse
	total, err := c.list("/api/v1/tasks", params, &tasks)
	return tasks, total, err
}

// CreateTask создаёт новую задачу.
func (c *Client) CreateTask(req CreateTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks", req, &task)
	return &task, err
}

// GetTask возвращает задачу по ID.
func (c *Client) GetTask(id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get("/api/v1/tasks/"+id, &task)
	return &task, err
}

// CancelTask отменяет задачу.
func (c *Client) CancelTask(id string) (*TaskResponse, error) {
	return c.command(id, "cancel")
}

// PauseTask приостанавливает задачу.
func (c *Client) PauseTask(id string) (*TaskResponse, error) {
	return c.command(id, "pause")
}

// ResumeTask возобновляет задачу.
func (c *Client) ResumeTask(id string) (*TaskResponse, error) {
	return c.command(id, "resume")
}

// TakeControl передаёт управление страницей человеку.
func (c *Client) TakeControl(id string) (*TaskResponse, error) {
	return c.command(id, "take-control")
}

func (c *Client) command(id, verb string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post("/api/v1/tasks/"+id+"/"+verb, nil, &task)
	return &task, err
}

// ListEvents возвращает события задачи.
func (c *Client) ListEvents(id string) ([]EventResponse, error) {
	var events []EventResponse
	_, err := c.list("/api/v1/tasks/"+id+"/events", nil, &events)
	return events, err
}

// GetStats возвращает статистику задач.
func (c *Client) GetStats() (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

// StreamEvents подключается к SSE-потоку задачи и вызывает fn для
// каждого сообщения. Возвращается, когда сервер закрывает поток
// (задача финальна) или ctx отменён.
func (c *Client) StreamEvents(ctx context.Context, id string, fn func(StreamMessage) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/tasks/"+id+"/events/stream", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	// Поток живёт до финального статуса, общий таймаут не подходит.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var msg StreamMessage
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			msg.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			msg.Data = json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if msg.Event != "" || len(msg.Data) > 0 {
				if err := fn(msg); err != nil {
					return err
				}
			}
			msg = StreamMessage{}
		}
	}
	return scanner.Err()
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) (int, error) {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return 0, err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return lr.Total, json.Unmarshal(lr.Data, result)
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

	if resp.StatusCode == http.StatusNoContent {
		return nil
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

	req.Header.Set("Authorization", "Bearer "+c.token)
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
