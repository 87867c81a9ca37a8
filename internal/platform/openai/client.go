package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/mealsense-backend/internal/observability"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

const (
	defaultBaseURL   = "https://api.openai.com"
	chatEndpoint     = "/v1/chat/completions"
	modelsEndpoint   = "/v1/models/"
	maxErrorBodySize = 2048
)

// Client is the subset of the OpenAI API used for meal analysis. Every call
// is attempted exactly once.
type Client interface {
	RetrieveModel(ctx context.Context, id string) (Model, error)
	CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type Model struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
}

// ChatRequest describes a single-turn vision request: a system prompt, a user
// text part and an optional image sent as a data URL.
type ChatRequest struct {
	Model        string
	System       string
	User         string
	ImageDataURL string
	ImageDetail  string
	MaxTokens    int
	Temperature  *float64
	JSONMode     bool
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Usage        Usage
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &client{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *client) RetrieveModel(ctx context.Context, id string) (Model, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Model{}, fmt.Errorf("model id required")
	}
	var out Model
	if err := c.do(ctx, http.MethodGet, modelsEndpoint+url.PathEscape(id), id, nil, &out); err != nil {
		return Model{}, err
	}
	return out, nil
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequestBody struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    *float64          `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func buildChatBody(req ChatRequest) chatRequestBody {
	parts := []chatContentPart{}
	if strings.TrimSpace(req.User) != "" {
		parts = append(parts, chatContentPart{Type: "text", Text: req.User})
	}
	if req.ImageDataURL != "" {
		detail := req.ImageDetail
		if detail == "" {
			detail = "high"
		}
		parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &chatImageURL{URL: req.ImageDataURL, Detail: detail}})
	}
	body := chatRequestBody{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: parts})
	if req.JSONMode {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}
	return body
}

func (c *client) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return ChatResponse{}, fmt.Errorf("model required")
	}
	var out chatResponseBody
	if err := c.do(ctx, http.MethodPost, chatEndpoint, req.Model, buildChatBody(req), &out); err != nil {
		return ChatResponse{}, err
	}
	if len(out.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("openai: response had no choices")
	}
	return ChatResponse{
		ID:           out.ID,
		Model:        out.Model,
		Content:      out.Choices[0].Message.Content,
		FinishReason: out.Choices[0].FinishReason,
		Usage:        out.Usage,
	}, nil
}

func (c *client) do(ctx context.Context, method, path, model string, body any, out any) error {
	start := time.Now()
	resp, raw, err := c.doOnce(ctx, method, path, body)
	if metrics := observability.Current(); metrics != nil {
		in, outTokens := 0, 0
		if err == nil {
			in, outTokens = extractUsageFromRaw(raw)
		}
		metrics.ObserveLLMRequest(model, endpointLabel(path), statusFromRespErr(resp, err), time.Since(start), in, outTokens)
	}
	if err != nil {
		c.log.Warn("OpenAI request failed", "path", path, "model", model, "error", err.Error())
		return err
	}
	if out == nil {
		return nil
	}
	if uErr := json.Unmarshal(raw, out); uErr != nil {
		return fmt.Errorf("openai decode error: %w", uErr)
	}
	return nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(raw)
		if len(msg) > maxErrorBodySize {
			msg = msg[:maxErrorBodySize]
		}
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: msg}
	}
	return resp, raw, nil
}

// model ids would blow up metric cardinality
func endpointLabel(path string) string {
	if strings.HasPrefix(path, modelsEndpoint) {
		return modelsEndpoint + "{id}"
	}
	return path
}

func extractUsageFromRaw(raw []byte) (int, int) {
	if len(raw) == 0 {
		return 0, 0
	}
	var payload struct {
		Usage map[string]any `json:"usage"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Usage == nil {
		return 0, 0
	}
	in := intFromAny(payload.Usage["prompt_tokens"])
	out := intFromAny(payload.Usage["completion_tokens"])
	if in == 0 && out == 0 {
		in = intFromAny(payload.Usage["input_tokens"])
		out = intFromAny(payload.Usage["output_tokens"])
	}
	return in, out
}

func intFromAny(v any) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return 0
}

func statusFromRespErr(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return strconv.Itoa(httpErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if err != nil {
		return "error"
	}
	return "unknown"
}
