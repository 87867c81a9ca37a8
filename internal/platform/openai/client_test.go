package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yungbote/mealsense-backend/internal/pkg/httpx"
	"github.com/yungbote/mealsense-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(logger.NewNop(), Config{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.NewNop(), Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestRetrieveModel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/models/gpt-4o" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}
		_, _ = w.Write([]byte(`{"id":"gpt-4o","owned_by":"system"}`))
	})
	m, err := c.RetrieveModel(context.Background(), "gpt-4o")
	if err != nil || m.ID != "gpt-4o" {
		t.Fatalf("model=%+v err=%v", m, err)
	}
}

func TestRetrieveModelForbidden(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"no access"}}`))
	})
	_, err := c.RetrieveModel(context.Background(), "gpt-4-vision-preview")
	if !httpx.IsPermissionDenied(err) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestCreateChatCompletion(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"c1","model":"gpt-4o","choices":[{"message":{"content":"{\"description\":\"x\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":900,"completion_tokens":120,"total_tokens":1020}}`))
	})
	temp := 0.2
	resp, err := c.CreateChatCompletion(context.Background(), ChatRequest{
		Model:        "gpt-4o",
		System:       "sys",
		User:         "analyze",
		ImageDataURL: "data:image/png;base64,AAAA",
		MaxTokens:    1500,
		Temperature:  &temp,
		JSONMode:     true,
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion: %v", err)
	}
	if resp.Content != `{"description":"x"}` || resp.Usage.TotalTokens != 1020 {
		t.Fatalf("resp=%+v", resp)
	}

	if got["max_tokens"].(float64) != 1500 || got["temperature"].(float64) != 0.2 {
		t.Fatalf("body params: %v", got)
	}
	if rf, _ := got["response_format"].(map[string]any); rf["type"] != "json_object" {
		t.Fatalf("response_format: %v", got["response_format"])
	}
	msgs := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages: %v", msgs)
	}
	parts := msgs[1].(map[string]any)["content"].([]any)
	img := parts[1].(map[string]any)["image_url"].(map[string]any)
	if img["detail"] != "high" || !strings.HasPrefix(img["url"].(string), "data:image/png") {
		t.Fatalf("image part: %v", img)
	}
}

func TestCreateChatCompletionNoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	if _, err := c.CreateChatCompletion(context.Background(), ChatRequest{Model: "gpt-4o"}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestExtractUsageFromRaw(t *testing.T) {
	in, out := extractUsageFromRaw([]byte(`{"usage":{"input_tokens":3,"output_tokens":4}}`))
	if in != 3 || out != 4 {
		t.Fatalf("in=%d out=%d", in, out)
	}
	if in, out := extractUsageFromRaw([]byte(`not json`)); in != 0 || out != 0 {
		t.Fatalf("garbage should yield zero usage")
	}
}
