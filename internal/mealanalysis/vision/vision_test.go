package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/yungbote/mealsense-backend/internal/domain/meal"
	"github.com/yungbote/mealsense-backend/internal/platform/openai"
)

type fakeClient struct {
	probeErr error
	chatErr  error
	content  string
	probed   []string
	requests []openai.ChatRequest
}

func (f *fakeClient) RetrieveModel(_ context.Context, id string) (openai.Model, error) {
	f.probed = append(f.probed, id)
	if f.probeErr != nil {
		return openai.Model{}, f.probeErr
	}
	return openai.Model{ID: id}, nil
}

func (f *fakeClient) CreateChatCompletion(_ context.Context, req openai.ChatRequest) (openai.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.chatErr != nil {
		return openai.ChatResponse{}, f.chatErr
	}
	return openai.ChatResponse{
		Content: f.content,
		Usage:   openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func TestClassifyProbeError(t *testing.T) {
	tests := []struct {
		err  error
		want ProbeFailure
	}{
		{nil, ProbeOK},
		{&openai.HTTPError{StatusCode: 403}, ProbePermissionDenied},
		{fmt.Errorf("probe: %w", &openai.HTTPError{StatusCode: 401}), ProbePermissionDenied},
		{&openai.HTTPError{StatusCode: 404}, ProbeNotFound},
		{&openai.HTTPError{StatusCode: 500}, ProbeOther},
		{context.DeadlineExceeded, ProbeOther},
	}
	for _, tt := range tests {
		if got := ClassifyProbeError(tt.err); got != tt.want {
			t.Fatalf("ClassifyProbeError(%v): want=%q got=%q", tt.err, tt.want, got)
		}
	}
}

func TestAnalyzeUsesConfiguredModel(t *testing.T) {
	fc := &fakeClient{content: `{"description":"salad"}`}
	a := New(nil, fc, Config{Model: "m1", FallbackModel: "m2"})
	res := a.Analyze(context.Background(), []byte{1, 2, 3}, "image/png", []string{"Weight Loss"}, []string{"vegan"})
	if !res.Success || res.ModelUsed != "m1" || res.UsedFallbackModel {
		t.Fatalf("result: %+v", res)
	}
	if res.Usage == nil || res.Usage.TotalTokens != 15 {
		t.Fatalf("usage: %+v", res.Usage)
	}
	req := fc.requests[0]
	if !req.JSONMode || req.ImageDetail != "high" || req.MaxTokens != 1500 {
		t.Fatalf("request: %+v", req)
	}
	if !strings.HasPrefix(req.ImageDataURL, "data:image/png;base64,") {
		t.Fatalf("data url: %s", req.ImageDataURL)
	}
	if !strings.Contains(req.User, "Weight Loss") || !strings.Contains(req.User, "vegan") {
		t.Fatalf("user prompt: %s", req.User)
	}
}

func TestAnalyzeFallsBackForEveryProbeFailure(t *testing.T) {
	for _, perr := range []error{
		&openai.HTTPError{StatusCode: 403},
		&openai.HTTPError{StatusCode: 404},
		errors.New("connection reset"),
	} {
		fc := &fakeClient{probeErr: perr, content: "{}"}
		res := New(nil, fc, Config{Model: "m1", FallbackModel: "m2"}).Analyze(context.Background(), nil, "", nil, nil)
		if !res.Success || res.ModelUsed != "m2" || !res.UsedFallbackModel {
			t.Fatalf("probe error %v: %+v", perr, res)
		}
		if fc.requests[0].Model != "m2" {
			t.Fatalf("request model: %s", fc.requests[0].Model)
		}
	}
}

func TestAnalyzeForcePinsConfiguredModel(t *testing.T) {
	fc := &fakeClient{probeErr: &openai.HTTPError{StatusCode: 403, Body: "forbidden"}, content: "{}"}
	res := New(nil, fc, Config{Model: "m1", FallbackModel: "m2", Force: true}).Analyze(context.Background(), []byte{1}, "image/jpeg", nil, nil)
	if res.Success || res.ModelUsed != meal.ModelUsedError || res.UsedFallbackModel {
		t.Fatalf("result: %+v", res)
	}
	if res.ProbeFailure != ProbePermissionDenied || !errors.Is(res.Err, ErrModelUnavailable) {
		t.Fatalf("force result: %+v", res)
	}
	var herr *openai.HTTPError
	if !errors.As(res.Err, &herr) || herr.StatusCode != 403 {
		t.Fatalf("availability error should stay inspectable: %v", res.Err)
	}
	if len(fc.requests) != 0 {
		t.Fatalf("no completion should be sent, got %d", len(fc.requests))
	}
}

func TestAnalyzeFailure(t *testing.T) {
	fc := &fakeClient{probeErr: &openai.HTTPError{StatusCode: 403}, chatErr: &openai.HTTPError{StatusCode: 403}}
	res := New(nil, fc, Config{}).Analyze(context.Background(), []byte{1}, "image/jpeg", nil, nil)
	if res.Success || res.ModelUsed != meal.ModelUsedError || res.Err == nil {
		t.Fatalf("result: %+v", res)
	}
	if res.ProbeFailure != ProbePermissionDenied || !res.UsedFallbackModel {
		t.Fatalf("probe failure should be recorded: %+v", res)
	}
}

func TestAnalyzeEmptyContent(t *testing.T) {
	res := New(nil, &fakeClient{content: "  "}, Config{}).Analyze(context.Background(), nil, "", nil, nil)
	if res.Success || !errors.Is(res.Err, ErrEmptyResponse) {
		t.Fatalf("result: %+v", res)
	}
}

func TestNewLazyBuildsClientOnce(t *testing.T) {
	calls := 0
	fc := &fakeClient{content: "{}"}
	a := NewLazy(nil, func() (openai.Client, error) {
		calls++
		return fc, nil
	}, Config{})
	if calls != 0 {
		t.Fatalf("factory must not run before first use")
	}
	a.Analyze(context.Background(), nil, "", nil, nil)
	a.Analyze(context.Background(), nil, "", nil, nil)
	if calls != 1 {
		t.Fatalf("factory calls: %d", calls)
	}
}

func TestNewLazyFactoryError(t *testing.T) {
	a := NewLazy(nil, func() (openai.Client, error) { return nil, errors.New("missing OPENAI_API_KEY") }, Config{})
	res := a.Analyze(context.Background(), nil, "", nil, nil)
	if res.Success || res.ModelUsed != meal.ModelUsedError {
		t.Fatalf("result: %+v", res)
	}
}

func TestBuildUserPromptWithoutGoals(t *testing.T) {
	if got := BuildUserPrompt(nil, []string{" "}); got != "Analyze this meal photo." {
		t.Fatalf("prompt: %q", got)
	}
}
