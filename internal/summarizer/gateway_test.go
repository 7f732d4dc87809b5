package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/briefly/internal/metrics"
	"github.com/hitoshi/briefly/internal/model"
	"github.com/hitoshi/briefly/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sashabaranov/go-openai"
)

// mockChatClient はChatClientのモック実装。
type mockChatClient struct {
	createFn func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	lastReq  openai.ChatCompletionRequest
}

func (m *mockChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.lastReq = req
	return m.createFn(ctx, req)
}

func replyWith(content string) func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
			},
		}, nil
	}
}

func testConfig() Config {
	return Config{
		APIKey:       "test-key",
		GeneralModel: "open-mistral-nemo",
		CodeModel:    "open-codestral-mamba",
		Timeout:      5 * time.Second,
	}
}

func newTestGateway(client ChatClient, cfg Config) *Gateway {
	return NewGateway(client, cfg, security.NewSummarySanitizer(), metrics.NewCollector(prometheus.NewRegistry()))
}

func assertCode(t *testing.T, err error, want string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != want {
		t.Errorf("Code = %q, want %q", apiErr.Code, want)
	}
}

// TestSummarize_ModelSelection はコンテンツ種別ごとにモデルが選択されることを検証する。
func TestSummarize_ModelSelection(t *testing.T) {
	tests := []struct {
		ct    model.ContentType
		model string
	}{
		{model.ContentTypeCode, "open-codestral-mamba"},
		{model.ContentTypeResearch, "open-mistral-nemo"},
		{model.ContentTypeDocumentation, "open-mistral-nemo"},
	}

	for _, tt := range tests {
		t.Run(string(tt.ct), func(t *testing.T) {
			client := &mockChatClient{createFn: replyWith(`{"Title":"T","Summary":"B"}`)}
			g := newTestGateway(client, testConfig())

			res, err := g.Summarize(context.Background(), tt.ct, "input")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.lastReq.Model != tt.model {
				t.Errorf("Model = %q, want %q", client.lastReq.Model, tt.model)
			}
			if res.Model != tt.model {
				t.Errorf("Result.Model = %q, want %q", res.Model, tt.model)
			}
		})
	}
}

// TestSummarize_RequestShape はメッセージ構成とJSON応答形式の指定を検証する。
func TestSummarize_RequestShape(t *testing.T) {
	client := &mockChatClient{createFn: replyWith(`{"Title":"T","Summary":"B"}`)}
	g := newTestGateway(client, testConfig())

	if _, err := g.Summarize(context.Background(), model.ContentTypeCode, "print('hi')"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := client.lastReq
	if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Errorf("ResponseFormat = %+v, want json_object", req.ResponseFormat)
	}
	if len(req.Messages) != 4 {
		t.Fatalf("len(Messages) = %d, want 4", len(req.Messages))
	}
	for i := 0; i < 3; i++ {
		if req.Messages[i].Role != openai.ChatMessageRoleSystem {
			t.Errorf("Messages[%d].Role = %q, want system", i, req.Messages[i].Role)
		}
	}
	if !strings.Contains(req.Messages[0].Content, "code summarisation tool") {
		t.Errorf("system prompt = %q, want code prompt", req.Messages[0].Content)
	}
	if !strings.Contains(req.Messages[1].Content, `"Title"`) || !strings.Contains(req.Messages[1].Content, `"Summary"`) {
		t.Errorf("format instruction missing fields: %q", req.Messages[1].Content)
	}
	if !strings.Contains(req.Messages[2].Content, "Do not reuse this content") {
		t.Errorf("few-shot example not marked: %q", req.Messages[2].Content)
	}
	last := req.Messages[3]
	if last.Role != openai.ChatMessageRoleUser || last.Content != "print('hi')" {
		t.Errorf("last message = %+v, want user text", last)
	}
}

// TestSummarize_ParsesJSON はJSON応答がそのまま結果になることを検証する。
func TestSummarize_ParsesJSON(t *testing.T) {
	client := &mockChatClient{createFn: replyWith(`{"Title":"T","Summary":"B"}`)}
	g := newTestGateway(client, testConfig())

	res, err := g.Summarize(context.Background(), model.ContentTypeCode, "print('hi')")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "T" || res.Body != "B" {
		t.Errorf("result = {%q, %q}, want {T, B}", res.Title, res.Body)
	}
	if res.Stage != StageJSON {
		t.Errorf("Stage = %q, want json", res.Stage)
	}
}

// TestSummarize_MarkerFallback はマーカー分割へのフォールバックを検証する。
func TestSummarize_MarkerFallback(t *testing.T) {
	client := &mockChatClient{createFn: replyWith("**Title:** Report\n**Summary:** Key findings listed.")}
	g := newTestGateway(client, testConfig())

	res, err := g.Summarize(context.Background(), model.ContentTypeResearch, "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "Report" || res.Body != "Key findings listed" {
		t.Errorf("result = {%q, %q}", res.Title, res.Body)
	}
	if res.Stage != StageMarkers {
		t.Errorf("Stage = %q, want markers", res.Stage)
	}
}

// TestSummarize_SanitizesOutput はAI出力がサニタイズされることを検証する。
func TestSummarize_SanitizesOutput(t *testing.T) {
	client := &mockChatClient{createFn: replyWith(`{"Title":"<b>Bold</b> title","Summary":"<p>ok</p><script>alert(1)</script>"}`)}
	g := newTestGateway(client, testConfig())

	res, err := g.Summarize(context.Background(), model.ContentTypeDocumentation, "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "Bold title" {
		t.Errorf("Title = %q, want %q", res.Title, "Bold title")
	}
	if strings.Contains(res.Body, "script") {
		t.Errorf("Body = %q, should not contain script", res.Body)
	}
}

// TestSummarize_PreservesMarkdownBody はMarkdownの本文とタイトルが変更されずに返ることを検証する。
func TestSummarize_PreservesMarkdownBody(t *testing.T) {
	client := &mockChatClient{createFn: replyWith(`{"Title":"Tom & Jerry's List<T>","Summary":"Returns ` + "`List<String>`" + ` when a < b && c > d. Calls print('hi')."}`)}
	g := newTestGateway(client, testConfig())

	res, err := g.Summarize(context.Background(), model.ContentTypeCode, "print('hi')")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "Tom & Jerry's List<T>"; res.Title != want {
		t.Errorf("Title = %q, want %q", res.Title, want)
	}
	if want := "Returns `List<String>` when a < b && c > d. Calls print('hi')."; res.Body != want {
		t.Errorf("Body = %q, want %q", res.Body, want)
	}
}

// TestSummarize_InvalidContentType は未知の種別がAI呼び出し前に拒否されることを検証する。
func TestSummarize_InvalidContentType(t *testing.T) {
	called := false
	client := &mockChatClient{createFn: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		called = true
		return openai.ChatCompletionResponse{}, nil
	}}
	g := newTestGateway(client, testConfig())

	_, err := g.Summarize(context.Background(), model.ContentType("poetry"), "text")
	assertCode(t, err, model.ErrCodeInvalidContentType)
	if called {
		t.Error("AI should not be called for an unknown content type")
	}
}

// TestSummarize_Malformed は解析不能な応答がエラーになることを検証する。
func TestSummarize_Malformed(t *testing.T) {
	client := &mockChatClient{createFn: replyWith("Sorry, I cannot help with that.")}
	g := newTestGateway(client, testConfig())

	_, err := g.Summarize(context.Background(), model.ContentTypeCode, "x")
	assertCode(t, err, model.ErrCodeMalformedAIResponse)
}

// TestSummarize_NoChoices は選択肢が空の応答がエラーになることを検証する。
func TestSummarize_NoChoices(t *testing.T) {
	client := &mockChatClient{createFn: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, nil
	}}
	g := newTestGateway(client, testConfig())

	_, err := g.Summarize(context.Background(), model.ContentTypeCode, "x")
	assertCode(t, err, model.ErrCodeMalformedAIResponse)
}

// TestSummarize_TransportError は通信エラーがServiceErrorとしてラップされることを検証する。
func TestSummarize_TransportError(t *testing.T) {
	cause := errors.New("connection refused")
	client := &mockChatClient{createFn: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, cause
	}}
	g := newTestGateway(client, testConfig())

	_, err := g.Summarize(context.Background(), model.ContentTypeCode, "x")
	assertCode(t, err, model.ErrCodeServiceError)
	if !errors.Is(err, cause) {
		t.Error("expected the transport error to be wrapped")
	}
}

// TestSummarize_NoRetry はエラー時に再試行しないことを検証する。
func TestSummarize_NoRetry(t *testing.T) {
	calls := 0
	client := &mockChatClient{createFn: func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		calls++
		return openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "garbage"}}},
		}, nil
	}}
	g := newTestGateway(client, testConfig())

	_, _ = g.Summarize(context.Background(), model.ContentTypeCode, "x")
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

// TestRegenerate_KeepsTitle は再生成でタイトルが維持され本文のみ置き換わることを検証する。
func TestRegenerate_KeepsTitle(t *testing.T) {
	replies := []string{
		`{"Title":"New title","Summary":"Revised body"}`,
		"Title: Other\nSummary: Marker body",
	}
	for _, reply := range replies {
		client := &mockChatClient{createFn: replyWith(reply)}
		g := newTestGateway(client, testConfig())

		res, err := g.Regenerate(context.Background(), RegenerateInput{
			ContentType: model.ContentTypeResearch,
			SourceText:  "original text",
			PriorTitle:  "Stored title",
			PriorBody:   "Old body",
			Feedback:    "make it shorter",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Title != "Stored title" {
			t.Errorf("Title = %q, want stored title", res.Title)
		}
		if res.Body == "Old body" || res.Body == "" {
			t.Errorf("Body = %q, want replaced body", res.Body)
		}
	}
}

// TestRegenerate_MessageOrder は再生成リクエストの会話構成を検証する。
func TestRegenerate_MessageOrder(t *testing.T) {
	client := &mockChatClient{createFn: replyWith(`{"Title":"x","Summary":"y"}`)}
	g := newTestGateway(client, testConfig())

	_, err := g.Regenerate(context.Background(), RegenerateInput{
		ContentType: model.ContentTypeCode,
		SourceText:  "def f(): pass",
		PriorTitle:  "T",
		PriorBody:   "Old body",
		Feedback:    "mention edge cases",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := client.lastReq.Messages
	if len(msgs) != 6 {
		t.Fatalf("len(Messages) = %d, want 6", len(msgs))
	}
	if msgs[3].Role != openai.ChatMessageRoleUser || msgs[3].Content != "def f(): pass" {
		t.Errorf("Messages[3] = %+v, want source text", msgs[3])
	}
	if msgs[4].Role != openai.ChatMessageRoleAssistant || msgs[4].Content != "Old body" {
		t.Errorf("Messages[4] = %+v, want prior body", msgs[4])
	}
	if msgs[5].Role != openai.ChatMessageRoleUser || !strings.Contains(msgs[5].Content, "mention edge cases") {
		t.Errorf("Messages[5] = %+v, want feedback", msgs[5])
	}
}

// TestGateway_HTTP_Success はOpenAI互換エンドポイントとの往復を検証する。
func TestGateway_HTTP_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}

		content, _ := json.Marshal(map[string]string{"Title": "T", "Summary": "B"})
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","model":%q,"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`,
			req.Model, string(content))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.BaseURL = srv.URL
	g := newTestGateway(NewOpenAIClient(cfg), cfg)

	res, err := g.Summarize(context.Background(), model.ContentTypeCode, "print('hi')")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Title != "T" || res.Body != "B" {
		t.Errorf("result = {%q, %q}, want {T, B}", res.Title, res.Body)
	}
}

// TestGateway_HTTP_Timeout は応答が設定時間内に返らない場合にタイムアウトエラーとなることを検証する。
func TestGateway_HTTP_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.BaseURL = srv.URL
	cfg.Timeout = 50 * time.Millisecond
	g := newTestGateway(NewOpenAIClient(cfg), cfg)

	_, err := g.Summarize(context.Background(), model.ContentTypeResearch, "text")
	assertCode(t, err, model.ErrCodeAIGatewayTimeout)
}

// TestGateway_HTTP_ServerError はAPIのエラー応答がServiceErrorになることを検証する。
func TestGateway_HTTP_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.BaseURL = srv.URL
	g := newTestGateway(NewOpenAIClient(cfg), cfg)

	_, err := g.Summarize(context.Background(), model.ContentTypeResearch, "text")
	assertCode(t, err, model.ErrCodeServiceError)
}
