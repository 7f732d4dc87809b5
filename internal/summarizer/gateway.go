// Package summarizer はAI要約ゲートウェイを提供する。
// プロンプトを組み立てて外部モデルを呼び出し、応答をタイトルと本文に解析する。
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/briefly/internal/metrics"
	"github.com/hitoshi/briefly/internal/model"
	"github.com/hitoshi/briefly/internal/security"
	"github.com/sashabaranov/go-openai"
)

// ChatClient はチャット補完APIの呼び出しを抽象化する。*openai.Client が満たす。
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config はゲートウェイの設定。
type Config struct {
	APIKey       string
	BaseURL      string
	GeneralModel string
	CodeModel    string
	Timeout      time.Duration
}

// Result は要約生成の結果。
type Result struct {
	Title string
	Body  string
	Model string
	Stage Stage
}

// RegenerateInput は再生成の入力。
type RegenerateInput struct {
	ContentType model.ContentType
	SourceText  string // 元の入力テキスト、またはファイルから再抽出したテキスト
	PriorTitle  string
	PriorBody   string
	Feedback    string
}

// Gateway は外部AIモデルへの要約リクエストを扱う。
// 呼び出しは同期的で、内部での再試行は行わない。
type Gateway struct {
	client    ChatClient
	cfg       Config
	sanitizer security.SummarySanitizer
	metrics   metrics.MetricsCollector
}

// NewOpenAIClient はOpenAI互換エンドポイント向けのクライアントを生成する。
func NewOpenAIClient(cfg Config) *openai.Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(c)
}

// NewGateway はGatewayの新しいインスタンスを生成する。
func NewGateway(client ChatClient, cfg Config, sanitizer security.SummarySanitizer, mc metrics.MetricsCollector) *Gateway {
	return &Gateway{
		client:    client,
		cfg:       cfg,
		sanitizer: sanitizer,
		metrics:   mc,
	}
}

// ModelFor はコンテンツ種別に対応するモデル名を返す。
// code はコード特化モデル、それ以外は汎用モデルを使う。
func (g *Gateway) ModelFor(ct model.ContentType) string {
	if ct == model.ContentTypeCode {
		return g.cfg.CodeModel
	}
	return g.cfg.GeneralModel
}

// Summarize はテキストを要約し、タイトルと本文を返す。
func (g *Gateway) Summarize(ctx context.Context, contentType model.ContentType, text string) (*Result, error) {
	messages, err := baseMessages(contentType)
	if err != nil {
		return nil, err
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	parsed, modelName, err := g.complete(ctx, contentType, messages)
	if err != nil {
		return nil, err
	}

	return &Result{
		Title: g.sanitizer.SanitizeTitle(parsed.Title),
		Body:  g.sanitizer.SanitizeBody(parsed.Body),
		Model: modelName,
		Stage: parsed.Stage,
	}, nil
}

// Regenerate は既存の要約とフィードバックをもとに本文を作り直す。
// タイトルは解析経路に関わらず既存のものを維持する。
func (g *Gateway) Regenerate(ctx context.Context, in RegenerateInput) (*Result, error) {
	messages, err := baseMessages(in.ContentType)
	if err != nil {
		return nil, err
	}
	messages = append(messages,
		openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: in.SourceText,
		},
		openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: in.PriorBody,
		},
		openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: regenerateInstruction + "\n\nFeedback: " + in.Feedback,
		},
	)

	parsed, modelName, err := g.complete(ctx, in.ContentType, messages)
	if err != nil {
		return nil, err
	}

	return &Result{
		Title: in.PriorTitle,
		Body:  g.sanitizer.SanitizeBody(parsed.Body),
		Model: modelName,
		Stage: parsed.Stage,
	}, nil
}

// baseMessages はシステム指示、出力形式の指示、例示の3つを組み立てる。
func baseMessages(ct model.ContentType) ([]openai.ChatCompletionMessage, error) {
	prompt, ok := systemPrompt(ct)
	if !ok {
		return nil, model.NewInvalidContentTypeError(string(ct))
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt},
		{Role: openai.ChatMessageRoleSystem, Content: formatInstruction},
		{Role: openai.ChatMessageRoleSystem, Content: fewShotExample},
	}, nil
}

// complete はモデルを呼び出して応答を解析する。
func (g *Gateway) complete(ctx context.Context, ct model.ContentType, messages []openai.ChatCompletionMessage) (Parsed, string, error) {
	modelName := g.ModelFor(ct)

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(callCtx, req)
	latency := time.Since(start)
	g.metrics.RecordAILatency(latency)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			g.metrics.RecordAIRequest(modelName, metrics.AIResultTimeout)
			slog.Warn("ai request timed out",
				slog.String("model", modelName),
				slog.Int64("latency_ms", latency.Milliseconds()),
			)
			return Parsed{}, modelName, model.NewAIGatewayTimeoutError()
		}
		g.metrics.RecordAIRequest(modelName, metrics.AIResultError)
		slog.Error("ai request failed",
			slog.String("model", modelName),
			slog.String("error", err.Error()),
		)
		return Parsed{}, modelName, model.NewServiceError("The AI service request failed", fmt.Errorf("chat completion: %w", err))
	}

	if len(resp.Choices) == 0 {
		g.metrics.RecordAIRequest(modelName, metrics.AIResultMalformed)
		return Parsed{}, modelName, model.NewMalformedAIResponseError()
	}

	raw := resp.Choices[0].Message.Content
	parsed, err := ParseResponse(raw)
	if err != nil {
		g.metrics.RecordAIRequest(modelName, metrics.AIResultMalformed)
		slog.Warn("ai response could not be parsed",
			slog.String("model", modelName),
			slog.Int("response_length", len(raw)),
			slog.String("response_head", head(raw, 200)),
		)
		return Parsed{}, modelName, err
	}

	g.metrics.RecordAIRequest(modelName, metrics.AIResultSuccess)
	g.metrics.RecordParseStage(string(parsed.Stage))
	slog.Info("ai summary generated",
		slog.String("model", modelName),
		slog.String("stage", string(parsed.Stage)),
		slog.Int64("latency_ms", latency.Milliseconds()),
		slog.Int("tokens_total", resp.Usage.TotalTokens),
	)
	return parsed, modelName, nil
}

// head は先頭n文字（ルーン単位）を返す。
func head(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
