package service

import (
	"context"
	"fmt"
	"mcq_tutor_backend/internal/config"
	"mcq_tutor_backend/internal/util"
	"mcq_tutor_backend/pkg/monitoring"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Backend 大模型后端策略接口。在线 / 本地两个实现可互换，
// 新增后端是封闭式扩展，不需要改调用方
type Backend interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
	Chat(ctx context.Context, history []ChatTurn, system, user string) (string, error)
}

// openAIBackend 统一走 OpenAI 兼容协议：在线端点（如 DeepSeek）和
// Ollama 的本地 /v1 端点共用同一套客户端
type openAIBackend struct {
	name    string
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewHostedBackend(cfg config.AIConfig) Backend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &openAIBackend{
		name:    "hosted",
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.TimeoutSeconds,
	}
}

func NewLocalBackend(cfg config.OllamaConfig) Backend {
	// Ollama 不校验 key，但 SDK 要求非空
	clientCfg := openai.DefaultConfig("ollama")
	clientCfg.BaseURL = cfg.BaseURL
	return &openAIBackend{
		name:    "local",
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.TimeoutSeconds,
	}
}

func (b *openAIBackend) Name() string {
	return b.name
}

func (b *openAIBackend) Complete(ctx context.Context, system, user string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}
	return b.call(ctx, messages)
}

func (b *openAIBackend) Chat(ctx context.Context, history []ChatTurn, system, user string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})
	return b.call(ctx, messages)
}

// call 单次调用，强制超时。超时或传输错误统一归类为 ErrModelUnavailable，
// 由调用方决定降级方式；这里不重试也不偷偷换后端
func (b *openAIBackend) call(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: messages,
	})
	if err != nil {
		monitoring.BackendCalls.WithLabelValues(b.name, "unavailable").Inc()
		return "", fmt.Errorf("%w: %s: %v", util.ErrModelUnavailable, b.name, err)
	}
	if len(resp.Choices) == 0 {
		monitoring.BackendCalls.WithLabelValues(b.name, "unavailable").Inc()
		return "", fmt.Errorf("%w: %s returned no choices", util.ErrModelUnavailable, b.name)
	}

	monitoring.BackendCalls.WithLabelValues(b.name, "ok").Inc()
	return resp.Choices[0].Message.Content, nil
}

// ModelGateway 两个后端之上的统一入口。后端选择由调用方显式指定，
// 绝不根据内容自动探测
type ModelGateway struct {
	hosted   Backend
	local    Backend
	sessions SessionStore
}

func NewModelGateway(hosted, local Backend, sessions SessionStore) *ModelGateway {
	return &ModelGateway{
		hosted:   hosted,
		local:    local,
		sessions: sessions,
	}
}

func (g *ModelGateway) backend(useOffline bool) Backend {
	if useOffline {
		return g.local
	}
	return g.hosted
}

// Generate 单次补全，无会话状态
func (g *ModelGateway) Generate(ctx context.Context, useOffline bool, system, user string) (string, error) {
	return g.backend(useOffline).Complete(ctx, system, user)
}

// Converse 带会话历史的对话。同一会话内按到达顺序追加轮次；
// 调用失败时不写入任何轮次，历史保持干净
func (g *ModelGateway) Converse(ctx context.Context, useOffline bool, userID, sessionID, system, message string) (string, error) {
	b := g.backend(useOffline)
	key := SessionKey{Backend: b.Name(), UserID: userID, SessionID: sessionID}

	history, err := g.sessions.History(key)
	if err != nil {
		return "", err
	}

	reply, err := b.Chat(ctx, history, system, message)
	if err != nil {
		return "", err
	}

	err = g.sessions.Append(key,
		NewChatTurn(RoleUser, message),
		NewChatTurn(RoleAssistant, reply),
	)
	if err != nil {
		return "", err
	}

	return reply, nil
}
