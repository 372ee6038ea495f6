package service

import (
	"context"
	"errors"
	"fmt"
	"mcq_tutor_backend/internal/config"
	"mcq_tutor_backend/internal/util"
	"mcq_tutor_backend/pkg/logger"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ChatService 聊天路由：判题类消息走快速通道直达解析引擎，
// 其余走通用导师对话。路由决策全部基于文本规则，不依赖模型
type ChatService struct {
	explainer *ExplanationService
	questions questionTextSource
	gateway   *ModelGateway

	mu              sync.RWMutex
	replyMaxLength  int
	lectureTruncate int
}

// questionTextSource 聊天侧只需要讲义文本这一个查询
type questionTextSource interface {
	GetLectureText(questionID uint) (string, error)
}

func NewChatService(explainer *ExplanationService, questions questionTextSource, gateway *ModelGateway, cfg *config.Config) *ChatService {
	return &ChatService{
		explainer:       explainer,
		questions:       questions,
		gateway:         gateway,
		replyMaxLength:  cfg.Chat.ReplyMaxLength,
		lectureTruncate: cfg.XAI.LectureTruncate,
	}
}

// ApplyConfig 配置热加载入口
func (s *ChatService) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyMaxLength = cfg.Chat.ReplyMaxLength
	s.lectureTruncate = cfg.XAI.LectureTruncate
}

func (s *ChatService) limits() (replyMax, lectureTruncate int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replyMaxLength, s.lectureTruncate
}

const (
	// 工具调用标记：前端或上游代理可以用它强制走判题通道
	checkAnswerMarker = "explain_mcq_answer"

	emptyReplyFallback  = "No response from AI Tutor."
	backendDownFallback = "The AI tutor is temporarily unavailable. Your answer was recorded; please try again in a moment."

	tutorSystemPrompt = "You are a patient study tutor. Answer questions about the lecture material provided in the context block. " +
		"Keep answers short and concrete. If the question is outside the lecture material, say so."
)

var (
	fastPathRe = regexp.MustCompile(`(?i)question\s*id\s*is\s*(\d+)`)
	// 从自由文本里抠学生选项，取首个命中
	chatLabelRe = regexp.MustCompile(`(?i)\b(?:option|answer|choice|selected|student|picked|chose|value|is)\b[\s:"'-]*\(?([A-D])\b`)
)

// checkAnswerRequest 快速通道解析出的类型化请求
type checkAnswerRequest struct {
	questionID   uint
	label        string
	labelMissing bool
	wantEvidence bool
}

// classify 把消息归类：能抠出题目 ID（或带工具标记）就是判题请求。
// 返回 nil 表示走通用对话
func classify(message string) *checkAnswerRequest {
	m := fastPathRe.FindStringSubmatch(message)
	if m == nil && !strings.Contains(strings.ToLower(message), checkAnswerMarker) {
		return nil
	}

	req := &checkAnswerRequest{}
	if m != nil {
		id, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return nil
		}
		req.questionID = uint(id)
	}

	if lm := chatLabelRe.FindStringSubmatch(message); lm != nil {
		req.label = strings.ToUpper(lm[1])
	} else {
		req.labelMissing = true
	}

	lower := strings.ToLower(message)
	req.wantEvidence = strings.Contains(lower, "evidence") || strings.Contains(lower, "why")

	return req
}

// Respond 处理一条聊天消息，永远返回非空回复。
// 判题请求直达解析引擎，不经过模型；只有通用对话才调用 Converse
func (s *ChatService) Respond(ctx context.Context, userID, sessionID, message string, useOffline bool) (string, error) {
	replyMax, lectureTruncate := s.limits()

	if req := classify(message); req != nil {
		reply, err := s.respondCheckAnswer(ctx, req)
		if err != nil {
			return "", err
		}
		return postProcess(reply, replyMax), nil
	}

	contextBlock := s.lectureContext(sessionID, lectureTruncate)

	prompt := message
	if contextBlock != "" {
		prompt = fmt.Sprintf("Lecture context:\n%s\n\nStudent: %s", contextBlock, message)
	}

	reply, err := s.gateway.Converse(ctx, useOffline, userID, sessionID, tutorSystemPrompt, prompt)
	if errors.Is(err, util.ErrModelUnavailable) {
		logger.Log.Warn("tutor backend unavailable",
			zap.String("session_id", sessionID), zap.Bool("use_offline", useOffline), zap.Error(err))
		return backendDownFallback, nil
	}
	if err != nil {
		return "", err
	}

	return postProcess(reply, replyMax), nil
}

// respondCheckAnswer 快速通道：结构化判题，输出解析原文
func (s *ChatService) respondCheckAnswer(ctx context.Context, req *checkAnswerRequest) (string, error) {
	if req.questionID == 0 {
		return "Please tell me which question you mean, for example \"question ID is 7\".", nil
	}
	if req.labelMissing {
		// 缺标签不猜：让学生补一句，而不是默认判成某个选项
		return "Which option did you pick? Reply with the option letter, for example \"option B\".", nil
	}

	result, err := s.explainer.Explain(ctx, req.questionID, req.label, req.wantEvidence)
	if err != nil {
		return "", err
	}
	return result.Reasoning, nil
}

// lectureContext 会话 ID 是数字时按题目 ID 注入所属讲义，截断到上限。
// 取不到讲义不是错误，降级为无上下文对话
func (s *ChatService) lectureContext(sessionID string, truncate int) string {
	id, err := strconv.ParseUint(sessionID, 10, 64)
	if err != nil {
		return ""
	}

	text, err := s.questions.GetLectureText(uint(id))
	if err != nil {
		return ""
	}

	runes := []rune(text)
	if truncate > 0 && len(runes) > truncate {
		return string(runes[:truncate])
	}
	return text
}

// postProcess 出口统一清洗：合并判定词后的破折号、截断超长、空白兜底
func postProcess(reply string, maxLength int) string {
	reply = strings.TrimSpace(reply)
	reply = strings.ReplaceAll(reply, "Correct - ", "Correct. ")
	reply = strings.ReplaceAll(reply, "Incorrect - ", "Incorrect. ")

	if maxLength > 0 {
		runes := []rune(reply)
		if len(runes) > maxLength {
			reply = string(runes[:maxLength])
		}
	}

	if strings.TrimSpace(reply) == "" {
		return emptyReplyFallback
	}
	return reply
}
