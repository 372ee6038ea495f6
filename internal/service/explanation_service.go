package service

import (
	"context"
	"errors"
	"fmt"
	"mcq_tutor_backend/internal/config"
	"mcq_tutor_backend/internal/model"
	"mcq_tutor_backend/internal/repository"
	"mcq_tutor_backend/internal/util"
	"mcq_tutor_backend/pkg/logger"
	"mcq_tutor_backend/pkg/monitoring"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ExplanationService 答案解析引擎：符号判题 → 缓存 → 模板组句 →
// 可选证据检索 → 可选模型润色 → 缓存写回
type ExplanationService struct {
	questions *repository.QuestionRepository
	cache     *repository.ExplanationRepository
	verifier  *AnswerVerifier
	retriever *EvidenceRetriever
	gateway   *ModelGateway

	mu  sync.RWMutex
	cfg config.XAIConfig
}

func NewExplanationService(
	questions *repository.QuestionRepository,
	cache *repository.ExplanationRepository,
	verifier *AnswerVerifier,
	retriever *EvidenceRetriever,
	gateway *ModelGateway,
	cfg config.XAIConfig,
) *ExplanationService {
	return &ExplanationService{
		questions: questions,
		cache:     cache,
		verifier:  verifier,
		retriever: retriever,
		gateway:   gateway,
		cfg:       cfg,
	}
}

// ApplyConfig 配置热加载入口
func (s *ExplanationService) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.XAI
}

func (s *ExplanationService) xaiConfig() config.XAIConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ExplainResult /explain 的响应体
type ExplainResult struct {
	IsCorrect    bool     `json:"is_correct"`
	StudentLabel string   `json:"student_label"`
	CorrectLabel string   `json:"correct_label"`
	Reasoning    string   `json:"reasoning"`
	KeyConcepts  []string `json:"key_concepts"`
	ReviewTopics []string `json:"review_topics"`
}

const clarifyReasoning = "I couldn't read your selected option. Please answer with a single option letter, for example \"A\" or \"option B\"."

var defaultReviewTopics = []string{
	"Review the definition or idea in your notes and compare it to the correct option.",
}

// Explain 判题并生成解析。正确性每次从答案键现算；缓存只存措辞
func (s *ExplanationService) Explain(ctx context.Context, questionID uint, studentLabel string, includeEvidence bool) (*ExplainResult, error) {
	cfg := s.xaiConfig()

	bundle, err := s.questions.GetBundle(questionID)
	if err != nil {
		return nil, err
	}
	q := bundle.Question

	isCorrect, correctLabel, err := s.verifier.Verify(q.Options, bundle.CorrectLabel, studentLabel)
	if errors.Is(err, util.ErrLabelUnreadable) {
		// 标签不可读：返回确定性的澄清提示，不猜测也不进缓存
		return &ExplainResult{
			IsCorrect:    false,
			StudentLabel: strings.TrimSpace(studentLabel),
			CorrectLabel: correctLabel,
			Reasoning:    clarifyReasoning,
			KeyConcepts:  []string{},
			ReviewTopics: defaultReviewTopics,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	normalized, _ := s.verifier.Normalize(studentLabel, s.verifier.Alphabet(q.Options))
	selected := findOption(q.Options, normalized, s.verifier)
	if selected == nil {
		return nil, util.ErrOptionNotFound
	}

	evidence := []string{}
	if includeEvidence {
		evidence = s.retriever.Retrieve(bundle.LectureText, q.Stem, cfg.EvidenceTopK, DefaultEvidenceMinScore)
	}

	key := repository.ExplanationKey{
		QuestionID: q.ID,
		OptionID:   selected.ID,
		Version:    cfg.CacheVersion,
	}

	cached, err := s.cache.Get(key)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		monitoring.ExplanationCache.WithLabelValues("hit").Inc()
		return &ExplainResult{
			IsCorrect:    isCorrect,
			StudentLabel: normalized,
			CorrectLabel: correctLabel,
			Reasoning:    cached.Content,
			KeyConcepts:  evidence,
			ReviewTopics: defaultReviewTopics,
		}, nil
	}
	monitoring.ExplanationCache.WithLabelValues("miss").Inc()

	reasoning := s.composeReasoning(q, selected, normalized, correctLabel, isCorrect, evidence, includeEvidence)

	source := "template"
	if cfg.FluencyPass && s.gateway != nil {
		if polished, ok := s.fluencyPass(ctx, reasoning, isCorrect); ok {
			reasoning = polished
			source = "template+llm"
		}
	}

	winner, err := s.cache.Put(key, reasoning, source)
	if err != nil {
		return nil, err
	}

	return &ExplainResult{
		IsCorrect:    isCorrect,
		StudentLabel: normalized,
		CorrectLabel: correctLabel,
		Reasoning:    winner.Content,
		KeyConcepts:  evidence,
		ReviewTopics: defaultReviewTopics,
	}, nil
}

// ---------------------------------------------------------------------------
// 题目意图分类
// ---------------------------------------------------------------------------

type questionIntent int

const (
	intentGeneral questionIntent = iota
	intentDefinition
	intentPurpose
	intentComparison
	intentCausal
)

// 模式组有序匹配，先命中者生效
var intentGroups = []struct {
	intent   questionIntent
	prefixes []string
	contains []string
}{
	{intentDefinition, []string{"what is", "what are", "define"}, []string{"stands for", "what type", "definition"}},
	{intentPurpose, nil, []string{"purpose", "used for", "used to"}},
	{intentComparison, nil, []string{"difference", "compare", "versus"}},
	{intentCausal, []string{"why"}, []string{"effect", "result"}},
}

func classifyIntent(stem string) questionIntent {
	s := strings.ToLower(strings.TrimSpace(stem))
	for _, g := range intentGroups {
		for _, p := range g.prefixes {
			if strings.HasPrefix(s, p) {
				return g.intent
			}
		}
		for _, c := range g.contains {
			if strings.Contains(s, c) {
				return g.intent
			}
		}
	}
	return intentGeneral
}

func intentSentence(intent questionIntent) string {
	switch intent {
	case intentDefinition:
		return "This question is checking a definition."
	case intentPurpose:
		return "This question asks what something is used for."
	case intentComparison:
		return "This question asks you to compare two ideas."
	case intentCausal:
		return "This question asks about a cause or an effect."
	default:
		return "This question tests the key concept from the lecture."
	}
}

// ---------------------------------------------------------------------------
// 关键词重叠与组句
// ---------------------------------------------------------------------------

const maxOverlapTokens = 6

// keywordOverlap 题干与选项文本的词元交集，按题干首次出现顺序取前 6 个
func keywordOverlap(stem, optionText string) []string {
	optionSet := map[string]bool{}
	for _, t := range Tokenize(optionText) {
		optionSet[t] = true
	}

	seen := map[string]bool{}
	var overlaps []string
	for _, t := range Tokenize(stem) {
		if optionSet[t] && !seen[t] {
			seen[t] = true
			overlaps = append(overlaps, t)
			if len(overlaps) >= maxOverlapTokens {
				break
			}
		}
	}
	return overlaps
}

// composeReasoning 组出 2–4 句确定性解析。答错时绝不原文引用正确选项，
// 逼着学生回讲义里找，而不是照抄文本匹配
func (s *ExplanationService) composeReasoning(
	q *model.Question,
	selected *model.Option,
	studentLabel, correctLabel string,
	isCorrect bool,
	evidence []string,
	includeEvidence bool,
) string {
	correct := findOption(q.Options, correctLabel, s.verifier)

	var parts []string
	if isCorrect {
		parts = append(parts, "Correct.")
	} else {
		parts = append(parts, fmt.Sprintf("Incorrect. The correct answer is %s.", correctLabel))
	}

	parts = append(parts, intentSentence(classifyIntent(q.Stem)))

	if isCorrect {
		overlaps := keywordOverlap(q.Stem, selected.Text)
		if len(overlaps) > 0 {
			parts = append(parts, fmt.Sprintf(
				"Your choice lines up with what the stem is probing: %s.",
				strings.Join(overlaps, ", ")))
		} else {
			parts = append(parts, "Your choice captures the idea the stem is probing.")
		}
	} else {
		chosenOverlaps := keywordOverlap(q.Stem, selected.Text)
		if len(chosenOverlaps) > 0 {
			parts = append(parts, fmt.Sprintf(
				"Option %s emphasizes %s, which answers a different angle than the stem.",
				studentLabel, strings.Join(chosenOverlaps, ", ")))
		} else {
			parts = append(parts, fmt.Sprintf(
				"Option %s answers a different angle than what the stem is asking.", studentLabel))
		}
		var correctOverlaps []string
		if correct != nil {
			correctOverlaps = keywordOverlap(q.Stem, correct.Text)
		}
		if len(correctOverlaps) > 0 {
			parts = append(parts, fmt.Sprintf(
				"Option %s aligns more closely with the stem's focus on %s; re-read that part of your notes.",
				correctLabel, strings.Join(correctOverlaps, ", ")))
		} else {
			parts = append(parts, fmt.Sprintf(
				"Re-read the part of your notes that option %s comes from before retrying.", correctLabel))
		}
	}

	reasoning := strings.Join(parts, " ")

	if includeEvidence {
		var sb strings.Builder
		sb.WriteString(reasoning)
		sb.WriteString("\nSupporting evidence:")
		if len(evidence) == 0 {
			sb.WriteString("\n- (No matching lecture sentence found.)")
		} else {
			for _, e := range evidence {
				sb.WriteString(fmt.Sprintf("\n- %q", e))
			}
		}
		reasoning = sb.String()
	}

	return reasoning
}

const fluencySystemPrompt = "You polish feedback for a student who just answered a multiple-choice question. " +
	"Rewrite the text to flow naturally in 2-4 sentences. " +
	"You must keep the verdict sentence exactly as given, must not invent facts, " +
	"and must not reveal option text that is not already present."

// fluencyPass 让模型润色模板文本。守住判定词前缀：模型改了判定就弃用，
// 模型故障直接退回模板，解析永远不会被模型可用性卡死
func (s *ExplanationService) fluencyPass(ctx context.Context, reasoning string, isCorrect bool) (string, bool) {
	polished, err := s.gateway.Generate(ctx, false, fluencySystemPrompt, reasoning)
	if err != nil {
		logger.Log.Warn("fluency pass failed, keeping template", zap.Error(err))
		return "", false
	}

	polished = strings.TrimSpace(polished)
	if polished == "" {
		return "", false
	}

	verdict := "Correct."
	if !isCorrect {
		verdict = "Incorrect."
	}
	if !strings.HasPrefix(polished, verdict) {
		return "", false
	}

	return polished, true
}

func findOption(options []model.Option, label string, v *AnswerVerifier) *model.Option {
	alphabet := v.Alphabet(options)
	for i := range options {
		normalized, err := v.Normalize(options[i].Label, alphabet)
		if err == nil && normalized == label {
			return &options[i]
		}
	}
	return nil
}
