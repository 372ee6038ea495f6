package service

import (
	"context"
	"fmt"
	"mcq_tutor_backend/internal/config"
	"mcq_tutor_backend/internal/repository"
	"mcq_tutor_backend/internal/util"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatConfig() *config.Config {
	return &config.Config{
		Chat: config.ChatConfig{ReplyMaxLength: 1200, HistoryLimit: 50, SessionTTLMinutes: time.Hour},
		XAI:  config.XAIConfig{LectureTruncate: 4000},
	}
}

type stubLectureSource struct {
	text string
	err  error
}

func (s *stubLectureSource) GetLectureText(questionID uint) (string, error) {
	return s.text, s.err
}

func TestClassifyFastPath(t *testing.T) {
	req := classify("Question ID is 7, I selected B")
	require.NotNil(t, req)
	assert.EqualValues(t, 7, req.questionID)
	assert.Equal(t, "B", req.label)
	assert.False(t, req.labelMissing)
	assert.False(t, req.wantEvidence)
}

func TestClassifyFastPathWithEvidence(t *testing.T) {
	req := classify("question id is 12. my answer is C, show evidence please")
	require.NotNil(t, req)
	assert.EqualValues(t, 12, req.questionID)
	assert.Equal(t, "C", req.label)
	assert.True(t, req.wantEvidence)
}

func TestClassifyWhyImpliesEvidence(t *testing.T) {
	req := classify("question ID is 3, option A, why is that right?")
	require.NotNil(t, req)
	assert.True(t, req.wantEvidence)
}

func TestClassifyLabelKeywords(t *testing.T) {
	cases := map[string]string{
		"question ID is 7, student B":       "B",
		"question ID is 7, option A":        "A",
		"question ID is 7, my choice: C":    "C",
		"question ID is 7, the answer is D": "D",
		"question ID is 7, picked (B)":      "B",
	}
	for message, want := range cases {
		req := classify(message)
		require.NotNil(t, req, message)
		assert.Equal(t, want, req.label, message)
		assert.False(t, req.labelMissing, message)
	}
}

func TestClassifyMissingLabel(t *testing.T) {
	req := classify("question ID is 7")
	require.NotNil(t, req)
	assert.True(t, req.labelMissing)
}

func TestClassifyToolMarker(t *testing.T) {
	req := classify("explain_mcq_answer for me")
	require.NotNil(t, req)
	assert.Zero(t, req.questionID)
}

func TestClassifyGeneralMessage(t *testing.T) {
	assert.Nil(t, classify("What is a stack?"))
	assert.Nil(t, classify("Can you summarize the lecture?"))
}

func TestRespondFastPathSkipsModel(t *testing.T) {
	db := newTestDB(t)
	qid := seedQuestion(t, db)

	hosted := &stubBackend{name: "hosted", reply: "should never be used"}
	local := &stubBackend{name: "local"}
	gateway := NewModelGateway(hosted, local, NewMemorySessionStore(time.Hour, 50))

	questions := repository.NewQuestionRepository(db)
	explainer := newExplainer(t, db, gateway, config.XAIConfig{})
	chat := NewChatService(explainer, questions, gateway, chatConfig())

	reply, err := chat.Respond(context.Background(), "student_1", "7", fmt.Sprintf("question ID is %d, I selected A", qid), false)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(reply, "Correct."), reply)
	// 判题走解析引擎，模型一次都不该被调用
	assert.Zero(t, hosted.calls)
	assert.Zero(t, local.calls)
}

func TestRespondFastPathMissingLabel(t *testing.T) {
	db := newTestDB(t)
	seedQuestion(t, db)

	gateway := NewModelGateway(&stubBackend{name: "hosted"}, &stubBackend{name: "local"}, NewMemorySessionStore(time.Hour, 50))
	explainer := newExplainer(t, db, gateway, config.XAIConfig{})
	chat := NewChatService(explainer, repository.NewQuestionRepository(db), gateway, chatConfig())

	reply, err := chat.Respond(context.Background(), "student_1", "7", "question ID is 1", false)
	require.NoError(t, err)
	assert.Contains(t, reply, "option letter")
}

func TestRespondFastPathUnknownQuestion(t *testing.T) {
	db := newTestDB(t)

	gateway := NewModelGateway(&stubBackend{name: "hosted"}, &stubBackend{name: "local"}, NewMemorySessionStore(time.Hour, 50))
	explainer := newExplainer(t, db, gateway, config.XAIConfig{})
	chat := NewChatService(explainer, repository.NewQuestionRepository(db), gateway, chatConfig())

	_, err := chat.Respond(context.Background(), "student_1", "7", "question ID is 999, option A", false)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func TestRespondGeneralPathUsesModel(t *testing.T) {
	hosted := &stubBackend{name: "hosted", reply: "A stack pops the newest element first."}
	gateway := NewModelGateway(hosted, &stubBackend{name: "local"}, NewMemorySessionStore(time.Hour, 50))

	chat := NewChatService(nil, &stubLectureSource{err: util.ErrQuestionNotFound}, gateway, chatConfig())

	reply, err := chat.Respond(context.Background(), "student_1", "abc", "What is a stack?", false)
	require.NoError(t, err)
	assert.Equal(t, hosted.reply, reply)
	assert.Equal(t, 1, hosted.calls)
}

func TestRespondBackendDownFallback(t *testing.T) {
	hosted := &stubBackend{name: "hosted", err: fmt.Errorf("%w: hosted: timeout", util.ErrModelUnavailable)}
	gateway := NewModelGateway(hosted, &stubBackend{name: "local"}, NewMemorySessionStore(time.Hour, 50))

	chat := NewChatService(nil, &stubLectureSource{err: util.ErrQuestionNotFound}, gateway, chatConfig())

	reply, err := chat.Respond(context.Background(), "student_1", "abc", "What is a stack?", false)
	require.NoError(t, err)
	assert.Equal(t, backendDownFallback, reply)
}

func TestLectureContextInjection(t *testing.T) {
	hosted := &stubBackend{name: "hosted", reply: "ok"}
	gateway := NewModelGateway(hosted, &stubBackend{name: "local"}, NewMemorySessionStore(time.Hour, 50))

	chat := NewChatService(nil, &stubLectureSource{text: "The lecture covers stacks."}, gateway, chatConfig())

	// 数字会话 ID 注入讲义上下文
	got := chat.lectureContext("7", 4000)
	assert.Equal(t, "The lecture covers stacks.", got)

	// 非数字会话 ID 降级为无上下文
	assert.Empty(t, chat.lectureContext("abc", 4000))
}

func TestLectureContextTruncation(t *testing.T) {
	chat := NewChatService(nil, &stubLectureSource{text: strings.Repeat("x", 100)}, nil, chatConfig())

	got := chat.lectureContext("7", 10)
	assert.Len(t, got, 10)
}

func TestPostProcessCollapsesVerdictDash(t *testing.T) {
	assert.Equal(t, "Correct. well done", postProcess("Correct - well done", 1200))
	assert.Equal(t, "Incorrect. try again", postProcess("Incorrect - try again", 1200))
}

func TestPostProcessCapsLength(t *testing.T) {
	long := strings.Repeat("a", 2000)
	assert.Len(t, postProcess(long, 1200), 1200)
}

func TestPostProcessBlankFallback(t *testing.T) {
	assert.Equal(t, emptyReplyFallback, postProcess("", 1200))
	assert.Equal(t, emptyReplyFallback, postProcess("   \n  ", 1200))
}
