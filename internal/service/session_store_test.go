package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStoreAppendAndHistory(t *testing.T) {
	s := NewMemorySessionStore(time.Hour, 50)
	key := SessionKey{Backend: "hosted", UserID: "student_1", SessionID: "7"}

	history, err := s.History(key)
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, s.Append(key, NewChatTurn(RoleUser, "hi"), NewChatTurn(RoleAssistant, "hello")))
	require.NoError(t, s.Append(key, NewChatTurn(RoleUser, "more")))

	history, err = s.History(key)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "hi", history[0].Text)
	assert.Equal(t, RoleAssistant, history[1].Role)
	assert.Equal(t, "more", history[2].Text)
}

func TestMemorySessionStoreIsolatesKeys(t *testing.T) {
	s := NewMemorySessionStore(time.Hour, 50)
	hosted := SessionKey{Backend: "hosted", UserID: "u", SessionID: "1"}
	local := SessionKey{Backend: "local", UserID: "u", SessionID: "1"}

	require.NoError(t, s.Append(hosted, NewChatTurn(RoleUser, "hosted msg")))

	history, err := s.History(local)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemorySessionStoreHistoryLimit(t *testing.T) {
	s := NewMemorySessionStore(time.Hour, 4)
	key := SessionKey{Backend: "hosted", UserID: "u", SessionID: "1"}

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(key, NewChatTurn(RoleUser, "m")))
	}

	history, err := s.History(key)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestMemorySessionStoreEviction(t *testing.T) {
	s := NewMemorySessionStore(10*time.Millisecond, 50)
	key := SessionKey{Backend: "hosted", UserID: "u", SessionID: "1"}

	require.NoError(t, s.Append(key, NewChatTurn(RoleUser, "m")))
	time.Sleep(30 * time.Millisecond)
	s.evictExpired()

	history, err := s.History(key)
	require.NoError(t, err)
	assert.Empty(t, history)
}

// stubBackend 测试用后端，记录调用并返回固定结果
type stubBackend struct {
	name  string
	reply string
	err   error
	calls int
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Complete(ctx context.Context, system, user string) (string, error) {
	b.calls++
	return b.reply, b.err
}

func (b *stubBackend) Chat(ctx context.Context, history []ChatTurn, system, user string) (string, error) {
	b.calls++
	return b.reply, b.err
}

func TestConverseAppendsTurnsOnSuccess(t *testing.T) {
	sessions := NewMemorySessionStore(time.Hour, 50)
	hosted := &stubBackend{name: "hosted", reply: "sure"}
	g := NewModelGateway(hosted, &stubBackend{name: "local"}, sessions)

	reply, err := g.Converse(context.Background(), false, "u", "1", "system", "hello")
	require.NoError(t, err)
	assert.Equal(t, "sure", reply)

	history, err := sessions.History(SessionKey{Backend: "hosted", UserID: "u", SessionID: "1"})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, RoleAssistant, history[1].Role)
}

func TestConverseKeepsHistoryCleanOnFailure(t *testing.T) {
	sessions := NewMemorySessionStore(time.Hour, 50)
	hosted := &stubBackend{name: "hosted", err: errors.New("boom")}
	g := NewModelGateway(hosted, &stubBackend{name: "local"}, sessions)

	_, err := g.Converse(context.Background(), false, "u", "1", "system", "hello")
	require.Error(t, err)

	history, err := sessions.History(SessionKey{Backend: "hosted", UserID: "u", SessionID: "1"})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGatewayBackendSelection(t *testing.T) {
	hosted := &stubBackend{name: "hosted", reply: "from hosted"}
	local := &stubBackend{name: "local", reply: "from local"}
	g := NewModelGateway(hosted, local, NewMemorySessionStore(time.Hour, 50))

	reply, err := g.Generate(context.Background(), true, "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "from local", reply)
	assert.Zero(t, hosted.calls)

	reply, err = g.Generate(context.Background(), false, "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "from hosted", reply)
}
