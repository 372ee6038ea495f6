package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatTurn 会话中的一轮发言，只追加不修改
type ChatTurn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewChatTurn(role, text string) ChatTurn {
	return ChatTurn{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// SessionKey 会话身份。后端名是键的一部分：在线和本地模型各有独立历史
type SessionKey struct {
	Backend   string
	UserID    string
	SessionID string
}

// SessionStore 会话历史存储。首次使用某个键时自动得到空历史
type SessionStore interface {
	History(key SessionKey) ([]ChatTurn, error)
	Append(key SessionKey, turns ...ChatTurn) error
}

// ---------------------------------------------------------------------------
// 进程内实现（默认）：带 TTL 的惰性过期 + 定时清理
// ---------------------------------------------------------------------------

type memorySession struct {
	turns    []ChatTurn
	lastSeen time.Time
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[SessionKey]*memorySession
	ttl      time.Duration
	limit    int
}

func NewMemorySessionStore(ttl time.Duration, historyLimit int) *MemorySessionStore {
	s := &MemorySessionStore{
		sessions: make(map[SessionKey]*memorySession),
		ttl:      ttl,
		limit:    historyLimit,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			s.evictExpired()
		}
	}()

	return s
}

func (s *MemorySessionStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sess := range s.sessions {
		if time.Since(sess.lastSeen) > s.ttl {
			delete(s.sessions, key)
		}
	}
}

func (s *MemorySessionStore) History(key SessionKey) ([]ChatTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	sess.lastSeen = time.Now()

	out := make([]ChatTurn, len(sess.turns))
	copy(out, sess.turns)
	return out, nil
}

func (s *MemorySessionStore) Append(key SessionKey, turns ...ChatTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		sess = &memorySession{}
		s.sessions[key] = sess
	}
	sess.turns = append(sess.turns, turns...)
	if s.limit > 0 && len(sess.turns) > s.limit {
		sess.turns = sess.turns[len(sess.turns)-s.limit:]
	}
	sess.lastSeen = time.Now()
	return nil
}

// ---------------------------------------------------------------------------
// Redis 实现（可选）：多实例部署时共享会话
// ---------------------------------------------------------------------------

type RedisSessionStore struct {
	rdb   *redis.Client
	ctx   context.Context
	ttl   time.Duration
	limit int
}

func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration, historyLimit int) *RedisSessionStore {
	return &RedisSessionStore{
		rdb:   rdb,
		ctx:   context.Background(),
		ttl:   ttl,
		limit: historyLimit,
	}
}

func (s *RedisSessionStore) redisKey(key SessionKey) string {
	return fmt.Sprintf("chat:history:%s:%s:%s", key.Backend, key.UserID, key.SessionID)
}

func (s *RedisSessionStore) History(key SessionKey) ([]ChatTurn, error) {
	items, err := s.rdb.LRange(s.ctx, s.redisKey(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	turns := make([]ChatTurn, 0, len(items))
	for _, item := range items {
		var t ChatTurn
		if err := json.Unmarshal([]byte(item), &t); err == nil {
			turns = append(turns, t)
		}
	}
	return turns, nil
}

func (s *RedisSessionStore) Append(key SessionKey, turns ...ChatTurn) error {
	rkey := s.redisKey(key)
	pipe := s.rdb.Pipeline()
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}
		pipe.RPush(s.ctx, rkey, data)
	}
	if s.limit > 0 {
		pipe.LTrim(s.ctx, rkey, int64(-s.limit), -1)
	}
	pipe.Expire(s.ctx, rkey, s.ttl)
	_, err := pipe.Exec(s.ctx)
	return err
}
