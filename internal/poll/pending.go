package poll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingReply records that a chat owes a free-text answer for TaskID, and
// which sender is allowed to give it.
type PendingReply struct {
	TaskID   int64 `json:"task_id"`
	SenderID int64 `json:"sender_id"`
}

// PendingStore holds the awaiting-free-text state, keyed by chat.
type PendingStore interface {
	Get(ctx context.Context, chatID int64) (PendingReply, bool, error)
	Set(ctx context.Context, chatID int64, p PendingReply) error
	Delete(ctx context.Context, chatID int64) error
}

// MemoryPendingStore keeps pending replies in process memory. A restart
// drops them, and the next message from that chat is then ignored.
type MemoryPendingStore struct {
	mu      sync.Mutex
	pending map[int64]PendingReply
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{pending: make(map[int64]PendingReply)}
}

func (m *MemoryPendingStore) Get(_ context.Context, chatID int64) (PendingReply, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[chatID]
	return p, ok, nil
}

func (m *MemoryPendingStore) Set(_ context.Context, chatID int64, p PendingReply) error {
	m.mu.Lock()
	m.pending[chatID] = p
	m.mu.Unlock()
	return nil
}

func (m *MemoryPendingStore) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	delete(m.pending, chatID)
	m.mu.Unlock()
	return nil
}

const pendingKeyPrefix = "taskpulse:pending:"

// RedisPendingStore keeps pending replies in Redis so they survive a
// restart. Entries expire after ttl.
type RedisPendingStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPendingStore(client *redis.Client, ttl time.Duration) *RedisPendingStore {
	return &RedisPendingStore{client: client, ttl: ttl}
}

func pendingKey(chatID int64) string {
	return pendingKeyPrefix + strconv.FormatInt(chatID, 10)
}

func (r *RedisPendingStore) Get(ctx context.Context, chatID int64) (PendingReply, bool, error) {
	raw, err := r.client.Get(ctx, pendingKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PendingReply{}, false, nil
	}
	if err != nil {
		return PendingReply{}, false, fmt.Errorf("get pending reply: %w", err)
	}

	var p PendingReply
	if err := json.Unmarshal(raw, &p); err != nil {
		return PendingReply{}, false, fmt.Errorf("decode pending reply: %w", err)
	}
	return p, true, nil
}

func (r *RedisPendingStore) Set(ctx context.Context, chatID int64, p PendingReply) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending reply: %w", err)
	}
	if err := r.client.Set(ctx, pendingKey(chatID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set pending reply: %w", err)
	}
	return nil
}

func (r *RedisPendingStore) Delete(ctx context.Context, chatID int64) error {
	if err := r.client.Del(ctx, pendingKey(chatID)).Err(); err != nil {
		return fmt.Errorf("delete pending reply: %w", err)
	}
	return nil
}
