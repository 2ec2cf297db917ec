package poll

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stellarlinkco/taskpulse/internal/bus"
	"github.com/stellarlinkco/taskpulse/internal/store"
	"github.com/stellarlinkco/taskpulse/internal/task"
)

type answer struct {
	id   string
	text string
}

// fakeGateway records outbound traffic and replays scripted update batches.
type fakeGateway struct {
	mu       sync.Mutex
	sent     []bus.OutboundMessage
	answers  []answer
	failFor  map[int64]bool
	batches  [][]bus.Update
	fetchErr []error
	offsets  []int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failFor: make(map[int64]bool)}
}

func (g *fakeGateway) Send(_ context.Context, msg bus.OutboundMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failFor[msg.ChatID] {
		return errors.New("chat not found")
	}
	g.sent = append(g.sent, msg)
	return nil
}

func (g *fakeGateway) FetchUpdates(ctx context.Context, offset int) ([]bus.Update, error) {
	g.mu.Lock()
	g.offsets = append(g.offsets, offset)
	if len(g.fetchErr) > 0 {
		err := g.fetchErr[0]
		g.fetchErr = g.fetchErr[1:]
		if err != nil {
			g.mu.Unlock()
			return nil, err
		}
	}
	if len(g.batches) == 0 {
		g.mu.Unlock()
		// Idle like a long poll with nothing to deliver.
		select {
		case <-ctx.Done():
		case <-time.After(time.Millisecond):
		}
		return nil, nil
	}
	batch := g.batches[0]
	g.batches = g.batches[1:]
	g.mu.Unlock()
	return batch, nil
}

func (g *fakeGateway) AnswerCallback(_ context.Context, callbackID, text string) error {
	g.mu.Lock()
	g.answers = append(g.answers, answer{id: callbackID, text: text})
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) sentTo(chatID int64) []bus.OutboundMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []bus.OutboundMessage
	for _, m := range g.sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func (g *fakeGateway) lastSent() bus.OutboundMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		return bus.OutboundMessage{}
	}
	return g.sent[len(g.sent)-1]
}

func (g *fakeGateway) lastAnswer() answer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.answers) == 0 {
		return answer{}
	}
	return g.answers[len(g.answers)-1]
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "poll.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustUser(t *testing.T, s *store.Store, username string, telegramID int64) *task.User {
	t.Helper()
	u := &task.User{Username: username, FullName: username}
	if telegramID != 0 {
		u.TelegramID = &telegramID
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func mustTask(t *testing.T, s *store.Store, tk *task.Task, assignees ...int64) *task.Task {
	t.Helper()
	if err := s.CreateTask(context.Background(), tk, assignees); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return tk
}

func openRecords(t *testing.T, s *store.Store, taskID int64) []task.PollRecord {
	t.Helper()
	all, err := s.ListPollRecords(context.Background(), taskID)
	if err != nil {
		t.Fatalf("ListPollRecords: %v", err)
	}
	var open []task.PollRecord
	for _, r := range all {
		if r.Open() {
			open = append(open, r)
		}
	}
	return open
}

func taskStatus(t *testing.T, s *store.Store, taskID int64) task.Status {
	t.Helper()
	tk, err := s.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	return tk.Status
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
