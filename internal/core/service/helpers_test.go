package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/duo/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/Wyydra/duo/internal/core/port"
)

type fakeClient struct {
	mu     sync.Mutex
	events []domain.Event
	closed bool
	full   bool
}

var _ port.Client = (*fakeClient)(nil)

func (c *fakeClient) Send(ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnClosed
	}
	if c.full {
		return domain.ErrSlowConsumer
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.events...)
}

func (c *fakeClient) Count(kind domain.EventKind) int {
	n := 0
	for _, ev := range c.Events() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (c *fakeClient) Last() domain.Event {
	evs := c.Events()
	if len(evs) == 0 {
		return domain.Event{}
	}
	return evs[len(evs)-1]
}

func (c *fakeClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type harness struct {
	registry   *Registry
	rooms      *memory.RoomRepository
	matcher    *Matcher
	dispatcher *Dispatcher
}

func newHarness(t *testing.T, ringTimeout time.Duration) *harness {
	t.Helper()

	registry := NewRegistry()
	rooms := memory.NewRoomRepository()
	matcher := NewMatcher(registry, rooms)
	chat := NewChatService(registry, rooms)
	call := NewCallService(registry, rooms, ringTimeout)

	go matcher.Run()
	t.Cleanup(matcher.Stop)

	return &harness{
		registry:   registry,
		rooms:      rooms,
		matcher:    matcher,
		dispatcher: NewDispatcher(registry, matcher, rooms, chat, call),
	}
}

func (h *harness) connect() (domain.ConnID, *fakeClient) {
	c := &fakeClient{}
	return h.dispatcher.Connect(c), c
}

func (h *harness) do(id domain.ConnID, cmd domain.Command) error {
	return h.dispatcher.Handle(context.Background(), id, cmd)
}

func (h *harness) kind(id domain.ConnID, k domain.CommandKind) error {
	return h.do(id, domain.Command{Kind: k})
}

// pair connects two clients and pairs them, first one waiting.
func (h *harness) pair(t *testing.T) (domain.ConnID, *fakeClient, domain.ConnID, *fakeClient) {
	t.Helper()
	a, ca := h.connect()
	b, cb := h.connect()
	if err := h.kind(a, domain.CommandJoinQueue); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if err := h.kind(b, domain.CommandJoinQueue); err != nil {
		t.Fatalf("join b: %v", err)
	}
	if _, ok := h.registry.RoomOf(a); !ok {
		t.Fatal("a should be in a room")
	}
	ca.Reset()
	cb.Reset()
	return a, ca, b, cb
}

func (h *harness) room(t *testing.T, id domain.ConnID) *domain.Room {
	t.Helper()
	room, ok := h.rooms.ByMember(id)
	if !ok {
		t.Fatalf("no room for %s", id)
	}
	return room
}

func signal(t domain.SignalType, payload string) domain.Command {
	env := domain.Envelope{Type: t}
	if payload != "" {
		env.Payload = []byte(payload)
	}
	return domain.Command{Kind: domain.CommandSignal, Signal: env}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
