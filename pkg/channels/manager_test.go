package channels

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/caravelbot/caravel/pkg/bus"
	"github.com/caravelbot/caravel/pkg/config"
)

type fakeChannel struct {
	*BaseChannel
	mu     sync.Mutex
	sent   []bus.OutboundMessage
	maxLen int
}

func newFakeChannel(name string, messageBus *bus.MessageBus) *fakeChannel {
	return &fakeChannel{BaseChannel: NewBaseChannel(name, messageBus, nil)}
}

func (f *fakeChannel) Start(ctx context.Context) error {
	f.setRunning(true)
	return nil
}

func (f *fakeChannel) Stop(ctx context.Context) error {
	f.setRunning(false)
	return nil
}

func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) MaxMessageLength() int {
	return f.maxLen
}

func (f *fakeChannel) sentMessages() []bus.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bus.OutboundMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestManagerRoutesOutboundToChannel(t *testing.T) {
	msgBus := bus.NewMessageBus()
	m, err := NewManager(config.DefaultConfig(), msgBus)
	if err != nil {
		t.Fatal(err)
	}

	fake := newFakeChannel("fake", msgBus)
	m.RegisterChannel("fake", fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartAll(ctx); err != nil {
		t.Fatal(err)
	}

	msgBus.PublishOutbound(bus.OutboundMessage{Channel: "fake", ChatID: "c1", Content: "hello", Choices: []string{"a"}})

	waitFor(t, func() bool { return len(fake.sentMessages()) == 1 })
	got := fake.sentMessages()[0]
	if got.Content != "hello" || got.ChatID != "c1" || len(got.Choices) != 1 {
		t.Fatalf("unexpected message: %+v", got)
	}

	if err := m.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestManagerSplitsLongMessages(t *testing.T) {
	msgBus := bus.NewMessageBus()
	m, err := NewManager(config.DefaultConfig(), msgBus)
	if err != nil {
		t.Fatal(err)
	}

	fake := newFakeChannel("fake", msgBus)
	fake.maxLen = 10
	m.RegisterChannel("fake", fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartAll(ctx); err != nil {
		t.Fatal(err)
	}

	msgBus.PublishOutbound(bus.OutboundMessage{
		Channel: "fake", ChatID: "c1",
		Content: "one two three four five",
		Choices: []string{"x"},
	})

	// The affordance rides on the final chunk, so its arrival means the
	// whole split has been delivered.
	waitFor(t, func() bool {
		sent := fake.sentMessages()
		return len(sent) >= 2 && len(sent[len(sent)-1].Choices) > 0
	})
	sent := fake.sentMessages()

	for i, msg := range sent {
		if len([]rune(msg.Content)) > 10 {
			t.Fatalf("chunk %d exceeds limit: %q", i, msg.Content)
		}
		hasChoices := len(msg.Choices) > 0
		wantChoices := i == len(sent)-1
		if hasChoices != wantChoices {
			t.Fatalf("chunk %d choices = %v, want on final chunk only", i, msg.Choices)
		}
	}

	if err := m.StopAll(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestManagerStopsAfterBusClose(t *testing.T) {
	msgBus := bus.NewMessageBus()
	m, err := NewManager(config.DefaultConfig(), msgBus)
	if err != nil {
		t.Fatal(err)
	}

	fake := newFakeChannel("fake", msgBus)
	m.RegisterChannel("fake", fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.StartAll(ctx); err != nil {
		t.Fatal(err)
	}

	msgBus.Close()

	stopDone := make(chan error, 1)
	go func() { stopDone <- m.StopAll(context.Background()) }()

	select {
	case err := <-stopDone:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("StopAll did not return after the bus closed")
	}
}

func TestManagerSendToChannelUnknown(t *testing.T) {
	msgBus := bus.NewMessageBus()
	m, err := NewManager(config.DefaultConfig(), msgBus)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.SendToChannel(context.Background(), "nope", "c1", "hi"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}
