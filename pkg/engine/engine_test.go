package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caravelbot/caravel/pkg/bus"
	"github.com/caravelbot/caravel/pkg/flood"
	"github.com/caravelbot/caravel/pkg/flow"
	"github.com/caravelbot/caravel/pkg/schema"
)

func greetCommand() *flow.CommandSpec {
	return &flow.CommandSpec{
		Name:        "greet",
		Description: "Say hello",
		Public:      true,
		Prompts: []flow.PromptSpec{
			{Key: "name", Prompt: "Who should I greet?", Kind: schema.KindText},
		},
		Action: func(ctx context.Context, meta flow.Meta, answers *flow.Answers) (string, error) {
			return "Hello, " + answers.String("name") + "!", nil
		},
	}
}

func newTestEngine(t *testing.T, guard *flood.Guard) (*Engine, *bus.MessageBus) {
	t.Helper()
	msgBus := bus.NewMessageBus()
	reg := flow.NewRegistry()
	require.NoError(t, reg.Register(greetCommand()))
	dispatcher := flow.NewDispatcher(reg, BusSender(msgBus), flow.Options{})
	return New(msgBus, dispatcher, guard), msgBus
}

func nextOutbound(t *testing.T, msgBus *bus.MessageBus) bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, ok := msgBus.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("no outbound message arrived")
	}
	return msg
}

func TestEngineRunsFlowInOrder(t *testing.T) {
	eng, msgBus := newTestEngine(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(runDone)
	}()

	inbound := func(content string) bus.InboundMessage {
		return bus.InboundMessage{Channel: "test", ChatID: "c1", SenderID: "alice", Content: content}
	}

	msgBus.PublishInbound(inbound("greet"))
	msgBus.PublishInbound(inbound("Alice"))

	first := nextOutbound(t, msgBus)
	assert.Equal(t, "Who should I greet?", first.Content)
	assert.Equal(t, "test", first.Channel)
	assert.Equal(t, "c1", first.ChatID)

	second := nextOutbound(t, msgBus)
	assert.Equal(t, "Hello, Alice!", second.Content)

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after cancellation")
	}
}

func TestEngineStopsWhenBusCloses(t *testing.T) {
	eng, msgBus := newTestEngine(t, nil)

	runDone := make(chan struct{})
	go func() {
		eng.Run(context.Background())
		close(runDone)
	}()

	msgBus.Close()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after the bus closed")
	}
}

func TestEngineChatsRunIndependently(t *testing.T) {
	eng, msgBus := newTestEngine(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	msgBus.PublishInbound(bus.InboundMessage{Channel: "test", ChatID: "c1", SenderID: "alice", Content: "greet"})
	msgBus.PublishInbound(bus.InboundMessage{Channel: "test", ChatID: "c2", SenderID: "bob", Content: "greet"})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		msg := nextOutbound(t, msgBus)
		assert.Equal(t, "Who should I greet?", msg.Content)
		seen[msg.ChatID] = true
	}
	assert.True(t, seen["c1"] && seen["c2"])
}

func TestEngineFloodGuardDropsExcess(t *testing.T) {
	// Effectively no refill within the test; only the burst passes.
	eng, msgBus := newTestEngine(t, flood.NewGuard(1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	for i := 0; i < 5; i++ {
		msgBus.PublishInbound(bus.InboundMessage{Channel: "test", ChatID: "c1", SenderID: "spammer", Content: "greet"})
	}

	first := nextOutbound(t, msgBus)
	assert.Equal(t, "Who should I greet?", first.Content)

	extraCtx, extraCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer extraCancel()
	if msg, ok := msgBus.SubscribeOutbound(extraCtx); ok {
		t.Fatalf("expected flooded messages to be dropped, got reply: %+v", msg)
	}
}

func TestBusSenderPublishesOutbound(t *testing.T) {
	msgBus := bus.NewMessageBus()
	sender := BusSender(msgBus)

	err := sender.Send(context.Background(), flow.ChatRef{Channel: "test", ChatID: "c9"}, "pick one", []string{"a", "b"})
	require.NoError(t, err)

	msg := nextOutbound(t, msgBus)
	assert.Equal(t, "test", msg.Channel)
	assert.Equal(t, "c9", msg.ChatID)
	assert.Equal(t, "pick one", msg.Content)
	assert.Equal(t, []string{"a", "b"}, msg.Choices)
}
