package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishConsumeRoundTrip(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	mb.PublishInbound(InboundMessage{Channel: "test", ChatID: "c1", SenderID: "u1", Content: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected inbound message")
	}
	if msg.Channel != "test" || msg.ChatID != "c1" || msg.Content != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestOutboundCarriesChoices(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	mb.PublishOutbound(OutboundMessage{Channel: "test", ChatID: "c1", Content: "pick one", Choices: []string{"a", "b"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, ok := mb.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("expected outbound message")
	}
	if len(msg.Choices) != 2 || msg.Choices[0] != "a" {
		t.Fatalf("unexpected choices: %+v", msg.Choices)
	}
}

func TestConsumeInboundHonoursContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatal("expected read to fail on cancelled context")
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()

	// Must not panic on a closed bus.
	mb.PublishInbound(InboundMessage{Channel: "test"})
	mb.PublishOutbound(OutboundMessage{Channel: "test"})
}
