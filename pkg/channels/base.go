// Package channels connects chat networks to the message bus. Each channel
// adapts one transport (Telegram, Discord, WebSocket); the Manager starts
// them and routes outbound messages through per-channel worker queues.
package channels

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/caravelbot/caravel/pkg/bus"
	"github.com/caravelbot/caravel/pkg/config"
	"github.com/caravelbot/caravel/pkg/logger"
)

// Channel is one connected chat transport.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
}

// MessageLengthProvider is implemented by channels whose transport caps
// message length; the Manager splits longer content before sending.
type MessageLengthProvider interface {
	MaxMessageLength() int
}

// Factory builds a channel from the loaded config.
type Factory func(cfg *config.Config, messageBus *bus.MessageBus) (Channel, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

func registerFactory(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

func getFactory(name string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// BaseChannel carries the shared channel plumbing: name, bus publication
// and the sender allowlist.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowFrom []string
	running   atomic.Bool
}

func NewBaseChannel(name string, messageBus *bus.MessageBus, allowFrom []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       messageBus,
		allowFrom: allowFrom,
	}
}

func (b *BaseChannel) Name() string {
	return b.name
}

func (b *BaseChannel) IsRunning() bool {
	return b.running.Load()
}

func (b *BaseChannel) setRunning(v bool) {
	b.running.Store(v)
}

// IsAllowed checks senderID against the allowlist. An empty allowlist
// allows everyone. Sender ids may be compound ("id|username"); allowlist
// entries may be a bare id, "@username", or a compound pair, and any
// component match is enough.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}

	senderParts := splitSenderID(senderID)
	for _, entry := range b.allowFrom {
		for _, part := range splitSenderID(entry) {
			for _, sp := range senderParts {
				if sp != "" && strings.EqualFold(sp, part) {
					return true
				}
			}
		}
	}
	return false
}

// splitSenderID breaks a compound "id|username" into comparable parts,
// stripping a leading @ from usernames.
func splitSenderID(s string) []string {
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimPrefix(strings.TrimSpace(p), "@"))
	}
	return out
}

// HandleMessage publishes an inbound message to the bus after the
// allowlist check.
func (b *BaseChannel) HandleMessage(senderID, chatID, content string, metadata map[string]string) {
	if !b.IsAllowed(senderID) {
		logger.DebugCF(b.name, "Message rejected by allowlist", map[string]any{
			"sender_id": senderID,
		})
		return
	}

	b.bus.PublishInbound(bus.InboundMessage{
		Channel:  b.name,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Metadata: metadata,
	})
}
