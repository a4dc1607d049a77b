// Package engine connects the message bus to the flow dispatcher. It reads
// inbound messages and fans them out to one worker goroutine per chat, so
// messages within a chat are processed strictly in order while distinct
// chats proceed in parallel.
package engine

import (
	"context"
	"sync"

	"github.com/caravelbot/caravel/pkg/bus"
	"github.com/caravelbot/caravel/pkg/flood"
	"github.com/caravelbot/caravel/pkg/flow"
	"github.com/caravelbot/caravel/pkg/logger"
	"github.com/caravelbot/caravel/pkg/utils"
)

const chatQueueSize = 32

type chatWorker struct {
	queue chan bus.InboundMessage
	done  chan struct{}
}

type Engine struct {
	bus        *bus.MessageBus
	dispatcher *flow.Dispatcher
	guard      *flood.Guard

	mu      sync.Mutex
	workers map[string]*chatWorker
	wg      sync.WaitGroup
}

func New(messageBus *bus.MessageBus, dispatcher *flow.Dispatcher, guard *flood.Guard) *Engine {
	return &Engine{
		bus:        messageBus,
		dispatcher: dispatcher,
		guard:      guard,
		workers:    make(map[string]*chatWorker),
	}
}

// BusSender adapts the message bus to the dispatcher's Sender interface.
func BusSender(messageBus *bus.MessageBus) flow.Sender {
	return flow.SenderFunc(func(_ context.Context, chat flow.ChatRef, text string, choices []string) error {
		messageBus.PublishOutbound(bus.OutboundMessage{
			Channel: chat.Channel,
			ChatID:  chat.ChatID,
			Content: text,
			Choices: choices,
		})
		return nil
	})
}

// Run consumes the bus until ctx is cancelled, then drains the per-chat
// queues before returning.
func (e *Engine) Run(ctx context.Context) error {
	logger.InfoC("engine", "Flow engine started")

	for {
		// Not ok means the context was cancelled or the bus was closed;
		// either way there is nothing more to consume.
		msg, ok := e.bus.ConsumeInbound(ctx)
		if !ok {
			break
		}

		if !e.guard.Allow(msg.SenderID) {
			logger.WarnCF("engine", "Message dropped by flood guard", map[string]any{
				"sender": msg.SenderID, "chat": msg.ChatID,
			})
			continue
		}

		logger.DebugCF("engine", "Routing message", map[string]any{
			"channel": msg.Channel, "chat": msg.ChatID,
			"preview": utils.Truncate(msg.Content, 50),
		})

		e.worker(ctx, msg.Channel+":"+msg.ChatID).queue <- msg
	}

	e.drain()
	logger.InfoC("engine", "Flow engine stopped")
	return nil
}

func (e *Engine) worker(ctx context.Context, key string) *chatWorker {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.workers[key]
	if !ok {
		w = &chatWorker{
			queue: make(chan bus.InboundMessage, chatQueueSize),
			done:  make(chan struct{}),
		}
		e.workers[key] = w
		e.wg.Add(1)
		go e.runWorker(ctx, w)
	}
	return w
}

// runWorker processes one chat's messages sequentially. After cancellation
// it finishes whatever is already queued so no accepted message is lost.
func (e *Engine) runWorker(ctx context.Context, w *chatWorker) {
	defer e.wg.Done()
	defer close(w.done)

	for {
		select {
		case msg, ok := <-w.queue:
			if !ok {
				return
			}
			e.dispatcher.HandleMessage(ctx, msg)
		case <-ctx.Done():
			for {
				select {
				case msg, ok := <-w.queue:
					if !ok {
						return
					}
					e.dispatcher.HandleMessage(context.Background(), msg)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) drain() {
	e.mu.Lock()
	for _, w := range e.workers {
		close(w.queue)
	}
	e.mu.Unlock()
	e.wg.Wait()
}
