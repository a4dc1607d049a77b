package channels

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/caravelbot/caravel/pkg/bus"
	"github.com/caravelbot/caravel/pkg/config"
	"github.com/caravelbot/caravel/pkg/logger"
)

func init() {
	registerFactory("websocket", func(cfg *config.Config, messageBus *bus.MessageBus) (Channel, error) {
		return NewWebSocketChannel(cfg.Channels.WebSocket, messageBus)
	})
}

// wsIncoming is the JSON frame a client sends to the bot.
type wsIncoming struct {
	Content  string `json:"content"`
	SenderID string `json:"sender_id,omitempty"`
}

// wsOutgoing is the JSON frame the bot sends to a client. Choices carry
// the prompt affordance for clients that render buttons.
type wsOutgoing struct {
	Content string   `json:"content"`
	Choices []string `json:"choices,omitempty"`
}

// WebSocketChannel is a server-side WebSocket transport for local or
// embedded clients. Each connection is its own chat.
type WebSocketChannel struct {
	*BaseChannel
	config    config.WebSocketConfig
	server    *http.Server
	upgrader  websocket.Upgrader
	chatConns map[string]*websocket.Conn // chatID -> conn
	mu        sync.RWMutex
}

func NewWebSocketChannel(cfg config.WebSocketConfig, messageBus *bus.MessageBus) (*WebSocketChannel, error) {
	return &WebSocketChannel{
		BaseChannel: NewBaseChannel("websocket", messageBus, cfg.AllowFrom),
		config:      cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		chatConns: make(map[string]*websocket.Conn),
	}, nil
}

func (c *WebSocketChannel) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(c.config.Path, c.handleWS)

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	c.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	c.setRunning(true)
	logger.InfoCF("websocket", "WebSocket server listening", map[string]any{
		"addr": addr,
		"path": c.config.Path,
	})

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("websocket", "Server error", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

func (c *WebSocketChannel) Stop(ctx context.Context) error {
	c.setRunning(false)

	c.mu.Lock()
	for chatID, conn := range c.chatConns {
		conn.Close()
		delete(c.chatConns, chatID)
	}
	c.mu.Unlock()

	if c.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return c.server.Shutdown(shutdownCtx)
	}
	return nil
}

func (c *WebSocketChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	c.mu.RLock()
	conn, ok := c.chatConns[msg.ChatID]
	c.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no websocket client for chat %s", msg.ChatID)
	}

	return conn.WriteJSON(wsOutgoing{
		Content: msg.Content,
		Choices: msg.Choices,
	})
}

func (c *WebSocketChannel) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorCF("websocket", "Upgrade failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	chatID := uuid.NewString()

	c.mu.Lock()
	c.chatConns[chatID] = conn
	c.mu.Unlock()

	logger.InfoCF("websocket", "Client connected", map[string]any{
		"chat_id": chatID,
	})

	defer func() {
		c.mu.Lock()
		delete(c.chatConns, chatID)
		c.mu.Unlock()
		conn.Close()
		logger.InfoCF("websocket", "Client disconnected", map[string]any{
			"chat_id": chatID,
		})
	}()

	for {
		var in wsIncoming
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if in.Content == "" {
			continue
		}

		senderID := in.SenderID
		if senderID == "" {
			senderID = chatID
		}

		c.HandleMessage(senderID, chatID, in.Content, nil)
	}
}
