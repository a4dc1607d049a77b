package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/caravelbot/caravel/pkg/bus"
	"github.com/caravelbot/caravel/pkg/config"
	"github.com/caravelbot/caravel/pkg/logger"
	"github.com/caravelbot/caravel/pkg/utils"
)

const telegramMaxMessageLength = 4096

func init() {
	registerFactory("telegram", func(cfg *config.Config, messageBus *bus.MessageBus) (Channel, error) {
		return NewTelegramChannel(cfg.Channels.Telegram, messageBus)
	})
}

// TelegramChannel talks to the Telegram Bot API via long polling. Choice
// affordances are rendered as one-time reply keyboards.
type TelegramChannel struct {
	*BaseChannel
	bot    *telego.Bot
	config config.TelegramConfig
}

func NewTelegramChannel(cfg config.TelegramConfig, messageBus *bus.MessageBus) (*TelegramChannel, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel("telegram", messageBus, cfg.AllowFrom),
		bot:         bot,
		config:      cfg,
	}, nil
}

func (c *TelegramChannel) MaxMessageLength() int {
	return telegramMaxMessageLength
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.setRunning(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]any{
		"username": c.bot.Username(),
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.InfoC("telegram", "Updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(update)
				}
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot...")
	c.setRunning(false)
	return nil
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err)
	}

	tgMsg := tu.Message(tu.ID(chatID), msg.Content)
	if len(msg.Choices) > 0 {
		tgMsg.ReplyMarkup = choiceKeyboard(msg.Choices)
	} else {
		tgMsg.ReplyMarkup = &telego.ReplyKeyboardRemove{RemoveKeyboard: true}
	}

	if _, err := c.bot.SendMessage(ctx, tgMsg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// choiceKeyboard renders choices as a one-time reply keyboard, two
// buttons per row.
func choiceKeyboard(choices []string) *telego.ReplyKeyboardMarkup {
	var rows [][]telego.KeyboardButton
	for i := 0; i < len(choices); i += 2 {
		end := i + 2
		if end > len(choices) {
			end = len(choices)
		}
		var row []telego.KeyboardButton
		for _, c := range choices[i:end] {
			row = append(row, tu.KeyboardButton(c))
		}
		rows = append(rows, row)
	}

	return tu.Keyboard(rows...).WithResizeKeyboard().WithOneTimeKeyboard()
}

func (c *TelegramChannel) handleMessage(update telego.Update) {
	message := update.Message
	user := message.From
	if user == nil {
		return
	}

	userID := strconv.FormatInt(user.ID, 10)
	senderID := userID
	if user.Username != "" {
		senderID = fmt.Sprintf("%s|%s", userID, user.Username)
	}

	content := message.Text
	if content == "" {
		return
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)

	logger.DebugCF("telegram", "Received message", map[string]any{
		"sender_id": senderID,
		"chat_id":   chatID,
		"preview":   utils.Truncate(content, 50),
	})

	metadata := map[string]string{
		"message_id": strconv.Itoa(message.MessageID),
		"username":   user.Username,
		"is_group":   strconv.FormatBool(message.Chat.Type != "private"),
	}

	c.HandleMessage(senderID, chatID, content, metadata)
}
