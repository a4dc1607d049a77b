package bus

type InboundMessage struct {
	Channel  string            `json:"channel"`
	SenderID string            `json:"sender_id"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	// Choices carries an optional choice affordance. Channels render it
	// natively where they can (Telegram reply keyboard) and as a plain
	// option list otherwise.
	Choices []string `json:"choices,omitempty"`
}
