// Package commands ships the flow commands Caravel registers at startup.
// They double as a reference for wiring your own: every prompt kind, a
// validator, a delegated sub-command and an admin-only command appear here.
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caravelbot/caravel/pkg/flow"
	"github.com/caravelbot/caravel/pkg/logger"
	"github.com/caravelbot/caravel/pkg/schema"
)

// RegisterBuiltins adds the stock commands to the registry. It panics on a
// name collision, which at startup is a programming error.
func RegisterBuiltins(reg *flow.Registry) {
	reg.MustRegister(Ping())
	reg.MustRegister(ContactInfo())
	reg.MustRegister(Feedback())
	reg.MustRegister(Announce())
}

// Ping is the smallest possible command: no prompts, immediate action.
func Ping() *flow.CommandSpec {
	return &flow.CommandSpec{
		Name:        "ping",
		Description: "Check that the bot is alive",
		Category:    "General",
		Public:      true,
		Action: func(ctx context.Context, meta flow.Meta, answers *flow.Answers) (string, error) {
			return "pong", nil
		},
	}
}

// ContactInfo collects a name and email address. Feedback delegates to it,
// but it can also be started on its own.
func ContactInfo() *flow.CommandSpec {
	return &flow.CommandSpec{
		Name:        "contact_info",
		Description: "Share your contact details",
		Category:    "General",
		Public:      true,
		Prompts: []flow.PromptSpec{
			{
				Key:    "name",
				Prompt: "What is your name?",
				Kind:   schema.KindText,
				Validate: func(value any, answers *flow.Answers) error {
					if strings.TrimSpace(value.(string)) == "" {
						return fmt.Errorf("A name cannot be empty.")
					}
					return nil
				},
			},
			{
				Key:    "email",
				Prompt: "What is your email address?",
				Help:   "Something like you@example.com. It is only used to follow up.",
				Kind:   schema.KindText,
				Validate: func(value any, answers *flow.Answers) error {
					s := value.(string)
					at := strings.Index(s, "@")
					if at <= 0 || !strings.Contains(s[at:], ".") {
						return fmt.Errorf("That does not look like an email address.")
					}
					return nil
				},
			},
		},
		Schema: schema.NewSchema(
			schema.Field{Key: "name", Kind: schema.KindText, Required: true},
			schema.Field{Key: "email", Kind: schema.KindText, Required: true},
		),
	}
}

var feedbackRatings = []string{"1", "2", "3", "4", "5"}
var feedbackAspects = []string{"reliability", "speed", "design", "support"}

// Feedback walks through every prompt kind and hands the contact step to
// contact_info.
func Feedback() *flow.CommandSpec {
	return &flow.CommandSpec{
		Name:        "feedback",
		Description: "Tell us how we are doing",
		Category:    "General",
		Public:      true,
		Prompts: []flow.PromptSpec{
			{
				Key:     "rating",
				Prompt:  "How would you rate us, 1 (poor) to 5 (great)?",
				Kind:    schema.KindSingleChoice,
				Choices: feedbackRatings,
			},
			{
				Key:     "aspects",
				Prompt:  "Which aspects is this about?",
				Kind:    schema.KindMultiChoice,
				Choices: feedbackAspects,
			},
			{
				Key:    "comment",
				Prompt: "Anything you would like to add?",
				Help:   "Free text, as long or short as you like.",
				Kind:   schema.KindText,
			},
			{Key: "contact", Kind: schema.KindObject, Delegate: "contact_info"},
		},
		Schema: schema.NewSchema(
			schema.Field{Key: "rating", Kind: schema.KindSingleChoice, Required: true, Choices: feedbackRatings},
			schema.Field{Key: "aspects", Kind: schema.KindMultiChoice, Required: true, Choices: feedbackAspects},
			schema.Field{Key: "comment", Kind: schema.KindText, Required: true},
			schema.Field{Key: "contact", Kind: schema.KindObject, Required: true},
		),
		Action: func(ctx context.Context, meta flow.Meta, answers *flow.Answers) (string, error) {
			logger.InfoCF("commands", "Feedback received", map[string]any{
				"chat":   meta.Chat.Key(),
				"rating": answers.String("rating"),
			})
			return fmt.Sprintf("Thanks for the feedback, you rated us %s/5.", answers.String("rating")), nil
		},
	}
}

// Announce is admin-only and carries its own cooldown so a fat-fingered
// repeat does not double-post.
func Announce() *flow.CommandSpec {
	return &flow.CommandSpec{
		Name:        "announce",
		Description: "Compose an announcement",
		Category:    "Admin",
		Cooldown:    30 * time.Second,
		Prompts: []flow.PromptSpec{
			{
				Key:    "message",
				Prompt: "What should the announcement say?",
				Kind:   schema.KindText,
			},
			{
				Key:    "confirm",
				Prompt: "Post it?",
				Kind:   schema.KindConfirm,
			},
		},
		Schema: schema.NewSchema(
			schema.Field{Key: "message", Kind: schema.KindText, Required: true},
			schema.Field{Key: "confirm", Kind: schema.KindConfirm, Required: true},
		),
		Action: func(ctx context.Context, meta flow.Meta, answers *flow.Answers) (string, error) {
			if !answers.Bool("confirm") {
				return "Announcement discarded.", nil
			}
			logger.InfoCF("commands", "Announcement posted", map[string]any{
				"chat": meta.Chat.Key(), "by": meta.SenderID,
			})
			return fmt.Sprintf("Announcement posted:\n%s", answers.String("message")), nil
		},
	}
}
