// Package flow drives multi-step data-collection dialogs over a chat
// transport. A command is an ordered list of prompts; each chat owns a stack
// of in-progress command frames so commands can delegate single fields to
// other commands and resume where they left off.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/caravelbot/caravel/pkg/schema"
)

// ChatRef identifies one conversation on one transport channel.
type ChatRef struct {
	Channel string
	ChatID  string
}

func (c ChatRef) Key() string {
	return c.Channel + ":" + c.ChatID
}

// Meta carries invocation context into validators and actions.
type Meta struct {
	Chat         ChatRef
	SenderID     string
	InvocationID string
}

// ParseFunc converts a raw reply into a typed value. It overrides the
// kind's default parsing when set on a prompt.
type ParseFunc func(raw string) (any, error)

// ValidateFunc checks a parsed value against the answers collected so far.
// A non-nil error is sent back into the chat and the prompt repeats.
type ValidateFunc func(value any, answers *Answers) error

// ActionFunc runs once a command's answers are complete and valid. The
// returned string, if non-empty, is sent to the chat.
type ActionFunc func(ctx context.Context, meta Meta, answers *Answers) (string, error)

// PromptSpec declares a single question within a command.
type PromptSpec struct {
	Key     string
	Prompt  string
	Help    string
	Kind    schema.Kind
	Choices []string

	// Delegate names another registered command whose finalized answers
	// become this prompt's value. A delegated prompt asks nothing itself.
	Delegate string

	Parse    ParseFunc
	Validate ValidateFunc
}

// CommandSpec is the declarative definition of a flow command.
type CommandSpec struct {
	Name        string
	Description string
	Category    string
	Public      bool

	// Cooldown overrides the dispatcher-wide default when positive.
	Cooldown time.Duration

	Prompts []PromptSpec
	Schema  *schema.Schema
	Action  ActionFunc
}

func (c *CommandSpec) validate() error {
	if c.Name == "" {
		return fmt.Errorf("command has no name")
	}

	seen := make(map[string]bool, len(c.Prompts))
	for _, p := range c.Prompts {
		if p.Key == "" {
			return fmt.Errorf("command %s: prompt with empty key", c.Name)
		}
		if seen[p.Key] {
			return fmt.Errorf("command %s: duplicate prompt key %q", c.Name, p.Key)
		}
		seen[p.Key] = true

		choiceKind := p.Kind == schema.KindSingleChoice || p.Kind == schema.KindMultiChoice
		if choiceKind && len(p.Choices) == 0 && p.Delegate == "" {
			return fmt.Errorf("command %s: prompt %q is a choice kind without choices", c.Name, p.Key)
		}
	}
	return nil
}
