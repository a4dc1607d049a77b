package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/caravelbot/caravel/pkg/schema"
)

// Sender emits outbound text plus an optional choice affordance. The bus
// adapter implements it in production; tests substitute a recorder.
type Sender interface {
	Send(ctx context.Context, chat ChatRef, text string, choices []string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, chat ChatRef, text string, choices []string) error

func (f SenderFunc) Send(ctx context.Context, chat ChatRef, text string, choices []string) error {
	return f(ctx, chat, text, choices)
}

// Tokens are the reserved control inputs, matched case-insensitively.
type Tokens struct {
	Help string
	Stop string
	Done string
}

func (t Tokens) withDefaults() Tokens {
	if t.Help == "" {
		t.Help = "help"
	}
	if t.Stop == "" {
		t.Stop = "stop"
	}
	if t.Done == "" {
		t.Done = "done"
	}
	return t
}

func isToken(raw, token string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), token)
}

// replyOutcome is the result of feeding one reply to the pending prompt.
type replyOutcome int

const (
	// outcomeRepeat: the reply did not advance the prompt (help shown or
	// input rejected); the same prompt stays pending.
	outcomeRepeat replyOutcome = iota
	// outcomeAccumulated: a MultiChoice selection was recorded; more may
	// follow until the terminator.
	outcomeAccumulated
	// outcomeResolved: the prompt produced its value.
	outcomeResolved
)

// promptEngine runs a single prompt: render, collect, validate. It holds no
// per-prompt state of its own; accumulation lives in the frame, so the
// engine stays stateless across prompts.
type promptEngine struct {
	send   Sender
	tokens Tokens
}

// Begin renders the prompt text plus the affordance for its kind.
func (e *promptEngine) Begin(ctx context.Context, chat ChatRef, p *PromptSpec) error {
	text := p.Prompt

	switch p.Kind {
	case schema.KindConfirm:
		return e.send.Send(ctx, chat, text, []string{"yes", "no"})
	case schema.KindSingleChoice:
		return e.send.Send(ctx, chat, text, p.Choices)
	case schema.KindMultiChoice:
		text = fmt.Sprintf("%s\nPick any number of options, then send %q.", text, e.tokens.Done)
		choices := make([]string, 0, len(p.Choices)+1)
		choices = append(choices, p.Choices...)
		choices = append(choices, e.tokens.Done)
		return e.send.Send(ctx, chat, text, choices)
	default:
		return e.send.Send(ctx, chat, text, nil)
	}
}

// HandleReply feeds one reply to the frame's pending prompt. On
// outcomeResolved the returned value is the prompt's final value; the
// caller writes it into the frame and advances the cursor.
func (e *promptEngine) HandleReply(ctx context.Context, chat ChatRef, frame *Frame, raw string) (replyOutcome, any) {
	p, ok := frame.CurrentPrompt()
	if !ok {
		return outcomeRepeat, nil
	}

	// The stop token is accepted with and without a leading slash; help
	// gets the same treatment.
	if (isToken(raw, e.tokens.Help) || isToken(raw, "/"+e.tokens.Help)) && p.Help != "" {
		e.send.Send(ctx, chat, p.Help, nil)
		return outcomeRepeat, nil
	}

	if p.Kind == schema.KindMultiChoice && isToken(raw, e.tokens.Done) {
		return outcomeResolved, frame.accumulated(p.Key)
	}

	value, err := e.parse(p, raw)
	if err != nil {
		e.send.Send(ctx, chat, e.rejection(p, err), nil)
		return outcomeRepeat, nil
	}

	if p.Validate != nil {
		if err := p.Validate(value, frame.Answers); err != nil {
			e.send.Send(ctx, chat, e.rejection(p, err), nil)
			return outcomeRepeat, nil
		}
	}

	if p.Kind == schema.KindMultiChoice {
		n := frame.accumulate(p.Key, value)
		ack := fmt.Sprintf("Added %v (%d selected). Send %q when finished.", value, n, e.tokens.Done)
		e.send.Send(ctx, chat, ack, nil)
		return outcomeAccumulated, nil
	}

	return outcomeResolved, value
}

func (e *promptEngine) parse(p *PromptSpec, raw string) (any, error) {
	if p.Parse != nil {
		return p.Parse(raw)
	}
	return schema.Parse(p.Kind, raw, p.Choices)
}

// rejection turns a parse/validation failure into actionable chat text:
// what was wrong, how to get help, how to cancel.
func (e *promptEngine) rejection(p *PromptSpec, err error) string {
	reason := err.Error()
	var inv *schema.InvalidError
	if errors.As(err, &inv) {
		reason = inv.Reason
	}

	hint := fmt.Sprintf("Send %q to cancel.", e.tokens.Stop)
	if p.Help != "" {
		hint = fmt.Sprintf("Send %q for help, %q to cancel.", e.tokens.Help, e.tokens.Stop)
	}
	return fmt.Sprintf("%s %s", reason, hint)
}
