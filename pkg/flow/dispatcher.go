package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caravelbot/caravel/pkg/bus"
	"github.com/caravelbot/caravel/pkg/logger"
)

// Options tunes a Dispatcher.
type Options struct {
	// Tokens overrides the reserved control inputs. Zero values fall back
	// to "help", "stop" and "done".
	Tokens Tokens

	// DefaultCooldown applies to commands that do not declare their own.
	DefaultCooldown time.Duration

	// Admins are sender ids allowed to run private commands.
	Admins []string
}

// Dispatcher routes inbound chat messages: control tokens, command
// invocations, or replies to the chat's pending prompt. It owns the per-chat
// frame stacks; nothing else mutates them.
type Dispatcher struct {
	registry  *Registry
	send      Sender
	engine    *promptEngine
	cooldowns *CooldownLedger
	tokens    Tokens
	cooldown  time.Duration
	admins    map[string]bool

	mu    sync.Mutex
	chats map[string]*chatState
}

func NewDispatcher(registry *Registry, send Sender, opts Options) *Dispatcher {
	tokens := opts.Tokens.withDefaults()

	admins := make(map[string]bool, len(opts.Admins))
	for _, a := range opts.Admins {
		admins[a] = true
	}

	return &Dispatcher{
		registry:  registry,
		send:      send,
		engine:    &promptEngine{send: send, tokens: tokens},
		cooldowns: NewCooldownLedger(),
		tokens:    tokens,
		cooldown:  opts.DefaultCooldown,
		admins:    admins,
		chats:     make(map[string]*chatState),
	}
}

// Cooldowns exposes the ledger, mainly so tests can inject a clock.
func (d *Dispatcher) Cooldowns() *CooldownLedger {
	return d.cooldowns
}

func (d *Dispatcher) chatState(chat ChatRef) *chatState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.chats[chat.Key()]
	if !ok {
		st = &chatState{}
		d.chats[chat.Key()] = st
	}
	return st
}

// InFlow reports whether the chat currently has an active frame stack.
func (d *Dispatcher) InFlow(chat ChatRef) bool {
	st := d.chatState(chat)
	st.mu.Lock()
	defer st.mu.Unlock()
	return !st.stack.Empty()
}

// Depth reports the chat's current stack depth.
func (d *Dispatcher) Depth(chat ChatRef) int {
	st := d.chatState(chat)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.stack.Depth()
}

func (d *Dispatcher) privileged(senderID string) bool {
	return d.admins[senderID]
}

// HandleMessage processes one inbound message for its chat. Messages for
// the same chat are serialized on the chat's lock; distinct chats proceed
// in parallel.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	chat := ChatRef{Channel: msg.Channel, ChatID: msg.ChatID}
	st := d.chatState(chat)

	st.mu.Lock()
	defer st.mu.Unlock()

	raw := strings.TrimSpace(msg.Content)
	if raw == "" {
		return
	}

	if st.stack.Empty() {
		d.handleIdle(ctx, st, chat, msg.SenderID, raw)
		return
	}

	if isToken(raw, d.tokens.Stop) || isToken(raw, "/"+d.tokens.Stop) {
		d.stopTop(ctx, st, chat)
		return
	}

	frame := st.stack.Top()
	outcome, value := d.engine.HandleReply(ctx, chat, frame, raw)
	if outcome != outcomeResolved {
		return
	}

	if p, ok := frame.CurrentPrompt(); ok {
		frame.Answers.Set(p.Key, value)
	}
	frame.Cursor++
	d.advance(ctx, st, chat)
}

// handleIdle treats the text as a command invocation attempt.
func (d *Dispatcher) handleIdle(ctx context.Context, st *chatState, chat ChatRef, senderID, raw string) {
	name := normalizeCommandToken(raw)
	if name == "" {
		d.send.Send(ctx, chat, fmt.Sprintf("I did not understand that. Send %q to see available commands.", d.tokens.Help), nil)
		return
	}

	if strings.EqualFold(name, d.tokens.Help) {
		d.send.Send(ctx, chat, d.renderCatalog(d.privileged(senderID)), nil)
		return
	}

	if strings.EqualFold(name, d.tokens.Stop) {
		d.send.Send(ctx, chat, "There is no active command to stop.", nil)
		return
	}

	err := d.start(ctx, st, chat, senderID, name, nil)
	var cd *CooldownError
	switch {
	case err == nil:
	case errors.Is(err, ErrCommandNotFound):
		d.send.Send(ctx, chat, fmt.Sprintf("Unknown command %q. Send %q to see available commands.", name, d.tokens.Help), nil)
	case errors.Is(err, ErrUnauthorized):
		d.send.Send(ctx, chat, fmt.Sprintf("Command %q is restricted.", name), nil)
	case errors.As(err, &cd):
		d.send.Send(ctx, chat, fmt.Sprintf("Slow down, try %q again in %s.", name, cd.Remaining.Round(time.Second)), nil)
	default:
		logger.ErrorCF("flow", "Failed to start command", map[string]any{
			"command": name, "chat": chat.Key(), "error": err.Error(),
		})
		d.send.Send(ctx, chat, "Something went wrong starting that command.", nil)
	}
}

// Start begins a command interactively, as if the sender had typed its
// name. ErrCommandNotFound, ErrUnauthorized and *CooldownError surface
// synchronously; all later outcomes are reported into the chat.
func (d *Dispatcher) Start(ctx context.Context, name string, chat ChatRef, senderID string) error {
	st := d.chatState(chat)
	st.mu.Lock()
	defer st.mu.Unlock()
	return d.start(ctx, st, chat, senderID, name, nil)
}

// Invoke begins a command programmatically and returns a completion handle
// that resolves with the finalized answers. The same synchronous errors as
// Start apply.
func (d *Dispatcher) Invoke(ctx context.Context, name string, chat ChatRef, senderID string) (*Invocation, error) {
	st := d.chatState(chat)
	st.mu.Lock()
	defer st.mu.Unlock()

	inv := newInvocation(uuid.NewString())
	if err := d.start(ctx, st, chat, senderID, name, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (d *Dispatcher) start(ctx context.Context, st *chatState, chat ChatRef, senderID, name string, pending *Invocation) error {
	spec, ok := d.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}

	if !spec.Public && !d.privileged(senderID) {
		return fmt.Errorf("%w: %s", ErrUnauthorized, spec.Name)
	}

	window := d.cooldown
	if spec.Cooldown > 0 {
		window = spec.Cooldown
	}
	if remaining := d.cooldowns.Remaining(senderID, spec.Name, window); remaining > 0 {
		return &CooldownError{Command: spec.Name, Remaining: remaining}
	}

	meta := Meta{Chat: chat, SenderID: senderID, InvocationID: uuid.NewString()}
	frame := newFrame(spec, meta, "")
	frame.pending = pending
	st.stack.Push(frame)
	d.cooldowns.Touch(senderID, spec.Name)

	logger.InfoCF("flow", "Command started", map[string]any{
		"command": spec.Name, "chat": chat.Key(), "invocation": meta.InvocationID,
	})

	d.advance(ctx, st, chat)
	return nil
}

// advance drives the top frame forward: launching delegated sub-commands,
// rendering the next prompt, or finalizing exhausted frames. It loops so a
// finalized child immediately resumes its parent.
func (d *Dispatcher) advance(ctx context.Context, st *chatState, chat ChatRef) {
	for {
		frame := st.stack.Top()
		if frame == nil {
			return
		}

		if frame.Exhausted() {
			d.finalize(ctx, st, chat, frame)
			continue
		}

		p, _ := frame.CurrentPrompt()
		if p.Delegate != "" {
			// The cursor only rests on a delegate prompt while no child
			// frame exists above it, so this either launches the
			// sub-command or relaunches it after a stop unwound it.
			child, ok := d.registry.Lookup(p.Delegate)
			if !ok {
				logger.ErrorCF("flow", "Delegated command missing from registry", map[string]any{
					"command": frame.Command.Name, "prompt": p.Key, "delegate": p.Delegate,
				})
				d.send.Send(ctx, chat, "Something went wrong, the command was cancelled.", nil)
				d.discard(st.stack.Pop())
				continue
			}

			st.stack.Push(newFrame(child, frame.meta, p.Key))
			continue
		}

		d.engine.Begin(ctx, chat, p)
		return
	}
}

// finalize is the result sink: aggregate validation, action invocation,
// pop, and parent resumption or caller resolution.
func (d *Dispatcher) finalize(ctx context.Context, st *chatState, chat ChatRef, frame *Frame) {
	spec := frame.Command

	// Per-prompt validation already guaranteed field-level validity; a
	// mismatch here is a schema/prompt inconsistency in the command
	// definition, not bad user input. The frame is still popped so the
	// chat does not get stuck, but the action is skipped and no success
	// message follows the failure report.
	consistent := true
	if err := spec.Schema.Validate(frame.Answers.Map()); err != nil {
		consistent = false
		logger.ErrorCF("flow", "Aggregate schema mismatch after prompts resolved", map[string]any{
			"command": spec.Name, "invocation": frame.meta.InvocationID, "error": err.Error(),
		})
		d.send.Send(ctx, chat, fmt.Sprintf("Something went wrong while finishing %s.", spec.Name), nil)
	}

	actionReply := ""
	if consistent && spec.Action != nil {
		out, err := spec.Action(ctx, frame.meta, frame.Answers)
		if err != nil {
			logger.ErrorCF("flow", "Command action failed", map[string]any{
				"command": spec.Name, "invocation": frame.meta.InvocationID, "error": err.Error(),
			})
			d.send.Send(ctx, chat, fmt.Sprintf("%s could not be completed, please try again later.", spec.Name), nil)
		} else {
			actionReply = out
		}
	}

	st.stack.Pop()

	if frame.pending != nil {
		frame.pending.resolve(frame.Answers)
	}

	logger.InfoCF("flow", "Command finalized", map[string]any{
		"command": spec.Name, "chat": chat.Key(), "answers": frame.Answers.Len(),
	})

	parent := st.stack.Top()
	if parent != nil && frame.parentKey != "" {
		parent.Answers.Set(frame.parentKey, frame.Answers.Map())
		parent.Cursor++
		if actionReply != "" {
			d.send.Send(ctx, chat, actionReply, nil)
		}
		return
	}

	switch {
	case actionReply != "":
		d.send.Send(ctx, chat, actionReply, nil)
	case frame.pending == nil && consistent:
		d.send.Send(ctx, chat, fmt.Sprintf("All set — %s finished.", spec.Name), nil)
	}
}

// stopTop pops exactly one frame, discarding its partial answers, and
// resumes the parent frame's pending prompt if one exists. Popping and the
// notification are done under the chat lock, so the stack can never be
// observed half-popped.
func (d *Dispatcher) stopTop(ctx context.Context, st *chatState, chat ChatRef) {
	frame := st.stack.Pop()
	if frame == nil {
		return
	}
	d.discard(frame)

	if st.stack.Empty() {
		d.send.Send(ctx, chat, fmt.Sprintf("Stopped %s.", frame.Command.Name), nil)
		return
	}

	parent := st.stack.Top()
	d.send.Send(ctx, chat, fmt.Sprintf("Stopped %s, back to %s.", frame.Command.Name, parent.Command.Name), nil)
	d.advance(ctx, st, chat)
}

func (d *Dispatcher) discard(frame *Frame) {
	if frame == nil {
		return
	}
	if frame.pending != nil {
		frame.pending.fail(ErrStopped)
	}
	logger.InfoCF("flow", "Command stopped", map[string]any{
		"command": frame.Command.Name, "answers_discarded": frame.Answers.Len(),
	})
}

// renderCatalog lists visible commands grouped by category.
func (d *Dispatcher) renderCatalog(privileged bool) string {
	cats := d.registry.ListVisible(privileged)
	if len(cats) == 0 {
		return "No commands are available."
	}

	var sb strings.Builder
	sb.WriteString("Available commands:\n")
	for _, cat := range cats {
		name := cat.Name
		if name == "" {
			name = "General"
		}
		fmt.Fprintf(&sb, "\n%s\n", name)
		for _, cmd := range cat.Commands {
			fmt.Fprintf(&sb, "  %s — %s\n", cmd.Name, cmd.Description)
		}
	}
	fmt.Fprintf(&sb, "\nSend a command name to start it, %q to cancel a running one.", d.tokens.Stop)
	return sb.String()
}

// normalizeCommandToken extracts a command name from idle chat input:
// leading slash and @bot suffix stripped, first token only.
func normalizeCommandToken(raw string) string {
	parts := strings.Fields(strings.TrimSpace(raw))
	if len(parts) == 0 {
		return ""
	}

	name := strings.TrimPrefix(parts[0], "/")
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}
