package flow

import "sync"

// Frame is one in-progress invocation of a command: a cursor into its
// prompt list, the answers collected so far and, for MultiChoice prompts,
// the in-flight accumulator. Frames are owned by their chat's stack and are
// only ever touched while that chat's messages are being processed.
type Frame struct {
	Command *CommandSpec
	Cursor  int
	Answers *Answers

	meta Meta

	// accum holds MultiChoice selections until the terminator arrives.
	accum map[string][]any

	// parentKey is set on delegated frames: the prompt key in the parent
	// frame that this frame's finalized answers will fill.
	parentKey string

	// pending is the completion handle for programmatic invocations.
	pending *Invocation
}

func newFrame(cmd *CommandSpec, meta Meta, parentKey string) *Frame {
	return &Frame{
		Command:   cmd,
		Answers:   NewAnswers(),
		meta:      meta,
		accum:     make(map[string][]any),
		parentKey: parentKey,
	}
}

// CurrentPrompt returns the pending prompt, or false when the cursor has
// run off the end of the list.
func (f *Frame) CurrentPrompt() (*PromptSpec, bool) {
	if f.Cursor < 0 || f.Cursor >= len(f.Command.Prompts) {
		return nil, false
	}
	return &f.Command.Prompts[f.Cursor], true
}

func (f *Frame) Exhausted() bool {
	return f.Cursor >= len(f.Command.Prompts)
}

func (f *Frame) accumulate(key string, value any) int {
	f.accum[key] = append(f.accum[key], value)
	return len(f.accum[key])
}

func (f *Frame) accumulated(key string) []any {
	items := f.accum[key]
	out := make([]any, len(items))
	copy(out, items)
	return out
}

// Stack is the per-chat stack of active frames; the last element is the
// frame currently collecting answers.
type Stack struct {
	frames []*Frame
}

func (s *Stack) Push(f *Frame) {
	s.frames = append(s.frames, f)
}

func (s *Stack) Pop() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f
}

func (s *Stack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func (s *Stack) Depth() int {
	return len(s.frames)
}

func (s *Stack) Empty() bool {
	return len(s.frames) == 0
}

// chatState bundles a chat's stack with its processing lock. The lock
// guarantees at most one in-flight message per chat even if the caller does
// not serialize deliveries itself.
type chatState struct {
	mu    sync.Mutex
	stack Stack
}
