package flow

import "sync"

// Invocation is the completion handle returned by Dispatcher.Invoke. It
// resolves once the command's frame is finalized or stopped.
type Invocation struct {
	ID string

	mu      sync.Mutex
	done    chan struct{}
	answers *Answers
	err     error
}

func newInvocation(id string) *Invocation {
	return &Invocation{ID: id, done: make(chan struct{})}
}

// Done is closed when the invocation has completed or was stopped.
func (inv *Invocation) Done() <-chan struct{} {
	return inv.done
}

// Result returns the finalized answers, or the error that ended the
// invocation. Valid once Done is closed; before that it reports nil, nil.
func (inv *Invocation) Result() (*Answers, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.answers, inv.err
}

func (inv *Invocation) resolve(answers *Answers) {
	inv.mu.Lock()
	inv.answers = answers
	inv.mu.Unlock()
	close(inv.done)
}

func (inv *Invocation) fail(err error) {
	inv.mu.Lock()
	inv.err = err
	inv.mu.Unlock()
	close(inv.done)
}
