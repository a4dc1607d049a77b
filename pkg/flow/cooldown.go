package flow

import (
	"sync"
	"time"
)

// CooldownLedger records, per sender and command, the time of the last
// invocation. Senders across all chats share one ledger, so it is
// synchronized independently of the per-chat state.
type CooldownLedger struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewCooldownLedger() *CooldownLedger {
	return &CooldownLedger{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

func cooldownKey(senderID, command string) string {
	return senderID + "\x00" + command
}

// Remaining reports how much of the window is left for this sender and
// command. Zero means the command may run.
func (l *CooldownLedger) Remaining(senderID, command string, window time.Duration) time.Duration {
	if window <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.last[cooldownKey(senderID, command)]
	if !ok {
		return 0
	}
	remaining := window - l.now().Sub(t)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Touch records an invocation at the current time.
func (l *CooldownLedger) Touch(senderID, command string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last[cooldownKey(senderID, command)] = l.now()
}
