package flow

// Answers is an insertion-ordered map of prompt key to collected value.
// Iteration order matches the order prompts were answered, which matches
// the command's declared prompt order.
type Answers struct {
	keys   []string
	values map[string]any
}

func NewAnswers() *Answers {
	return &Answers{values: make(map[string]any)}
}

// Set stores a value. Overwriting an existing key keeps its position.
func (a *Answers) Set(key string, value any) {
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
}

func (a *Answers) Get(key string) (any, bool) {
	v, ok := a.values[key]
	return v, ok
}

// Keys returns the answer keys in insertion order.
func (a *Answers) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

func (a *Answers) Len() int {
	return len(a.keys)
}

// Map returns a shallow copy of the answers as a plain map.
func (a *Answers) Map() map[string]any {
	out := make(map[string]any, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// String fetches a string-typed answer, returning "" when absent or not a
// string. Convenience for actions.
func (a *Answers) String(key string) string {
	if v, ok := a.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Number fetches a float64-typed answer, returning 0 when absent or not a
// number.
func (a *Answers) Number(key string) float64 {
	if v, ok := a.values[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	return 0
}

// Bool fetches a bool-typed answer, returning false when absent.
func (a *Answers) Bool(key string) bool {
	if v, ok := a.values[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
