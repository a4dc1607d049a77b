// Package schema declares the field kinds a flow prompt can collect and
// validates raw replies and complete answer sets against them. It knows
// nothing about chats or transports; the flow engine feeds it strings and
// gets back typed values or an InvalidError.
package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindConfirm
	KindSingleChoice
	KindMultiChoice
	// KindObject marks a field whose value is produced by a delegated
	// sub-command: a nested map of that command's answers.
	KindObject
)

var kindNames = map[Kind]string{
	KindText:         "text",
	KindNumber:       "number",
	KindConfirm:      "confirm",
	KindSingleChoice: "single_choice",
	KindMultiChoice:  "multi_choice",
	KindObject:       "object",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// InvalidError reports a user-recoverable validation failure. The Reason is
// safe to send back into the chat.
type InvalidError struct {
	Field  string
	Reason string
}

func (e *InvalidError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func Invalid(field, format string, args ...any) *InvalidError {
	return &InvalidError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Parse converts a raw reply into the typed value for kind. choices is
// consulted for the choice kinds and must be non-empty there; the returned
// value is the canonical spelling from choices, not the user's casing.
func Parse(kind Kind, raw string, choices []string) (any, error) {
	raw = strings.TrimSpace(raw)

	switch kind {
	case KindText:
		return raw, nil

	case KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, Invalid("", "%q is not a number", raw)
		}
		return n, nil

	case KindConfirm:
		switch strings.ToLower(raw) {
		case "yes":
			return true, nil
		case "no":
			return false, nil
		}
		return nil, Invalid("", "please answer \"yes\" or \"no\"")

	case KindSingleChoice, KindMultiChoice:
		for _, c := range choices {
			if strings.EqualFold(c, raw) {
				return c, nil
			}
		}
		return nil, Invalid("", "%q is not one of: %s", raw, strings.Join(choices, ", "))

	default:
		return nil, fmt.Errorf("cannot parse into %s field", kind)
	}
}

// Field is one entry of an aggregate schema.
type Field struct {
	Key      string
	Kind     Kind
	Required bool
	Choices  []string
}

// Schema validates a complete answer map once a flow command has collected
// all of its prompts.
type Schema struct {
	Fields []Field
}

// NewSchema builds a schema from its fields.
func NewSchema(fields ...Field) *Schema {
	return &Schema{Fields: fields}
}

// Validate checks presence and value shape for every declared field. It
// returns the first mismatch; a non-nil result after per-prompt validation
// passed indicates a schema/prompt mismatch, not bad user input.
func (s *Schema) Validate(answers map[string]any) error {
	if s == nil {
		return nil
	}

	for _, f := range s.Fields {
		v, ok := answers[f.Key]
		if !ok {
			if f.Required {
				return Invalid(f.Key, "missing required answer")
			}
			continue
		}
		if err := f.check(v); err != nil {
			return err
		}
	}
	return nil
}

func (f Field) check(v any) error {
	switch f.Kind {
	case KindText:
		if _, ok := v.(string); !ok {
			return Invalid(f.Key, "expected text, got %T", v)
		}

	case KindNumber:
		switch v.(type) {
		case float64, int, int64:
		default:
			return Invalid(f.Key, "expected a number, got %T", v)
		}

	case KindConfirm:
		if _, ok := v.(bool); !ok {
			return Invalid(f.Key, "expected a yes/no answer, got %T", v)
		}

	case KindSingleChoice:
		s, ok := v.(string)
		if !ok {
			return Invalid(f.Key, "expected a choice, got %T", v)
		}
		if !f.allowed(s) {
			return Invalid(f.Key, "%q is not an allowed choice", s)
		}

	case KindMultiChoice:
		items, err := f.stringItems(v)
		if err != nil {
			return err
		}
		for _, item := range items {
			if !f.allowed(item) {
				return Invalid(f.Key, "%q is not an allowed choice", item)
			}
		}

	case KindObject:
		if _, ok := v.(map[string]any); !ok {
			return Invalid(f.Key, "expected a nested answer set, got %T", v)
		}
	}
	return nil
}

func (f Field) allowed(s string) bool {
	if len(f.Choices) == 0 {
		return true
	}
	for _, c := range f.Choices {
		if c == s {
			return true
		}
	}
	return false
}

func (f Field) stringItems(v any) ([]string, error) {
	switch items := v.(type) {
	case []string:
		return items, nil
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, Invalid(f.Key, "expected choice list items, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, Invalid(f.Key, "expected a choice list, got %T", v)
	}
}
