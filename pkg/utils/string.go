package utils

import "strings"

// Truncate returns a truncated version of s with at most maxLen runes.
// If the string is truncated, "..." is appended to indicate truncation.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// SplitMessage splits long content into chunks of at most limit runes,
// preferring to break at a newline and then at a space. Limits are rune
// counts so multi-byte characters are never split in half.
func SplitMessage(content string, limit int) []string {
	if content == "" {
		return nil
	}
	if limit <= 0 {
		return []string{content}
	}

	var messages []string
	runes := []rune(content)

	for len(runes) > 0 {
		if len(runes) <= limit {
			messages = append(messages, string(runes))
			break
		}

		end := lastIndexWithin(runes[:limit], '\n', limit/4)
		if end <= 0 {
			end = lastIndexWithin(runes[:limit], ' ', limit/8)
		}
		if end <= 0 {
			end = limit
		}

		messages = append(messages, strings.TrimRight(string(runes[:end]), "\n "))
		runes = runes[end:]
		for len(runes) > 0 && (runes[0] == '\n' || runes[0] == ' ') {
			runes = runes[1:]
		}
	}

	return messages
}

// lastIndexWithin finds the last occurrence of sep in runes, but only if it
// sits within lookback runes of the end. Returns -1 otherwise.
func lastIndexWithin(runes []rune, sep rune, lookback int) int {
	floor := len(runes) - lookback
	if floor < 0 {
		floor = 0
	}
	for i := len(runes) - 1; i >= floor; i-- {
		if runes[i] == sep {
			return i
		}
	}
	return -1
}
