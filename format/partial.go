package format

import (
	"strings"

	"github.com/tidwall/gjson"
)

// CompleteJSON closes the open strings, arrays, and objects of a JSON
// fragment so it can be decoded mid-stream. Returns ok=false when the
// fragment cannot be turned into a valid document yet.
func CompleteJSON(fragment string) (string, bool) {
	frag := strings.TrimSpace(fragment)
	if frag == "" {
		return "", false
	}
	if gjson.Valid(frag) {
		return frag, true
	}
	if completed, ok := closeOpen(frag); ok {
		return completed, true
	}
	// A trailing partial token (half a key, "tru", "12e") can block closing.
	// Cut back to the last safe boundary and retry.
	if cut := lastSafeCut(frag); cut > 0 && cut < len(frag) {
		if completed, ok := closeOpen(strings.TrimSpace(frag[:cut])); ok {
			return completed, true
		}
	}
	return "", false
}

// closeOpen appends the closers for every unterminated string, array, and
// object in the fragment, patching a dangling comma or colon first.
func closeOpen(frag string) (string, bool) {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(frag); i++ {
		c := frag[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
		}
	}

	out := frag
	if inString {
		if escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	}

	trimmed := strings.TrimRight(out, " \t\r\n")
	switch {
	case strings.HasSuffix(trimmed, ","):
		out = strings.TrimSuffix(trimmed, ",")
	case strings.HasSuffix(trimmed, ":"):
		out = trimmed + "null"
	}

	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	if !gjson.Valid(out) {
		return "", false
	}
	return out, true
}

// lastSafeCut returns the position just past the last structural boundary in
// the fragment, skipping boundaries inside strings.
func lastSafeCut(frag string) int {
	inString := false
	escaped := false
	cut := 0
	for i := 0; i < len(frag); i++ {
		c := frag[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			cut = i
		case '{', '[', '}', ']':
			cut = i + 1
		}
	}
	return cut
}
