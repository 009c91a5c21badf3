package lifecycle

import "strings"

// Thread name markers.
const (
	MarkerOpen       = "📋"
	MarkerResolved   = "✅"
	MarkerAutoClosed = "⏳"
)

const maxThreadName = 100

// markName swaps the open marker for marker. Names that already carry a
// terminal marker are returned unchanged.
func markName(name, marker string) string {
	if strings.HasPrefix(name, MarkerResolved) || strings.HasPrefix(name, MarkerAutoClosed) {
		return name
	}
	rest := strings.TrimSpace(strings.TrimPrefix(name, MarkerOpen))
	out := marker + " " + rest
	if r := []rune(out); len(r) > maxThreadName {
		out = string(r[:maxThreadName])
	}
	return out
}

// OpenName is the name a new ticket thread gets.
func OpenName(title string) string {
	out := MarkerOpen + " " + strings.TrimSpace(title)
	if r := []rune(out); len(r) > maxThreadName {
		out = string(r[:maxThreadName])
	}
	return out
}
