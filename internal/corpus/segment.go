package corpus

import "strings"

// Locate finds the first occurrence of needle in haystack and returns its
// byte offset. It is the single substring-search primitive shared by theme
// application and selection mapping: both inherit its limitation that
// repeated text always resolves to the first occurrence.
func Locate(needle, haystack string) (int, bool) {
	if needle == "" {
		return 0, false
	}
	idx := strings.Index(haystack, needle)
	if idx < 0 {
		return 0, false
	}
	return idx, true
}

// MapSelection converts a raw user text selection into a canonical segment
// against the document's full logical text. hint is the structural offset
// the rendering layer believes the selection starts at, or a negative value
// when no structural offset is known. The hint is used only when the full
// text actually contains the selected text at that offset; otherwise the
// selection falls back to a first-occurrence search, which maps a selection
// of repeated text to its first occurrence rather than the one the user
// highlighted. Returns nil for empty or whitespace-only selections and when
// no occurrence exists.
func MapSelection(fullText, selected string, hint int) *Segment {
	if strings.TrimSpace(selected) == "" {
		return nil
	}

	if hint >= 0 && hint+len(selected) <= len(fullText) && fullText[hint:hint+len(selected)] == selected {
		return &Segment{Text: selected, Start: hint, End: hint + len(selected)}
	}

	start, ok := Locate(selected, fullText)
	if !ok {
		return nil
	}
	return &Segment{Text: selected, Start: start, End: start + len(selected)}
}
