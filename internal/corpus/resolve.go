package corpus

import "sort"

// Run is a contiguous piece of rendered document output. A run with an empty
// CodeID is plain text; otherwise it carries the code's id and highlight
// color.
type Run struct {
	Text   string `json:"text"`
	CodeID string `json:"codeId,omitempty"`
	Color  string `json:"color,omitempty"`
}

// Coded reports whether the run is a highlighted quote rather than plain text.
func (r Run) Coded() bool { return r.CodeID != "" }

// Resolve flattens possibly-overlapping coded quotes over immutable text into
// an ordered sequence of runs. Quotes without offsets (region/timestamp
// quotes) are ignored. Quotes are walked in ascending start order; ties keep
// input order, so which of two same-start quotes wins is stable but
// unspecified beyond that.
//
// Overlap policy: the cursor only moves forward, and a quote never re-emits
// text the cursor has passed. A quote nested entirely inside an earlier,
// longer quote is suppressed; a quote that extends past the cursor claims
// only the remaining uncovered tail. Quotes whose code is missing from the
// supplied list emit nothing but still advance the cursor, so an orphaned
// range disappears from the output without garbling its surroundings.
func Resolve(text string, quotes []Quote, codes []Code) []Run {
	anchored := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.HasOffsets() {
			anchored = append(anchored, q)
		}
	}
	if len(anchored) == 0 {
		return []Run{{Text: text}}
	}

	sort.SliceStable(anchored, func(i, j int) bool {
		return *anchored[i].Start < *anchored[j].Start
	})

	colorByCode := make(map[string]string, len(codes))
	for _, c := range codes {
		colorByCode[c.ID] = c.Color
	}

	runs := make([]Run, 0, 2*len(anchored)+1)
	lastIndex := 0
	for _, q := range anchored {
		start, end := clamp(*q.Start, 0, len(text)), clamp(*q.End, 0, len(text))
		if start > lastIndex {
			runs = append(runs, Run{Text: text[lastIndex:start]})
			lastIndex = start
		}
		if color, ok := colorByCode[q.CodeID]; ok {
			if end > lastIndex {
				runs = append(runs, Run{Text: text[lastIndex:end], CodeID: q.CodeID, Color: color})
			}
		}
		if end > lastIndex {
			lastIndex = end
		}
	}
	if lastIndex < len(text) {
		runs = append(runs, Run{Text: text[lastIndex:]})
	}
	return runs
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
