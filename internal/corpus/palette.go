package corpus

import "strconv"

// palette is the fixed rotation of highlight colors. Codes are colored by
// creation order mod palette size; colors freed by deletion are not reused,
// so the index base drifts with total codes ever created in a session.
var palette = []string{
	"#fecaca", // red
	"#fed7aa", // orange
	"#fde68a", // amber
	"#d9f99d", // lime
	"#a7f3d0", // emerald
	"#99f6e4", // teal
	"#bae6fd", // sky
	"#c7d2fe", // indigo
	"#e9d5ff", // purple
	"#fbcfe8", // pink
}

// PaletteColor returns the palette entry for the nth code.
func PaletteColor(n int) string {
	return palette[((n%len(palette))+len(palette))%len(palette)]
}

// PaletteSize is the number of colors in the rotation.
func PaletteSize() int { return len(palette) }

// ContrastColor picks a legible foreground for a hex background color using
// the YIQ brightness formula: light backgrounds get black text, dark ones
// white. Unparseable input is treated as black components, yielding white.
func ContrastColor(hexColor string) string {
	r, g, b := parseHex(hexColor)
	yiq := (r*299 + g*587 + b*114) / 1000
	if yiq >= 128 {
		return "black"
	}
	return "white"
}

func parseHex(hexColor string) (int64, int64, int64) {
	s := hexColor
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return 0, 0, 0
	}
	r, _ := strconv.ParseInt(s[0:2], 16, 32)
	g, _ := strconv.ParseInt(s[2:4], 16, 32)
	b, _ := strconv.ParseInt(s[4:6], 16, 32)
	return r, g, b
}
