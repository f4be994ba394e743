package corpus

import "testing"

func TestPaletteColorWrapsAround(t *testing.T) {
	if PaletteColor(0) != PaletteColor(PaletteSize()) {
		t.Errorf("expected index %d to wrap to index 0", PaletteSize())
	}
	if PaletteColor(1) != PaletteColor(PaletteSize()+1) {
		t.Errorf("expected index %d to wrap to index 1", PaletteSize()+1)
	}
}

func TestContrastColor(t *testing.T) {
	tests := []struct {
		background string
		expected   string
	}{
		{background: "#ffffff", expected: "black"},
		{background: "#000000", expected: "white"},
		{background: "#fde68a", expected: "black"}, // light amber highlight
		{background: "#1e3a8a", expected: "white"}, // dark blue
		{background: "#808080", expected: "black"}, // mid gray, YIQ exactly 128
		{background: "not-a-color", expected: "white"},
		{background: "", expected: "white"},
	}

	for _, tc := range tests {
		if got := ContrastColor(tc.background); got != tc.expected {
			t.Errorf("ContrastColor(%q): expected %s, got %s", tc.background, tc.expected, got)
		}
	}
}

func TestPaletteEntriesAreLegible(t *testing.T) {
	// Every palette color is a light highlight; all of them should take
	// black text.
	for i := 0; i < PaletteSize(); i++ {
		color := PaletteColor(i)
		if got := ContrastColor(color); got != "black" {
			t.Errorf("palette color %s unexpectedly resolves to %s text", color, got)
		}
	}
}
