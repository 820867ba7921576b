package views

import (
	"strings"

	"github.com/rivo/tview"
)

// dropped lists code point ranges tcell mis-measures: skin tone modifiers,
// the zero width joiner and variation selectors. Dropping them turns an
// emoji sequence into its base glyph. Bidi marks are kept so mixed Arabic
// and Latin text keeps its order.
var dropped = [][2]rune{
	{0x1F3FB, 0x1F3FF},
	{0x200D, 0x200D},
	{0xFE00, 0xFE0F},
	{0xE0100, 0xE01EF},
}

// sanitizeForTerminal strips dropped code points and control characters
// other than newline.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' {
			return -1
		}
		for _, rg := range dropped {
			if r >= rg[0] && r <= rg[1] {
				return -1
			}
		}
		return r
	}, s)
}

// clean sanitizes s and escapes tview color tags.
func clean(s string) string {
	return tview.Escape(sanitizeForTerminal(s))
}
