package views

import (
	"strings"

	"github.com/thegamersstation/gsm/internal/domain"
	qrcode "github.com/skip2/go-qrcode"
)

// ShareURL is the public link of a product page.
func ShareURL(origin string, postID domain.ID) string {
	return strings.TrimRight(origin, "/") + "/product/" + postID.String()
}

// RenderQR draws content as a QR code with Unicode half blocks, two bitmap
// rows per terminal line.
func RenderQR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", err
	}
	bitmap := qr.Bitmap()

	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
