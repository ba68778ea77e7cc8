package integrity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize is the PNG edge length in pixels.
const DefaultQRSize = 320

// RenderPNG encodes the JSON form of p into a QR code PNG.
func RenderPNG(p QRPayload, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("integrity: encode payload: %w", err)
	}
	png, err := qrcode.Encode(string(data), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("integrity: render qr: %w", err)
	}
	return png, nil
}

// RenderDataURL returns the PNG as a data URL for JSON responses.
func RenderDataURL(p QRPayload, size int) (string, error) {
	png, err := RenderPNG(p, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
