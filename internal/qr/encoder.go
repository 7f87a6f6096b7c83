package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultImageSize = 256

// DataURL renders the payload as a QR code PNG and returns it as a data URL
// suitable for embedding directly in clients.
func DataURL(payload string) (string, error) {
	if payload == "" {
		return "", fmt.Errorf("qr: payload is required")
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, defaultImageSize)
	if err != nil {
		return "", fmt.Errorf("qr: encode image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
