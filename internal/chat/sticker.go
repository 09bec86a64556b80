// Package chat handles sticker attachments for in-battle chat. Stickers
// travel as base64 text in the content field of a CHAT_MESSAGE.
package chat

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EncodeFile reads an image and returns it base64 encoded.
func EncodeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read sticker: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// StickerName is the file name a sticker from sender received at t is saved under.
func StickerName(sender string, t time.Time) string {
	return fmt.Sprintf("sticker_%s_%d.png", sanitize(sender), t.Unix())
}

// SaveSticker decodes content and writes it into dir, creating dir if
// needed. It returns the written path.
func SaveSticker(dir, sender, content string, t time.Time) (string, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(content))
	if err != nil {
		return "", fmt.Errorf("invalid sticker encoding: %w", err)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create sticker directory: %w", err)
	}

	path := filepath.Join(dir, StickerName(sender, t))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save sticker: %w", err)
	}
	return path, nil
}

// sanitize keeps a peer-supplied name from escaping the sticker directory.
func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" {
		return "peer"
	}
	return name
}
