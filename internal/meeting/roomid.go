package meeting

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	roomPrefix     = "SkillSync"
	roomSuffixSize = 10
	maxSeedLength  = 80
)

var unsafeRoomChars = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// RoomIDGenerator derives external room keys. The random suffix keeps ids
// distinct even when the seed and clock reading collide.
type RoomIDGenerator struct {
	now func() time.Time
}

func NewRoomIDGenerator() *RoomIDGenerator {
	return &RoomIDGenerator{now: time.Now}
}

func (g *RoomIDGenerator) Generate(seed string) (string, error) {
	suffix, err := gonanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", roomSuffixSize)
	if err != nil {
		return "", fmt.Errorf("generate room suffix: %w", err)
	}

	parts := []string{roomPrefix}
	if s := sanitizeSeed(seed); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, fmt.Sprintf("%d", g.now().UnixMilli()), suffix)
	return strings.Join(parts, "-"), nil
}

func sanitizeSeed(seed string) string {
	s := unsafeRoomChars.ReplaceAllString(seed, "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSeedLength {
		s = s[:maxSeedLength]
	}
	return s
}
