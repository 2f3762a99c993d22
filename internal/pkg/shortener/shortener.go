package shortener

import (
	"crypto/rand"
	"fmt"
)

// Lowercase base36 keeps suffixes valid inside lowercase slugs.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// SlugSuffix returns a cryptographically random base36 string used to keep
// listing slugs unique when two tools share a name.
func SlugSuffix(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid suffix length: %d", length)
	}

	// Rejection sampling to avoid modulo bias.
	// 252 is the largest multiple of 36 below 256.
	const maxRandomByte = 252

	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			out[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(out), nil
}
