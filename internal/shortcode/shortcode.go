// Package shortcode generates the random identifiers used for short codes
// and API keys. Codes are drawn uniformly from the alphanumeric alphabet;
// uniqueness is enforced by the storage layer, not here.
package shortcode

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the 62-symbol set codes are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// APIKeyLength is the length of generated user credentials.
const APIKeyLength = 32

// Generate returns a random alphanumeric code of the given length.
func Generate(length int) (string, error) {
	const op = "shortcode.Generate"

	code, err := gonanoid.Generate(Alphabet, length)
	if err != nil {
		return "", fmt.Errorf("%s: failed to generate code: %w", op, err)
	}

	return code, nil
}

// GenerateAPIKey returns a random credential for a new user.
func GenerateAPIKey() (string, error) {
	return Generate(APIKeyLength)
}
