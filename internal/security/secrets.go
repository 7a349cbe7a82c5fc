package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

const (
	// MinSecretLength is the minimum allowed length for the webhook secret.
	MinSecretLength = 32

	// MinEntropy is the minimum Shannon entropy threshold for secrets.
	MinEntropy = 3.5
)

var placeholderFragments = []string{
	"replace",
	"changeme",
	"topsecret",
	"password",
	"your-webhook-secret",
}

// ValidateSecret ensures a shared secret meets minimum requirements:
// length, not a placeholder and sufficient Shannon entropy.
func ValidateSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("secret too short (minimum %d characters, got %d)", MinSecretLength, len(secret))
	}

	secretLower := strings.ToLower(secret)
	for _, fragment := range placeholderFragments {
		if strings.Contains(secretLower, fragment) {
			return fmt.Errorf("secret appears to be a placeholder value")
		}
	}

	entropy := calculateEntropy(secret)
	if entropy < MinEntropy {
		return fmt.Errorf("secret has insufficient entropy (%.2f < %.2f) - use a more random secret", entropy, MinEntropy)
	}

	return nil
}

// GenerateSecret creates a cryptographically secure random secret.
// Returns a 48-character base64-encoded string.
func GenerateSecret() (string, error) {
	bytes := make([]byte, 36)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// calculateEntropy computes the Shannon entropy of a string in bits per
// character.
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	var entropy float64
	length := float64(len(s))
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// IsWeakSecret performs a quick check if a token is obviously weak.
// Used for warnings on tokens that are not validated strictly.
func IsWeakSecret(secret string) bool {
	if len(secret) < 16 {
		return true
	}
	if len(strings.Trim(secret, string(secret[0]))) == 0 {
		return true
	}
	if isSequential(secret) {
		return true
	}
	return calculateEntropy(secret) < 2.5
}

// isSequential checks if a string consists mostly of sequential characters.
func isSequential(s string) bool {
	if len(s) < 4 {
		return false
	}

	sequential := 0
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1]+1 || s[i] == s[i-1]-1 {
			sequential++
		}
	}

	return float64(sequential) > float64(len(s))*0.7
}
