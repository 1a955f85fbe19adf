package service

import (
	"crypto/rand"
	"fmt"
)

const (
	challengePrefix  = "Sign this for security check "
	challengeLength  = 15
	challengeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateChallenge builds a fresh single-use signing challenge: a fixed
// human-readable instruction followed by random alphanumeric content so
// a wallet UI shows intent when asked to sign it.
func GenerateChallenge() (string, error) {
	buf := make([]byte, challengeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = challengeCharset[int(b)%len(challengeCharset)]
	}
	return challengePrefix + string(buf), nil
}
