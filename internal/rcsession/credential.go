package rcsession

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	credentialAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	credentialUpper    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	credentialDigits   = "0123456789"

	minCredentialLen = 18
)

// newCredential generates a one-shot random credential: length characters
// from the fixed alphabet plus one guaranteed uppercase letter and one
// guaranteed digit, then fully shuffled. It is handed to the worker on its
// command line and never persisted.
func newCredential(length int) (string, error) {
	if length < minCredentialLen {
		length = minCredentialLen
	}

	buf := make([]byte, 0, length+2)
	for i := 0; i < length; i++ {
		c, err := randByte(credentialAlphabet)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	upper, err := randByte(credentialUpper)
	if err != nil {
		return "", err
	}
	digit, err := randByte(credentialDigits)
	if err != nil {
		return "", err
	}
	buf = append(buf, upper, digit)

	// Fisher-Yates so the guaranteed characters don't sit at the end.
	for i := len(buf) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}

func randByte(alphabet string) (byte, error) {
	i, err := randInt(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("generating random credential: %w", err)
	}
	return int(n.Int64()), nil
}
