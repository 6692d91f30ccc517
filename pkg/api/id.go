package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	completionIDPrefix = "chatcmpl_"
	callIDPrefix       = "call_"
)

var (
	completionIDPattern = regexp.MustCompile(`^chatcmpl_[a-zA-Z0-9]{24}$`)
	callIDPattern       = regexp.MustCompile(`^call_[a-zA-Z0-9]{24}$`)
)

// NewCompletionID generates a new completion ID with the "chatcmpl_" prefix
// followed by 24 cryptographically random alphanumeric characters.
func NewCompletionID() string {
	return completionIDPrefix + randomAlphanumeric(idLength)
}

// NewCallID generates a new tool call ID with the "call_" prefix followed
// by 24 cryptographically random alphanumeric characters. The 62^24 space
// makes collisions within a process lifetime practically impossible.
func NewCallID() string {
	return callIDPrefix + randomAlphanumeric(idLength)
}

// ValidateCompletionID checks whether the given string is a valid completion ID.
func ValidateCompletionID(id string) bool {
	return completionIDPattern.MatchString(id)
}

// ValidateCallID checks whether the given string is a valid call ID
// (matches "call_" + 24 alphanumeric characters).
func ValidateCallID(id string) bool {
	return callIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
