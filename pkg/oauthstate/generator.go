package oauthstate

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrRandomSourceFailure indicates that entropy retrieval failed.
	ErrRandomSourceFailure = errors.New("oauthstate: random_source_failure")
	// ErrMissingRandomSource indicates that a nil entropy source was provided.
	ErrMissingRandomSource = errors.New("oauthstate: missing_random_source")
)

// Generator draws state values from an entropy source.
type Generator struct {
	randomSource io.Reader
}

func NewGenerator(randomSource io.Reader) (*Generator, error) {
	if randomSource == nil {
		return nil, ErrMissingRandomSource
	}
	return &Generator{randomSource: randomSource}, nil
}

// NewCryptoGenerator creates a Generator backed by crypto/rand.Reader.
func NewCryptoGenerator() (*Generator, error) {
	return NewGenerator(rand.Reader)
}

// Generate returns a URL-safe state value of the requested entropy.
func (generator *Generator) Generate(ctx context.Context, length ByteLength) (string, error) {
	if generator == nil || generator.randomSource == nil {
		return "", ErrMissingRandomSource
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("oauthstate: context canceled: %w", err)
	}

	buffer := make([]byte, length.Value())
	if _, err := io.ReadFull(generator.randomSource, buffer); err != nil {
		return "", fmt.Errorf("%w: %w", ErrRandomSourceFailure, err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// Verify compares the state echoed by the redirect with the one that was
// issued. An empty expected value never matches.
func Verify(expected string, received string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
