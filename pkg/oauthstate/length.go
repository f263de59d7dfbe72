package oauthstate

import (
	"errors"
	"fmt"
)

// ErrInvalidByteLength indicates that a requested state length is below the supported minimum.
var ErrInvalidByteLength = errors.New("oauthstate: invalid_byte_length")

const (
	minStateByteLength     = 16
	defaultStateByteLength = 32
)

// ByteLength is the amount of entropy, in bytes, behind a state value.
type ByteLength struct {
	value int
}

// NewByteLength validates value against the minimum.
func NewByteLength(value int) (ByteLength, error) {
	if value < minStateByteLength {
		return ByteLength{}, fmt.Errorf("%w: %d is less than minimum %d", ErrInvalidByteLength, value, minStateByteLength)
	}
	return ByteLength{value: value}, nil
}

func DefaultByteLength() ByteLength {
	return ByteLength{value: defaultStateByteLength}
}

func (length ByteLength) Value() int {
	if length.value == 0 {
		return defaultStateByteLength
	}
	return length.value
}
