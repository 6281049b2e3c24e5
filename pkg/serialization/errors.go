package serialization

import "errors"

var (
	ErrEncodeFailed      = errors.New("state encoding failed")
	ErrDecodeFailed      = errors.New("state decoding failed")
	ErrInvalidCiphertext = errors.New("invalid ciphertext size")
)
