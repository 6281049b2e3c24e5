// Package serialization implements the state encoder collaborator: it
// turns opaque agent state into bytes and back for persistence sinks and
// for the content hasher's canonical form. Codecs are pluggable; the
// Serializer layers optional compression and encryption on top.
package serialization

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ekessh/agent-checkpoint-protocol/internal/core/state"
)

// Codec converts values to and from a byte encoding.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}

// CompressionType selects the compression layer.
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
	CompressionZstd CompressionType = "zstd"
)

// Config holds serializer settings.
type Config struct {
	Codec       Codec
	Compression CompressionType
	EncryptKey  []byte // AES-256 key (32 bytes); empty disables encryption
}

// Serializer is the encode → compress → encrypt pipeline and its inverse.
type Serializer struct {
	config Config
}

// New creates a serializer. A nil codec defaults to canonical JSON.
func New(config Config) *Serializer {
	if config.Codec == nil {
		config.Codec = NewJSONCodec()
	}
	return &Serializer{config: config}
}

// Default returns the serializer used when callers do not care: msgpack
// with zstd compression, no encryption.
func Default() *Serializer {
	return New(Config{Codec: NewMsgpackCodec(), Compression: CompressionZstd})
}

// Serialize encodes, compresses and encrypts.
func (s *Serializer) Serialize(v any) ([]byte, error) {
	data, err := s.config.Codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}

	data, err = s.compress(data)
	if err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}

	if len(s.config.EncryptKey) > 0 {
		data, err = s.encrypt(data)
		if err != nil {
			return nil, fmt.Errorf("encryption failed: %w", err)
		}
	}
	return data, nil
}

// Deserialize decrypts, decompresses and decodes.
func (s *Serializer) Deserialize(data []byte, v any) error {
	var err error
	if len(s.config.EncryptKey) > 0 {
		data, err = s.decrypt(data)
		if err != nil {
			return fmt.Errorf("decryption failed: %w", err)
		}
	}

	data, err = s.decompress(data)
	if err != nil {
		return fmt.Errorf("decompression failed: %w", err)
	}

	if err := s.config.Codec.Decode(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return nil
}

func (s *Serializer) compress(data []byte) ([]byte, error) {
	switch s.config.Compression {
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return data, nil
	}
}

func (s *Serializer) decompress(data []byte) ([]byte, error) {
	switch s.config.Compression {
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return data, nil
	}
}

func (s *Serializer) encrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.config.EncryptKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

func (s *Serializer) decrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.config.EncryptKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, ErrInvalidCiphertext
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// JSONCodec encodes canonical JSON: string-keyed maps serialize with sorted
// keys, and values the encoder cannot represent fall back to a lossy
// string-safe form instead of failing the whole checkpoint.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return json.Marshal(state.Sanitize(v))
	}
	return data, nil
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Name() string { return "json" }

// MsgpackCodec encodes MessagePack: compact and fast, not human-readable.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (c *MsgpackCodec) Name() string { return "msgpack" }

// NewJSONCodec creates a canonical JSON codec.
func NewJSONCodec() Codec { return &JSONCodec{} }

// NewMsgpackCodec creates a MessagePack codec.
func NewMsgpackCodec() Codec { return &MsgpackCodec{} }
