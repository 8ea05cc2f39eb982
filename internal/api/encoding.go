package api

import (
	"encoding/base64"
	"fmt"
)

// Wire encodings for keys and values.
const (
	EncodingText   = "text"
	EncodingBase64 = "base64"
)

type codec interface {
	decode(s string) ([]byte, error)
	encode(b []byte) string
}

type textCodec struct{}

func (textCodec) decode(s string) ([]byte, error) { return []byte(s), nil }
func (textCodec) encode(b []byte) string          { return string(b) }

type base64Codec struct{}

func (base64Codec) decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrInvalidRequest, err)
	}
	return b, nil
}

func (base64Codec) encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func codecFor(name string) (codec, error) {
	switch name {
	case "", EncodingText:
		return textCodec{}, nil
	case EncodingBase64:
		return base64Codec{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrInvalidRequest, name)
	}
}
