package transport

import "errors"

var (
	ErrInvalidCertificate = errors.New("invalid certificate")
	ErrListenerFailed     = errors.New("failed to create QUIC listener")
	ErrDialFailed         = errors.New("failed to dial server")
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size")
	ErrServerClosed       = errors.New("server closed")
)
