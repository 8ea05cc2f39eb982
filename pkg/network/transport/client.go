package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"

	"github.com/quic-go/quic-go"
)

// CertValidator checks the server certificate.
type CertValidator interface {
	ValidateCertificate(cert *x509.Certificate) error
}

// Response is a reply as seen by a client: the body stays raw so callers
// can decode the shape matching their operation.
type Response struct {
	Code int             `json:"code"`
	Body json.RawMessage `json:"body"`
}

// Decode unmarshals the body into v.
func (r Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Client sends requests over one QUIC connection, one stream per request.
// It is safe for concurrent use.
type Client struct {
	conn quic.Connection
}

// Dial connects to addr. The server certificate is not verified against a
// CA; validator decides whether it is acceptable.
func Dial(ctx context.Context, addr string, validator CertValidator) (*Client, error) {
	tlsConf := &tls.Config{
		NextProtos:         []string{ALPN},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("%w: no certificate provided", ErrInvalidCertificate)
			}
			c, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
			}
			if err := validator.ValidateCertificate(c); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
			}
			return nil
		},
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDialFailed, err)
	}
	return &Client{conn: conn}, nil
}

// Do sends req as JSON on a fresh stream and waits for the reply.
func (c *Client) Do(ctx context.Context, req any) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.DoRaw(ctx, payload)
}

// DoRaw sends an already encoded request.
func (c *Client) DoRaw(ctx context.Context, payload []byte) (Response, error) {
	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("failed to open QUIC stream: %w", err)
	}
	defer stream.CancelRead(0)

	if err := WriteFrame(ctx, stream, payload); err != nil {
		stream.CancelWrite(0)
		return Response{}, err
	}
	if err := stream.Close(); err != nil {
		return Response{}, fmt.Errorf("failed to close stream: %w", err)
	}

	out, err := ReadFrame(ctx, stream)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(out, &resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode reply: %w", err)
	}
	return resp, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.CloseWithError(0, "")
}
