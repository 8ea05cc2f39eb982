package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base32"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// DNSNamePrefix is prepended to the encoded public key in the certificate
// DNS name.
const DNSNamePrefix = "e"

// DefaultValidity is used by NewSelfSigned.
const DefaultValidity = 365 * 24 * time.Hour

// dnsNameLength is the prefix plus the unpadded base32 form of a 32 byte key.
const dnsNameLength = 53

var base32Encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Config contains the parameters needed for certificate generation.
type Config struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	// CertValidityPeriod defines how long the certificate remains valid
	CertValidityPeriod time.Duration
}

// Generator creates self-signed TLS certificates whose DNS name encodes
// the Ed25519 public key, so a client can pin the server by key.
type Generator struct {
	config Config
}

func NewGenerator(config Config) *Generator {
	return &Generator{config: config}
}

// NewSelfSigned generates a fresh key pair and a certificate for it.
func NewSelfSigned(validity time.Duration) (*tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewGenerator(Config{PublicKey: pub, PrivateKey: priv, CertValidityPeriod: validity}).GenerateCertificate()
}

// EncodePubKeyToDNS returns "e" followed by the base32 encoded key.
func EncodePubKeyToDNS(pubKey ed25519.PublicKey) string {
	return DNSNamePrefix + base32Encoding.EncodeToString(pubKey)
}

// GenerateCertificate creates a certificate valid for server and client
// authentication for the configured duration.
func (g *Generator) GenerateCertificate() (*tls.Certificate, error) {
	dnsName := EncodePubKeyToDNS(g.config.PublicKey)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{CommonName: dnsName},
		DNSNames:     []string{dnsName},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(g.config.CertValidityPeriod),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		SignatureAlgorithm:    x509.PureEd25519,
		PublicKeyAlgorithm:    x509.Ed25519,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, g.config.PublicKey, g.config.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  g.config.PrivateKey,
		Leaf:        leaf,
	}, nil
}

// Validator checks certificates made by Generator. When PinnedKey is set
// the certificate must carry exactly that key.
type Validator struct {
	PinnedKey ed25519.PublicKey
}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateCertificate checks the signature algorithm, the DNS name, the
// optional pinned key and the validity period.
func (v *Validator) ValidateCertificate(cert *x509.Certificate) error {
	if cert.SignatureAlgorithm != x509.PureEd25519 {
		return fmt.Errorf("invalid signature algorithm: expected Ed25519")
	}
	pubKey, err := v.ExtractPublicKey(cert)
	if err != nil {
		return err
	}

	if len(cert.DNSNames) != 1 {
		return fmt.Errorf("certificate must have exactly one DNS name")
	}
	dnsName := cert.DNSNames[0]
	if len(dnsName) != dnsNameLength || !strings.HasPrefix(dnsName, DNSNamePrefix) {
		return fmt.Errorf("invalid DNS name format: %s (length: %d)", dnsName, len(dnsName))
	}
	if dnsName != EncodePubKeyToDNS(pubKey) {
		return fmt.Errorf("DNS name does not match public key")
	}
	if v.PinnedKey != nil && !v.PinnedKey.Equal(pubKey) {
		return fmt.Errorf("certificate key does not match the pinned key")
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate is not yet valid")
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate has expired")
	}
	return nil
}

// ExtractPublicKey retrieves the Ed25519 public key from a certificate.
func (v *Validator) ExtractPublicKey(cert *x509.Certificate) (ed25519.PublicKey, error) {
	pubKey, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("certificate public key is not an Ed25519 key")
	}
	return pubKey, nil
}
