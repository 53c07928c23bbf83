package pki

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

const (
	blockCertificate = "CERTIFICATE"
	blockRSAKey      = "RSA PRIVATE KEY"
	blockECKey       = "EC PRIVATE KEY"
	blockPKCS8Key    = "PRIVATE KEY"
)

var (
	ErrNoPrivateKey = errors.New("pki: no private key found")
)

// KeyFormat selects the PEM encoding of a private key.
type KeyFormat int

const (
	// FormatNative is PKCS#1 for RSA and SEC 1 for ECDSA keys.
	FormatNative KeyFormat = iota
	FormatPKCS8
)

// DecodeCertificates returns the DER bytes of every CERTIFICATE block in pemBytes,
// in order. Blocks of other types are skipped, so a bundle holding both the
// certificate chain and its key can be passed as is.
func DecodeCertificates(pemBytes []byte) [][]byte {
	var ders [][]byte
	for {
		var p *pem.Block
		p, pemBytes = pem.Decode(pemBytes)
		if p == nil {
			return ders
		}
		if p.Type == blockCertificate {
			ders = append(ders, p.Bytes)
		}
	}
}

// ParsePrivateKey returns the first RSA, EC or PKCS#8 private key in pemBytes.
func ParsePrivateKey(pemBytes []byte) (crypto.PrivateKey, error) {
	for {
		var p *pem.Block
		p, pemBytes = pem.Decode(pemBytes)
		if p == nil {
			return nil, ErrNoPrivateKey
		}
		switch p.Type {
		case blockRSAKey:
			key, err := x509.ParsePKCS1PrivateKey(p.Bytes)
			if err != nil {
				return nil, fmt.Errorf("pki: failed to parse rsa private key: %w", err)
			}
			return key, nil
		case blockECKey:
			key, err := x509.ParseECPrivateKey(p.Bytes)
			if err != nil {
				return nil, fmt.Errorf("pki: failed to parse ec private key: %w", err)
			}
			return key, nil
		case blockPKCS8Key:
			key, err := x509.ParsePKCS8PrivateKey(p.Bytes)
			if err != nil {
				return nil, fmt.Errorf("pki: failed to parse pkcs8 private key: %w", err)
			}
			return key, nil
		}
	}
}

func MarshalCertificate(derBytes []byte) (pemBytes []byte) {
	certPEM := new(bytes.Buffer)
	pem.Encode(certPEM, &pem.Block{
		Type:  blockCertificate,
		Bytes: derBytes,
	})
	return certPEM.Bytes()
}

func MarshalPrivateKey(key crypto.PrivateKey, format KeyFormat) ([]byte, error) {
	if format == FormatPKCS8 {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, err
		}
		return pem.EncodeToMemory(&pem.Block{Type: blockPKCS8Key, Bytes: der}), nil
	}
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return pem.EncodeToMemory(&pem.Block{Type: blockRSAKey, Bytes: x509.MarshalPKCS1PrivateKey(k)}), nil
	case *ecdsa.PrivateKey:
		der, err := x509.MarshalECPrivateKey(k)
		if err != nil {
			return nil, err
		}
		return pem.EncodeToMemory(&pem.Block{Type: blockECKey, Bytes: der}), nil
	case ed25519.PrivateKey:
		// ed25519 only has a PKCS#8 encoding
		return MarshalPrivateKey(k, FormatPKCS8)
	default:
		return nil, x509.ErrUnsupportedAlgorithm
	}
}
