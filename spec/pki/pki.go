package pki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultCertValidity is the default validity duration for generated certificates.
	DefaultCertValidity time.Duration = time.Hour * 24 * 180

	rsaKeyBits = 2048
)

type KeyType int

const (
	KeyECDSA KeyType = iota
	KeyRSA
)

func (k KeyType) String() string {
	switch k {
	case KeyRSA:
		return "rsa"
	default:
		return "ecdsa"
	}
}

type CertificateRequest struct {
	Subject pkix.Name
	// Hosts are placed in the SAN extension, as IP addresses when they parse as one.
	Hosts     []string
	KeyType   KeyType
	KeyFormat KeyFormat
	IsCA      bool
	// ClientAuth issues a certificate for client authentication instead of serving.
	ClientAuth bool
	// Parent signs the certificate. If nil, the certificate is self-signed.
	Parent *tls.Certificate

	// ValidFor specifies the certificate validity duration.
	// If zero, defaults to DefaultCertValidity.
	ValidFor time.Duration
}

// KeyPair holds a generated certificate in both PEM and tls forms.
type KeyPair struct {
	CertPEM []byte
	KeyPEM  []byte
	TLS     tls.Certificate
}

func GenerateCertificate(logger *zap.Logger, req CertificateRequest) (*KeyPair, error) {
	priv, err := generateKey(req.KeyType)
	if err != nil {
		return nil, fmt.Errorf("pki: failed to generate private key: %w", err)
	}

	sn, err := rand.Int(rand.Reader, max)
	if err != nil {
		return nil, fmt.Errorf("pki: failed to generate certificate serial: %w", err)
	}

	now := time.Now()
	validFor := DefaultCertValidity
	if req.ValidFor > 0 {
		validFor = req.ValidFor
	}

	template := &x509.Certificate{
		SerialNumber:          sn,
		Subject:               req.Subject,
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  req.IsCA,
	}
	if req.KeyType == KeyRSA {
		template.KeyUsage |= x509.KeyUsageKeyEncipherment
	}
	if req.ClientAuth {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}
	if req.IsCA {
		template.KeyUsage |= x509.KeyUsageCertSign
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
	}
	for _, h := range req.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	parent := template
	var signer crypto.PrivateKey = priv
	if req.Parent != nil {
		parent, err = x509.ParseCertificate(req.Parent.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("pki: failed to parse parent certificate: %w", err)
		}
		signer = req.Parent.PrivateKey
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, parent, priv.(crypto.Signer).Public(), signer)
	if err != nil {
		return nil, fmt.Errorf("pki: failed to generate certificate: %w", err)
	}

	keyPEM, err := MarshalPrivateKey(priv, req.KeyFormat)
	if err != nil {
		return nil, fmt.Errorf("pki: failed to encode private key: %w", err)
	}
	certPEM := MarshalCertificate(certDER)

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("pki: failed to assemble key pair: %w", err)
	}

	logger.Debug("New certificate generated",
		zap.String("commonName", req.Subject.CommonName),
		zap.Strings("hosts", req.Hosts),
		zap.Stringer("keyType", req.KeyType),
		zap.Bool("ca", req.IsCA),
		zap.Bool("selfSigned", req.Parent == nil),
	)

	return &KeyPair{
		CertPEM: certPEM,
		KeyPEM:  keyPEM,
		TLS:     tlsCert,
	}, nil
}

func generateKey(t KeyType) (crypto.PrivateKey, error) {
	switch t {
	case KeyRSA:
		return rsa.GenerateKey(rand.Reader, rsaKeyBits)
	default:
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
}

var (
	max = new(big.Int)
)

func init() {
	max.Exp(big.NewInt(2), big.NewInt(130), nil).Sub(max, big.NewInt(1))
}
