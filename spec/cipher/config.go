package cipher

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"github.com/jdthomas/warp/spec/pki"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const (
	NextProtoHTTP1 = "http/1.1"
)

var (
	// ServerProtos is advertised in priority order during ALPN.
	ServerProtos = []string{http2.NextProtoTLS, NextProtoHTTP1}
)

// ConfigBuilder accumulates server credentials and produces a *tls.Config.
// Setters only record their inputs; nothing is read until Build, and a
// builder can only be built once.
type ConfigBuilder struct {
	logger     *zap.Logger
	cert       pki.Source
	key        pki.Source
	clientAuth ClientAuth
	trust      pki.Source
	ocsp       []byte
	consumed   bool
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		logger: zap.NewNop(),
		cert:   pki.Empty(),
		key:    pki.Empty(),
		trust:  pki.Empty(),
	}
}

func (b *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

func (b *ConfigBuilder) Cert(pemBytes []byte) *ConfigBuilder {
	b.cert = pki.FromBytes(pemBytes)
	return b
}

func (b *ConfigBuilder) CertPath(path string) *ConfigBuilder {
	b.cert = pki.FromPath(path)
	return b
}

func (b *ConfigBuilder) Key(pemBytes []byte) *ConfigBuilder {
	b.key = pki.FromBytes(pemBytes)
	return b
}

func (b *ConfigBuilder) KeyPath(path string) *ConfigBuilder {
	b.key = pki.FromPath(path)
	return b
}

func (b *ConfigBuilder) ClientAuthOff() *ConfigBuilder {
	return b.WithClientAuth(ClientAuthOff, nil)
}

func (b *ConfigBuilder) ClientAuthOptional(trustPEM []byte) *ConfigBuilder {
	return b.WithClientAuth(ClientAuthOptional, pki.FromBytes(trustPEM))
}

func (b *ConfigBuilder) ClientAuthOptionalPath(path string) *ConfigBuilder {
	return b.WithClientAuth(ClientAuthOptional, pki.FromPath(path))
}

func (b *ConfigBuilder) ClientAuthRequired(trustPEM []byte) *ConfigBuilder {
	return b.WithClientAuth(ClientAuthRequired, pki.FromBytes(trustPEM))
}

func (b *ConfigBuilder) ClientAuthRequiredPath(path string) *ConfigBuilder {
	return b.WithClientAuth(ClientAuthRequired, pki.FromPath(path))
}

// WithClientAuth sets the client authentication mode along with the source
// of trust anchors. trust is ignored when mode is ClientAuthOff.
func (b *ConfigBuilder) WithClientAuth(mode ClientAuth, trust pki.Source) *ConfigBuilder {
	if trust == nil {
		trust = pki.Empty()
	}
	b.closeSource(b.trust)
	b.clientAuth = mode
	b.trust = trust
	return b
}

// OCSP sets the DER encoded OCSP response stapled to every handshake.
func (b *ConfigBuilder) OCSP(der []byte) *ConfigBuilder {
	b.ocsp = append([]byte(nil), der...)
	return b
}

// Build reads every source exactly once and assembles the server
// configuration. The returned *tls.Config must not be mutated, as it is
// shared by all connections. Errors are of type *ConfigError.
func (b *ConfigBuilder) Build() (*tls.Config, error) {
	if b.consumed {
		return nil, ErrBuilderConsumed
	}
	b.consumed = true
	defer b.release()

	chain, leaf, err := b.readChain()
	if err != nil {
		return nil, err
	}

	key, err := b.readKey()
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		ClientAuth: tls.NoClientCert,
		MinVersion: tls.VersionTLS12,
		NextProtos: append([]string(nil), ServerProtos...),
	}

	if b.clientAuth != ClientAuthOff {
		pool, err := b.readTrustAnchors()
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = b.clientAuth.authType()
	}

	if err := matchKey(leaf, key); err != nil {
		return nil, newConfigError(KindInvalidKey, err)
	}

	cfg.Certificates = []tls.Certificate{
		{
			Certificate: chain,
			PrivateKey:  key,
			OCSPStaple:  b.ocsp,
			Leaf:        leaf,
		},
	}

	b.logger.Debug("TLS configuration built",
		zap.String("subject", leaf.Subject.String()),
		zap.Int("chain", len(chain)),
		zap.Stringer("clientAuth", b.clientAuth),
		zap.Bool("ocsp", len(b.ocsp) > 0),
		zap.Strings("protos", cfg.NextProtos),
	)

	return cfg, nil
}

func (b *ConfigBuilder) readChain() ([][]byte, *x509.Certificate, error) {
	buf, err := pki.ReadAll(b.cert)
	if err != nil {
		return nil, nil, newConfigError(KindIO, err)
	}
	chain := pki.DecodeCertificates(buf)
	if len(chain) == 0 {
		return nil, nil, newConfigError(KindCertParse, fmt.Errorf("no certificate found in %s", b.cert.Origin()))
	}
	var leaf *x509.Certificate
	for i, der := range chain {
		c, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, nil, newConfigError(KindCertParse, err)
		}
		if i == 0 {
			leaf = c
		}
	}
	return chain, leaf, nil
}

func (b *ConfigBuilder) readKey() (crypto.PrivateKey, error) {
	buf, err := pki.ReadAll(b.key)
	if err != nil {
		return nil, newConfigError(KindIO, err)
	}
	key, err := pki.ParsePrivateKey(buf)
	switch {
	case errors.Is(err, pki.ErrNoPrivateKey):
		return nil, newConfigError(KindMissingPrivateKey, nil)
	case err != nil:
		return nil, newConfigError(KindInvalidKey, err)
	}
	return key, nil
}

func (b *ConfigBuilder) readTrustAnchors() (*x509.CertPool, error) {
	buf, err := pki.ReadAll(b.trust)
	if err != nil {
		return nil, newConfigError(KindIO, err)
	}

	pool := x509.NewCertPool()
	added, skipped := 0, 0
	for _, der := range pki.DecodeCertificates(buf) {
		c, err := x509.ParseCertificate(der)
		if err != nil {
			skipped++
			continue
		}
		pool.AddCert(c)
		added++
	}
	if added == 0 {
		return nil, newConfigError(KindCertParse, fmt.Errorf("no trust anchor added from %s", b.trust.Origin()))
	}
	if skipped > 0 {
		b.logger.Warn("Some trust anchors could not be parsed and were skipped",
			zap.String("source", b.trust.Origin()),
			zap.Int("added", added),
			zap.Int("skipped", skipped),
		)
	}
	return pool, nil
}

func (b *ConfigBuilder) release() {
	b.closeSource(b.cert)
	b.closeSource(b.key)
	b.closeSource(b.trust)
}

func (b *ConfigBuilder) closeSource(src pki.Source) {
	if c, ok := src.(io.Closer); ok {
		c.Close()
	}
}

func matchKey(leaf *x509.Certificate, key crypto.PrivateKey) error {
	switch key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
	default:
		return fmt.Errorf("unsupported private key type %T", key)
	}
	pub, ok := key.(crypto.Signer).Public().(interface {
		Equal(crypto.PublicKey) bool
	})
	if !ok || !pub.Equal(leaf.PublicKey) {
		return errors.New("private key does not match public key")
	}
	return nil
}
