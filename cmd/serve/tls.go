package serve

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"os"
	"time"

	"github.com/jdthomas/warp/spec/cipher"
	"github.com/jdthomas/warp/spec/pki"

	"go.uber.org/zap"
	"golang.org/x/crypto/ocsp"
)

func buildTLSConfig(logger *zap.Logger, c *Config) (*tls.Config, error) {
	b := cipher.NewConfigBuilder().WithLogger(logger)

	if c.SelfSigned {
		pair, err := selfSigned(logger, c.Hostnames)
		if err != nil {
			return nil, fmt.Errorf("generating self-signed certificate: %w", err)
		}
		b.Cert(pair.CertPEM).Key(pair.KeyPEM)
	} else {
		b.CertPath(c.Cert).KeyPath(c.Key)
	}

	if c.clientAuth != cipher.ClientAuthOff {
		b.WithClientAuth(c.clientAuth, pki.FromPath(c.ClientCA))
	}

	if c.OCSP != "" {
		raw, err := os.ReadFile(c.OCSP)
		if err != nil {
			return nil, fmt.Errorf("reading OCSP response: %w", err)
		}
		b.OCSP(raw)
	}

	cfg, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("building TLS configuration: %w", err)
	}
	inspectOCSP(logger, cfg.Certificates[0])

	return cfg, nil
}

func selfSigned(logger *zap.Logger, hostnames []string) (*pki.KeyPair, error) {
	logger.Warn("Serving a self-signed certificate", zap.Strings("hostnames", hostnames))
	return pki.GenerateCertificate(logger, pki.CertificateRequest{
		Subject: pkix.Name{
			CommonName:   hostnames[0],
			Organization: []string{"warp self-signed"},
		},
		Hosts:   hostnames,
		KeyType: pki.KeyECDSA,
	})
}

// inspectOCSP logs what the stapled response says about the leaf. The bytes
// are stapled as given regardless; freshness is for clients to judge.
func inspectOCSP(logger *zap.Logger, cert tls.Certificate) {
	if len(cert.OCSPStaple) == 0 {
		return
	}

	var issuer *x509.Certificate
	if len(cert.Certificate) > 1 {
		issuer, _ = x509.ParseCertificate(cert.Certificate[1])
	}

	resp, err := ocsp.ParseResponseForCert(cert.OCSPStaple, cert.Leaf, issuer)
	if err != nil {
		logger.Warn("Unable to parse OCSP response, stapling it anyway", zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.String("status", ocspStatus(resp.Status)),
		zap.Time("thisUpdate", resp.ThisUpdate),
		zap.Time("nextUpdate", resp.NextUpdate),
		zap.Bool("signatureVerified", issuer != nil),
	}
	switch {
	case resp.Status != ocsp.Good:
		logger.Warn("OCSP response does not report the certificate as good", fields...)
	case !resp.NextUpdate.IsZero() && time.Now().After(resp.NextUpdate):
		logger.Warn("OCSP response is past its next update", fields...)
	default:
		logger.Info("Stapling OCSP response", fields...)
	}
}

func ocspStatus(status int) string {
	switch status {
	case ocsp.Good:
		return "good"
	case ocsp.Revoked:
		return "revoked"
	case ocsp.Unknown:
		return "unknown"
	case ocsp.ServerFailed:
		return "server failed"
	default:
		return fmt.Sprintf("status(%d)", status)
	}
}
