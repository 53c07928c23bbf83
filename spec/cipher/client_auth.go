package cipher

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// ClientAuth selects how peers are asked for certificates.
type ClientAuth int

const (
	// ClientAuthOff never requests a client certificate.
	ClientAuthOff ClientAuth = iota
	// ClientAuthOptional accepts anonymous peers, and verifies a certificate if one is presented.
	ClientAuthOptional
	// ClientAuthRequired rejects peers without a certificate signed by a trust anchor.
	ClientAuthRequired
)

func ParseClientAuth(s string) (ClientAuth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return ClientAuthOff, nil
	case "optional":
		return ClientAuthOptional, nil
	case "required":
		return ClientAuthRequired, nil
	default:
		return ClientAuthOff, fmt.Errorf("unsupported client auth mode %q; valid modes: off, optional, or required", s)
	}
}

func (c ClientAuth) String() string {
	switch c {
	case ClientAuthOptional:
		return "optional"
	case ClientAuthRequired:
		return "required"
	default:
		return "off"
	}
}

func (c ClientAuth) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ClientAuth) UnmarshalText(text []byte) error {
	mode, err := ParseClientAuth(string(text))
	if err != nil {
		return err
	}
	*c = mode
	return nil
}

func (c ClientAuth) authType() tls.ClientAuthType {
	switch c {
	case ClientAuthOptional:
		return tls.VerifyClientCertIfGiven
	case ClientAuthRequired:
		return tls.RequireAndVerifyClientCert
	default:
		return tls.NoClientCert
	}
}
