package cipher

import (
	"errors"
)

type ErrorKind int

const (
	// KindIO means a credential source could not be read.
	KindIO ErrorKind = iota + 1
	// KindCertParse means no usable certificate (or trust anchor) was decoded.
	KindCertParse
	// KindMissingPrivateKey means the key source held no RSA, EC or PKCS#8 key.
	KindMissingPrivateKey
	// KindInvalidKey means the key and certificate could not be combined.
	KindInvalidKey
)

var (
	ErrIO                = errors.New("cipher: error reading credential")
	ErrCertParse         = errors.New("certificate parse error")
	ErrMissingPrivateKey = errors.New("identity PEM is missing a private key such as RSA, ECC or PKCS8")
	ErrInvalidKey        = errors.New("key contains an invalid key")

	// ErrBuilderConsumed is returned when Build is called more than once.
	ErrBuilderConsumed = errors.New("cipher: config builder has already been built")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindIO:
		return ErrIO
	case KindCertParse:
		return ErrCertParse
	case KindMissingPrivateKey:
		return ErrMissingPrivateKey
	case KindInvalidKey:
		return ErrInvalidKey
	default:
		return nil
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "Io"
	case KindCertParse:
		return "CertParseError"
	case KindMissingPrivateKey:
		return "MissingPrivateKey"
	case KindInvalidKey:
		return "InvalidKey"
	default:
		return "Unknown"
	}
}

// ConfigError is returned by ConfigBuilder.Build. Use errors.Is with the
// Err* sentinels to match a kind, or errors.As to inspect the cause.
type ConfigError struct {
	Kind ErrorKind
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Kind == KindIO && e.Err != nil {
		return e.Err.Error()
	}
	msg := "cipher: unknown config error"
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Err != nil {
		msg += ", " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func newConfigError(kind ErrorKind, err error) error {
	return &ConfigError{
		Kind: kind,
		Err:  err,
	}
}
