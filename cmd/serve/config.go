package serve

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jdthomas/warp/gateway"
	"github.com/jdthomas/warp/spec/cipher"

	"github.com/alecthomas/units"
	"gopkg.in/yaml.v3"
)

// Size is a byte count written in base-2 units, such as "32KiB".
type Size int

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	b, err := units.ParseBase2Bytes(raw)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", raw, err)
	}
	*s = Size(b)
	return nil
}

func (s Size) MarshalYAML() (interface{}, error) {
	return units.Base2Bytes(s).String(), nil
}

type Config struct {
	Listen        []string `yaml:"listen"`
	Cert          string   `yaml:"cert,omitempty"`
	Key           string   `yaml:"key,omitempty"`
	SelfSigned    bool     `yaml:"selfSigned,omitempty"`
	Hostnames     []string `yaml:"hostnames,omitempty"`
	ClientAuth    string   `yaml:"clientAuth,omitempty"`
	ClientCA      string   `yaml:"clientCA,omitempty"`
	OCSP          string   `yaml:"ocsp,omitempty"`
	ProxyProtocol bool     `yaml:"proxyProtocol,omitempty"`

	Upstream         string        `yaml:"upstream,omitempty"`
	DoH              string        `yaml:"doh,omitempty"`
	DialAttempts     uint          `yaml:"dialAttempts,omitempty"`
	BufferSize       Size          `yaml:"bufferSize,omitempty"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout,omitempty"`

	clientAuth cipher.ClientAuth
}

// NewConfig reads a YAML config file. The result is not validated yet since
// command line flags may still override it.
func NewConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening config file for reading: %w", err)
	}
	defer f.Close()

	c := &Config{}
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return nil, fmt.Errorf("error decoding config file: %w", err)
	}
	return c, nil
}

func (c *Config) validate() error {
	if len(c.Listen) == 0 {
		return errors.New("at least one listen address is required")
	}
	switch {
	case c.SelfSigned && (c.Cert != "" || c.Key != ""):
		return errors.New("selfSigned cannot be combined with cert or key")
	case !c.SelfSigned && (c.Cert == "" || c.Key == ""):
		return errors.New("both cert and key are required unless selfSigned is set")
	case c.SelfSigned && len(c.Hostnames) == 0:
		return errors.New("selfSigned requires at least one hostname")
	}

	mode, err := cipher.ParseClientAuth(c.ClientAuth)
	if err != nil {
		return err
	}
	if mode != cipher.ClientAuthOff && c.ClientCA == "" {
		return fmt.Errorf("clientAuth %s requires clientCA", mode)
	}
	if mode == cipher.ClientAuthOff && c.ClientCA != "" {
		return errors.New("clientCA is set but clientAuth is off")
	}
	c.clientAuth = mode

	if c.BufferSize != 0 && c.BufferSize < gateway.MinBufferSize {
		return fmt.Errorf("bufferSize must be at least %s", units.Base2Bytes(gateway.MinBufferSize))
	}
	if c.HandshakeTimeout < 0 {
		return errors.New("handshakeTimeout cannot be negative")
	}
	if c.Upstream == "" && (c.DialAttempts != 0 || c.BufferSize != 0 || c.DoH != "") {
		return errors.New("dialAttempts, bufferSize, and doh only apply with upstream")
	}
	return nil
}
