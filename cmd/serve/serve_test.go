package serve

import (
	"bufio"
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509/pkix"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jdthomas/warp/gateway"
	"github.com/jdthomas/warp/spec/pki"
	"github.com/jdthomas/warp/util/testcond"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/ocsp"
)

func testApp(t *testing.T) *cli.App {
	return &cli.App{
		Name:     "warp",
		Commands: []*cli.Command{Generate()},
		Metadata: map[string]interface{}{
			"logger": zaptest.NewLogger(t),
		},
	}
}

func TestServeSelfSignedOverPipe(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix socket path")
	}
	as := require.New(t)

	sock := filepath.Join(t.TempDir(), "warp.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- testApp(t).RunContext(ctx, []string{
			"warp", "serve",
			"--listen", "pipe://" + sock,
			"--self-signed",
			"--hostname", "localhost",
			"--handshake-timeout", "2s",
		})
	}()

	as.NoError(testcond.WaitForCondition(func() bool {
		_, err := os.Stat(sock)
		return err == nil
	}, 10*time.Millisecond, 5*time.Second))

	conn, err := tls.Dial("unix", sock, &tls.Config{
		ServerName: "localhost",
		NextProtos: []string{"http/1.1"},
		// self-signed
		InsecureSkipVerify: true,
	})
	as.NoError(err)
	defer conn.Close()

	state := conn.ConnectionState()
	as.Equal("localhost", state.PeerCertificates[0].Subject.CommonName)
	as.Contains(state.PeerCertificates[0].DNSNames, "localhost")

	req, err := http.NewRequest(http.MethodGet, "https://localhost/_status", nil)
	as.NoError(err)
	req.Close = true
	as.NoError(req.Write(conn))

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	as.NoError(err)
	defer resp.Body.Close()
	as.Equal(http.StatusOK, resp.StatusCode)

	var st gateway.Status
	as.NoError(json.NewDecoder(resp.Body).Decode(&st))
	as.Equal("http/1.1", st.ALPN)
	as.Equal("localhost", st.ServerName)

	cancel()
	select {
	case err := <-done:
		as.NoError(err)
	case <-time.After(5 * time.Second):
		as.FailNow("timeout waiting for serve to return")
	}

	_, err = os.Stat(sock)
	as.True(errors.Is(err, fs.ErrNotExist))
}

func TestServeRejectsInvalidFlags(t *testing.T) {
	as := require.New(t)

	err := testApp(t).Run([]string{"warp", "serve", "--listen", "127.0.0.1:0", "--cert", "only-cert.pem"})
	as.ErrorContains(err, "both cert and key")

	err = testApp(t).Run([]string{"warp", "serve", "--listen", "127.0.0.1:0", "--self-signed", "--hostname", "localhost", "--client-auth", "required"})
	as.ErrorContains(err, "requires clientCA")
}

func TestServeMissingCertificate(t *testing.T) {
	as := require.New(t)

	dir := t.TempDir()
	err := testApp(t).Run([]string{
		"warp", "serve",
		"--listen", "127.0.0.1:0",
		"--cert", filepath.Join(dir, "tls.crt"),
		"--key", filepath.Join(dir, "tls.key"),
	})
	as.ErrorIs(err, fs.ErrNotExist)
	as.ErrorContains(err, "tls.crt")
}

func TestInspectOCSP(t *testing.T) {
	as := require.New(t)
	logger := zaptest.NewLogger(t)

	ca, err := pki.GenerateCertificate(logger, pki.CertificateRequest{
		Subject: pkix.Name{CommonName: "ocsp ca"},
		IsCA:    true,
	})
	as.NoError(err)
	leaf, err := pki.GenerateCertificate(logger, pki.CertificateRequest{
		Subject: pkix.Name{CommonName: "localhost"},
		Hosts:   []string{"localhost"},
		Parent:  &ca.TLS,
	})
	as.NoError(err)

	staple := func(status int, nextUpdate time.Time) tls.Certificate {
		raw, err := ocsp.CreateResponse(ca.TLS.Leaf, ca.TLS.Leaf, ocsp.Response{
			Status:       status,
			SerialNumber: leaf.TLS.Leaf.SerialNumber,
			ThisUpdate:   time.Now().Add(-time.Hour),
			NextUpdate:   nextUpdate,
			RevokedAt:    time.Now().Add(-time.Minute),
		}, ca.TLS.PrivateKey.(crypto.Signer))
		as.NoError(err)
		return tls.Certificate{
			Certificate: [][]byte{leaf.TLS.Certificate[0], ca.TLS.Certificate[0]},
			Leaf:        leaf.TLS.Leaf,
			OCSPStaple:  raw,
		}
	}

	tests := []struct {
		name    string
		cert    tls.Certificate
		message string
	}{
		{
			name:    "good",
			cert:    staple(ocsp.Good, time.Now().Add(time.Hour)),
			message: "Stapling OCSP response",
		},
		{
			name:    "revoked",
			cert:    staple(ocsp.Revoked, time.Now().Add(time.Hour)),
			message: "OCSP response does not report the certificate as good",
		},
		{
			name:    "stale",
			cert:    staple(ocsp.Good, time.Now().Add(-time.Minute)),
			message: "OCSP response is past its next update",
		},
		{
			name: "garbage",
			cert: tls.Certificate{
				Certificate: leaf.TLS.Certificate,
				Leaf:        leaf.TLS.Leaf,
				OCSPStaple:  []byte("not ocsp"),
			},
			message: "Unable to parse OCSP response, stapling it anyway",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			inspectOCSP(zap.New(core), tc.cert)
			require.Equal(t, 1, logs.FilterMessage(tc.message).Len())
		})
	}

	core, logs := observer.New(zap.DebugLevel)
	inspectOCSP(zap.New(core), leaf.TLS)
	as.Zero(logs.Len())
}
