package listen

import (
	"context"
	"net"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddressesDedupAndTrims(t *testing.T) {
	addrs, err := ParseAddresses("tcp", []string{" 127.0.0.1:80 ", "[::1]:80", "127.0.0.1:80", ""})
	require.NoError(t, err)
	require.Len(t, addrs, 2)

	require.Equal(t, "127.0.0.1:80", addrs[0].Address)
	require.Equal(t, "127.0.0.1", addrs[0].Host)
	require.Equal(t, "tcp4", addrs[0].Network)
	require.Equal(t, IPV4, addrs[0].Version)

	require.Equal(t, "[::1]:80", addrs[1].Address)
	require.Equal(t, "tcp6", addrs[1].Network)
	require.Equal(t, IPV6, addrs[1].Version)
}

func TestParseAddressesPipe(t *testing.T) {
	addrs, err := ParseAddresses("tcp", []string{"pipe:///run/warp.sock"})
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	require.Equal(t, NetworkPipe, addrs[0].Network)
	require.Equal(t, "/run/warp.sock", addrs[0].Host)

	_, err = ParseAddresses("tcp", []string{"pipe://"})
	require.Error(t, err)
}

func TestParseAddressesInvalid(t *testing.T) {
	_, err := ParseAddresses("tcp", []string{"missing-port"})
	require.Error(t, err)

	_, err = ParseAddresses("tcp", []string{"example.com:443"})
	require.Error(t, err)

	require.Equal(t, IPAny, ClassifyIPVersion("example.com"))
	require.Equal(t, IPV4, ClassifyIPVersion(net.IPv4(127, 0, 0, 1).String()))
}

func TestParseAddressesRejectsEmpty(t *testing.T) {
	_, err := ParseAddresses("tcp", []string{"   "})
	require.ErrorIs(t, err, ErrNoAddress)

	_, err = ParseAddresses("tcp", nil)
	require.ErrorIs(t, err, ErrNoAddress)
}

func TestListen(t *testing.T) {
	addrs, err := ParseAddresses("tcp", []string{"127.0.0.1:0"})
	require.NoError(t, err)

	ln, err := Listen(context.Background(), addrs[0])
	require.NoError(t, err)
	require.Equal(t, "tcp", ln.Addr().Network())
	require.NoError(t, ln.Close())

	if runtime.GOOS == "windows" {
		return
	}
	sock := filepath.Join(t.TempDir(), "warp.sock")
	addrs, err = ParseAddresses("tcp", []string{"pipe://" + sock})
	require.NoError(t, err)

	ln, err = Listen(context.Background(), addrs[0])
	require.NoError(t, err)
	require.Equal(t, "unix", ln.Addr().Network())
	require.NoError(t, ln.Close())
}
