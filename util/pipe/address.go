package pipe

import "strings"

const Scheme = "pipe://"

// ParseAddress returns the socket path of a "pipe://" address. On Windows
// the path is a named pipe such as \\.\pipe\warp.
func ParseAddress(addr string) (path string, ok bool) {
	if !strings.HasPrefix(addr, Scheme) {
		return "", false
	}
	path = strings.TrimPrefix(addr, Scheme)
	return path, path != ""
}
