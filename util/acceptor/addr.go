package acceptor

import "net"

// unknownAddr stands in when the parent listener is absent.
type unknownAddr struct{}

var _ net.Addr = unknownAddr{}

func (unknownAddr) Network() string { return "unknown" }
func (unknownAddr) String() string  { return "unknown" }
