package listener

import "strings"

// Network is the transport kind selected for a configured address.
type Network string

const (
	NetworkTCP  Network = "tcp"
	NetworkUnix Network = "unix"
)

// ResolveAddr implements the address-parsing rule from spec.md §6: a
// numeric-only value binds to loopback on that port; a host:port value binds
// TCP on that address; anything else is treated as a filesystem socket path.
//
// This is also exercised via the deprecated --port flag, whose open question
// (spec.md §9) is preserved here unchanged: a non-numeric --port value is
// passed straight through to this function like any other configured
// address, which lets it smuggle a socket path through the legacy flag. That
// is undocumented upstream behaviour, not a bug, and is not validated away.
func ResolveAddr(raw string) (network Network, addr string) {
	if isNumeric(raw) {
		return NetworkTCP, "127.0.0.1:" + raw
	}
	if strings.Contains(raw, ":") {
		return NetworkTCP, raw
	}
	return NetworkUnix, raw
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
