package listener

import "testing"

// Listener address parsing round-trip, spec.md §8 laws.
func TestResolveAddr(t *testing.T) {
	cases := []struct {
		raw         string
		wantNetwork Network
		wantAddr    string
	}{
		{"8080", NetworkTCP, "127.0.0.1:8080"},
		{"/tmp/x.sock", NetworkUnix, "/tmp/x.sock"},
		{"1.2.3.4:9000", NetworkTCP, "1.2.3.4:9000"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			network, addr := ResolveAddr(tc.raw)
			if network != tc.wantNetwork || addr != tc.wantAddr {
				t.Errorf("ResolveAddr(%q) = (%v, %q), want (%v, %q)", tc.raw, network, addr, tc.wantNetwork, tc.wantAddr)
			}
		})
	}
}

func TestResolveAddrNonNumericPortFlagPassesThrough(t *testing.T) {
	// spec.md §9 open question: a non-numeric --port value (e.g. a socket
	// path given via the deprecated flag) must pass straight through.
	network, addr := ResolveAddr("/var/run/legacy.sock")
	if network != NetworkUnix || addr != "/var/run/legacy.sock" {
		t.Errorf("expected legacy socket path pass-through, got (%v, %q)", network, addr)
	}
}
