// Package apptable implements the mapping from application identity to
// harvest state (spec.md §3, §4.6). A single lock guards insertion, lookup
// and eviction; each entry additionally has its own lock covering its
// reservoirs plus its last-activity timestamp, so the observation hot path
// only needs the table lock long enough to obtain the entry handle.
package apptable

import "strings"

// Identity is the tuple that two connections must share to be attributed to
// the same application entry (spec.md §3).
type Identity struct {
	LicenseKey   string
	AppNames     []string
	HighSecurity bool
	AgentLang    string
	AgentVersion string
}

// Key collapses an Identity into a comparable map key. AppNames order is
// part of identity (two connections naming ["a","b"] and ["b","a"] are
// different applications to the collector), so it is joined verbatim.
func (id Identity) Key() string {
	var b strings.Builder
	b.WriteString(id.LicenseKey)
	b.WriteByte('\x00')
	b.WriteString(strings.Join(id.AppNames, "\x01"))
	b.WriteByte('\x00')
	if id.HighSecurity {
		b.WriteByte('1')
	} else {
		b.WriteByte('0')
	}
	b.WriteByte('\x00')
	b.WriteString(id.AgentLang)
	b.WriteByte('\x00')
	b.WriteString(id.AgentVersion)
	return b.String()
}
