// Package listener accepts local connections and demultiplexes framed
// observation messages into application entries' reservoirs (spec.md §4.5).
package listener

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformedFrame is returned when a frame's length prefix or body cannot
// be decoded. Per spec.md §4.5, the connection is closed but the daemon
// keeps serving others.
var ErrMalformedFrame = errors.New("listener: malformed frame")

// maxFrameSize bounds a single frame so a corrupt or hostile peer cannot
// force an unbounded allocation.
const maxFrameSize = 16 << 20 // 16MiB

// FrameKind tags the body of a frame so the reader knows how to decode it.
type FrameKind byte

const (
	FrameConnect FrameKind = iota + 1
	FrameAnalyticsEvent
	FrameCustomEvent
	FrameMetric
	FrameError
	FrameSlowSample
)

// ConnectMessage is the payload of a FrameConnect frame: the application
// identity a connection is attributing its subsequent observations to
// (spec.md §3, §4.5).
type ConnectMessage struct {
	LicenseKey   string   `msgpack:"license_key"`
	AppNames     []string `msgpack:"app_names"`
	HighSecurity bool     `msgpack:"high_security"`
	AgentLang    string   `msgpack:"agent_language"`
	AgentVersion string   `msgpack:"agent_version"`
}

// ConnectReplyStatus is the outcome the daemon sends back for a connect
// frame (spec.md §4.5).
type ConnectReplyStatus byte

const (
	ConnectAccepted ConnectReplyStatus = iota
	ConnectRejectedInvalidLicense
	ConnectRejectedHighSecurityMismatch
	ConnectRedirect
)

// ConnectReply is the frame sent back in response to a connect frame.
type ConnectReply struct {
	Status     ConnectReplyStatus `msgpack:"status"`
	RunToken   string             `msgpack:"run_token,omitempty"`
	RedirectTo string             `msgpack:"redirect_to,omitempty"`
}

// writeFrame writes a length-prefixed, msgpack-encoded frame: a 4-byte
// big-endian length, a 1-byte kind, then the msgpack body.
func writeFrame(w io.Writer, kind FrameKind, body any) error {
	payload, err := msgpack.Marshal(body)
	if err != nil {
		return fmt.Errorf("listener: encode frame: %w", err)
	}

	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(payload)+1))
	header[4] = byte(kind)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("listener: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("listener: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame, returning its kind and raw
// msgpack body for the caller to decode per-kind.
func readFrame(r io.Reader) (FrameKind, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	length := binary.BigEndian.Uint32(header[0:4])
	if length == 0 || length > maxFrameSize {
		return 0, nil, ErrMalformedFrame
	}
	kind := FrameKind(header[4])

	body := make([]byte, length-1)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return kind, body, nil
}
