package cluster

import (
	"encoding/binary"
	"fmt"
	"io"
)

const maxFrame = 16 * 1024 * 1024

// writeFrame writes a 4-byte big-endian length prefix followed by buf,
// matching spec.md §4.6's "messages are length-prefixed byte frames".
func writeFrame(w io.Writer, buf []byte) error {
	if len(buf) > maxFrame {
		return fmt.Errorf("cluster: frame too large (%d bytes)", len(buf))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(buf)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

// readFrame reads one length-prefixed frame, blocking until a full frame or
// an error (including EOF when the peer's write end closes) arrives.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrame {
		return nil, fmt.Errorf("cluster: peer announced oversized frame (%d bytes)", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
