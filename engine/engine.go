// Package engine wraps a net.Conn (or a connectionless net.PacketConn peer)
// with the transport-specific handshake, buffer-sizing and cork/nodelay
// knobs spec.md's C2 requires, plus the DTLS cookie dance. Grounded on
// original_source/include/net/engine.hpp.
package engine

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// Method selects which deadline a SetDeadline call targets.
type Method uint8

const (
	MethodRead Method = iota
	MethodWrite
	MethodConnect
)

// Class classifies an error returned by Read/Write/Handshake the way
// spec.md §4.2 requires.
type Class uint8

const (
	ClassNone Class = iota
	ClassAgain
	ClassEOF
	ClassFatal
	ClassHandshakePending
)

// Engine is the uniform transport abstraction every socket/server/tcp,udp,
// tls,dtls,sctp implementation satisfies.
type Engine interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Handshake(ctx context.Context) error
	SetBlocking(on bool) error
	SetBuffers(rx, tx int) error
	SetDeadline(t time.Time, method Method) error
	Cork(on bool) error
	NoDelay(on bool) error
	NextProto(proto string) error
	// KeepAlive applies the scheme's {cnt, idle, intvl} tuple (spec.md §4.3
	// Broker, SPEC_FULL.md §5): idle <= 0 leaves keep-alive disabled, cnt/intvl
	// <= 0 leave that probe parameter at the OS default. Transports without a
	// native keep-alive notion (UDP, DTLS, SCTP) accept this as a no-op.
	KeepAlive(idle time.Duration, cnt, intvl int) error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Close() error
}

// Classify maps a raw error from Read/Write/Handshake onto the core's
// retry/close decision table.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if IsHandshakePending(err) {
		return ClassHandshakePending
	}
	if errors.Is(err, io.EOF) {
		return ClassEOF
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return ClassAgain
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassAgain
	}
	return ClassFatal
}
