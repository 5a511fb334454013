// Package h2 implements the HTTP/2 session state machine (spec.md C8),
// layered on golang.org/x/net/http2's Framer and HPACK codec the way the
// original source layers its session on an nghttp2-like callback library.
// Grounded on original_source/include/http/http2.hpp.
package h2

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/anyks/awh-sub001/event"
)

// ALTSVC (RFC 7838) and ORIGIN (RFC 8336) frame types: golang.org/x/net/http2
// has no typed support for either, so Session reads/writes their raw bytes
// itself via writeRawFrame and the UnknownFrame dispatch case below.
const (
	frameTypeAltsvc http2.FrameType = 0x0a
	frameTypeOrigin http2.FrameType = 0x0c
)

// Mode selects which side of the connection this Session plays.
type Mode uint8

const (
	ModeServer Mode = iota
	ModeClient
)

// Settings mirrors spec.md §4.7's init(mode, settings) parameter set.
type Settings struct {
	Streams         uint32
	Connect         bool
	FrameSize       uint32
	EnablePush      bool
	WindowSize      uint32
	PayloadSize     uint32 // SETTINGS_MAX_HEADER_LIST_SIZE
	EnableAltsvc    bool
	EnableOrigin    bool
	HeaderTableSize uint32
}

// DefaultSettings fills any zero field. HeaderTableSize, FrameSize and
// WindowSize are the RFC 7540 defaults; the RFC leaves concurrent streams and
// header list size unlimited, so Streams (100) and PayloadSize (1 MiB) are
// this package's own choices.
var DefaultSettings = Settings{
	Streams:         100,
	FrameSize:       16384,
	WindowSize:      65535,
	PayloadSize:     1 << 20,
	HeaderTableSize: 4096,
}

func (s Settings) withDefaults() Settings {
	if s.Streams == 0 {
		s.Streams = DefaultSettings.Streams
	}
	if s.FrameSize == 0 {
		s.FrameSize = DefaultSettings.FrameSize
	}
	if s.WindowSize == 0 {
		s.WindowSize = DefaultSettings.WindowSize
	}
	if s.PayloadSize == 0 {
		s.PayloadSize = DefaultSettings.PayloadSize
	}
	if s.HeaderTableSize == 0 {
		s.HeaderTableSize = DefaultSettings.HeaderTableSize
	}
	return s
}

// StreamState tracks one stream's flow-control window and half-close state.
type StreamState struct {
	ID          uint32
	SendWindow  int64
	RecvWindow  int64
	HalfClosed  bool
	pending     []pendingChunk // egress queued behind flow control, drained on WINDOW_UPDATE
}

// pendingChunk is the tail of a DATA write that didn't fit the window at
// submit time, along with the end-stream flag it should carry once drained.
type pendingChunk struct {
	data      []byte
	endStream bool
}

// Callbacks collects every ingress-side event the session fires while
// draining frame(bytes) (spec.md §4.7's begin/header*/chunk*/frameRecv/close
// ordering).
type Callbacks struct {
	Begin     func(streamID uint32)
	Header    func(streamID uint32, name, value string)
	Chunk     func(streamID uint32, data []byte, endStream bool)
	FrameRecv func(streamID uint32, frameType http2.FrameType)
	Close     func(streamID uint32, code http2.ErrCode)
	Settings  func(s Settings)
	Goaway    func(lastStreamID uint32, code http2.ErrCode, debug []byte)
	Ping      func(ack bool)
	Altsvc    func(streamID uint32, origin, value string)
	Origin    func(values []string)
}

// Session is one HTTP/2 connection's frame state machine, ingress-driven by
// Frame and egress-driven by SendHeaders/SendData/SendTrailers/SendPush.
type Session struct {
	mode Mode
	cb   Callbacks

	mu      sync.Mutex
	w       io.Writer
	framer  *http2.Framer // reads from &pending, writes to w
	enc     *hpack.Encoder
	encBuf  bytes.Buffer
	streams map[uint32]*StreamState
	pending bytes.Buffer // ingress bytes not yet forming a complete frame
	settings Settings

	// event is the single-event invariant from spec.md §4.7: set on entry
	// to a submit-class call, cleared by completed(). A fresh On(trigger)
	// fires immediately if nothing is in flight.
	event   atomic.Bool
	trigger *event.Container
}

// New creates a Session over a connection's writer (Read is fed manually via
// Frame, so the Session never blocks on network I/O itself).
func New(mode Mode, w io.Writer, cb Callbacks) *Session {
	s := &Session{
		mode:    mode,
		cb:      cb,
		w:       w,
		streams: make(map[uint32]*StreamState),
		trigger: event.New(),
	}
	s.enc = hpack.NewEncoder(&s.encBuf)
	s.framer = http2.NewFramer(w, &s.pending)
	s.framer.ReadMetaHeaders = hpack.NewDecoder(4096, nil)
	return s
}

// Init negotiates SETTINGS (spec.md §4.7's init(mode, settings)).
func (s *Session) Init(settings Settings) error {
	settings = settings.withDefaults()
	s.mu.Lock()
	s.settings = settings
	s.framer.ReadMetaHeaders.SetMaxDynamicTableSize(settings.HeaderTableSize)
	s.mu.Unlock()

	params := []http2.Setting{
		{ID: http2.SettingHeaderTableSize, Val: settings.HeaderTableSize},
		{ID: http2.SettingMaxFrameSize, Val: settings.FrameSize},
		{ID: http2.SettingInitialWindowSize, Val: settings.WindowSize},
		{ID: http2.SettingMaxConcurrentStreams, Val: settings.Streams},
		{ID: http2.SettingMaxHeaderListSize, Val: settings.PayloadSize},
	}
	if settings.EnablePush {
		params = append(params, http2.Setting{ID: http2.SettingEnablePush, Val: 1})
	} else {
		params = append(params, http2.Setting{ID: http2.SettingEnablePush, Val: 0})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framer.WriteSettings(params...)
}

func (s *Session) streamFor(id uint32) *StreamState {
	st, ok := s.streams[id]
	if !ok {
		st = &StreamState{ID: id, SendWindow: int64(s.settings.WindowSize), RecvWindow: int64(s.settings.WindowSize)}
		s.streams[id] = st
		if s.cb.Begin != nil {
			s.cb.Begin(id)
		}
	}
	return st
}

const frameHeaderLen = 9

// Frame feeds ingress bytes, parsing as many complete frames as are
// already buffered and firing begin/header*/chunk*/frameRecv/close in
// order. Incomplete trailing bytes are retained for the next call: the
// frame's 3-byte length prefix is peeked before ReadFrame is ever invoked,
// so a split header or payload never causes a partial, unrecoverable read
// off the shared HPACK-stateful framer.
func (s *Session) Frame(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.Write(b)

	for {
		raw := s.pending.Bytes()
		if len(raw) < frameHeaderLen {
			return nil
		}
		payloadLen := int(raw[0])<<16 | int(raw[1])<<8 | int(raw[2])
		if len(raw) < frameHeaderLen+payloadLen {
			return nil
		}

		frame, err := s.framer.ReadFrame()
		if err != nil {
			return fmt.Errorf("h2: read frame: %w", err)
		}
		s.dispatch(frame)
	}
}

func (s *Session) dispatch(frame http2.Frame) {
	hdr := frame.Header()
	recvFired := false
	frameRecv := func() {
		if !recvFired && s.cb.FrameRecv != nil {
			s.cb.FrameRecv(hdr.StreamID, hdr.Type)
		}
		recvFired = true
	}

	switch f := frame.(type) {
	case *http2.MetaHeadersFrame:
		st := s.streamFor(hdr.StreamID)
		for _, hf := range f.Fields {
			if s.cb.Header != nil {
				s.cb.Header(hdr.StreamID, hf.Name, hf.Value)
			}
		}
		frameRecv()
		if f.StreamEnded() {
			st.HalfClosed = true
			if s.cb.Close != nil {
				s.cb.Close(hdr.StreamID, http2.ErrCodeNo)
			}
		}
	case *http2.DataFrame:
		st := s.streamFor(hdr.StreamID)
		if s.cb.Chunk != nil {
			s.cb.Chunk(hdr.StreamID, f.Data(), f.StreamEnded())
		}
		frameRecv()
		if f.StreamEnded() {
			st.HalfClosed = true
			if s.cb.Close != nil {
				s.cb.Close(hdr.StreamID, http2.ErrCodeNo)
			}
		}
	case *http2.RSTStreamFrame:
		frameRecv()
		if s.cb.Close != nil {
			s.cb.Close(hdr.StreamID, f.ErrCode)
		}
		delete(s.streams, hdr.StreamID)
	case *http2.SettingsFrame:
		if !f.IsAck() && s.cb.Settings != nil {
			s.cb.Settings(s.settings)
		}
	case *http2.GoAwayFrame:
		if s.cb.Goaway != nil {
			s.cb.Goaway(f.LastStreamID, f.ErrCode, f.DebugData())
		}
	case *http2.PingFrame:
		if s.cb.Ping != nil {
			s.cb.Ping(f.IsAck())
		}
	case *http2.WindowUpdateFrame:
		st := s.streamFor(hdr.StreamID)
		st.SendWindow += int64(f.Increment)
		s.drainPending(st)
	case *http2.UnknownFrame:
		switch hdr.Type {
		case frameTypeAltsvc:
			if origin, value, ok := parseAltsvc(f.Payload()); ok && s.cb.Altsvc != nil {
				s.cb.Altsvc(hdr.StreamID, origin, value)
			}
		case frameTypeOrigin:
			if s.cb.Origin != nil {
				s.cb.Origin(parseOrigin(f.Payload()))
			}
		}
	}
	frameRecv()
}

// parseAltsvc splits an ALTSVC frame's payload (RFC 7838 §4) into its
// Origin and Alt-Svc-Field-Value parts.
func parseAltsvc(payload []byte) (origin, value string, ok bool) {
	if len(payload) < 2 {
		return "", "", false
	}
	n := int(binary.BigEndian.Uint16(payload[:2]))
	if len(payload) < 2+n {
		return "", "", false
	}
	return string(payload[2 : 2+n]), string(payload[2+n:]), true
}

// parseOrigin splits an ORIGIN frame's payload (RFC 8336 §2) into its
// Origin-Entry list.
func parseOrigin(payload []byte) []string {
	var values []string
	for len(payload) >= 2 {
		n := int(binary.BigEndian.Uint16(payload[:2]))
		payload = payload[2:]
		if len(payload) < n {
			break
		}
		values = append(values, string(payload[:n]))
		payload = payload[n:]
	}
	return values
}

// drainPending flushes egress DATA queued behind insufficient flow-control
// window, once a WINDOW_UPDATE frees room (spec.md §4.7: "any excess is
// buffered in payloads[sid] and drained when WINDOW_UPDATE arrives"). Each
// queued chunk is itself split again if the freed window still isn't
// enough to cover it (spec.md §8 scenario 6: the write is split at the
// window boundary, not held back in full).
func (s *Session) drainPending(st *StreamState) {
	for len(st.pending) > 0 && st.SendWindow > 0 {
		chunk := st.pending[0]
		if int64(len(chunk.data)) <= st.SendWindow {
			_ = s.framer.WriteData(st.ID, chunk.endStream, chunk.data)
			st.SendWindow -= int64(len(chunk.data))
			st.pending = st.pending[1:]
			continue
		}
		n := st.SendWindow
		head, tail := chunk.data[:n], chunk.data[n:]
		st.SendWindow = 0
		_ = s.framer.WriteData(st.ID, false, head)
		st.pending[0] = pendingChunk{data: tail, endStream: chunk.endStream}
		return
	}
}

// beginSubmit enforces the single-event invariant: only one submit-class
// call may be in flight at a time.
func (s *Session) beginSubmit() error {
	if !s.event.CompareAndSwap(false, true) {
		return fmt.Errorf("h2: a submit-class call is already in flight")
	}
	return nil
}

func (s *Session) completed() {
	s.event.Store(false)
	event.Call[func()](s.trigger, "trigger", func(fn func()) { fn() })
}

// SendHeaders encodes and writes a HEADERS frame, respecting HPACK table
// sizing from Init.
func (s *Session) SendHeaders(streamID uint32, headers []hpack.HeaderField, endStream bool) error {
	if err := s.beginSubmit(); err != nil {
		return err
	}
	defer s.completed()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.encBuf.Reset()
	for _, hf := range headers {
		if err := s.enc.WriteField(hf); err != nil {
			return err
		}
	}
	s.streamFor(streamID)
	return s.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: s.encBuf.Bytes(),
		EndHeaders:    true,
		EndStream:     endStream,
	})
}

// SendData writes min(len(data), SendWindow) bytes of data as one DATA
// frame and queues the remainder (if any) for drainPending, matching
// spec.md §8 scenario 6: a write larger than the current window is split at
// the window boundary, not held back in full.
func (s *Session) SendData(streamID uint32, data []byte, endStream bool) error {
	if err := s.beginSubmit(); err != nil {
		return err
	}
	defer s.completed()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.streamFor(streamID)

	// st.SendWindow > 0 implies st.pending is already empty: drainPending
	// only stops looping with room left in the window once nothing remains
	// queued, so a positive window here can never mean an earlier chunk is
	// still waiting behind this one.
	if st.SendWindow <= 0 {
		st.pending = append(st.pending, pendingChunk{data: data, endStream: endStream})
		return nil
	}
	if int64(len(data)) <= st.SendWindow {
		st.SendWindow -= int64(len(data))
		return s.framer.WriteData(streamID, endStream, data)
	}

	n := st.SendWindow
	head, tail := data[:n], data[n:]
	st.SendWindow = 0
	if err := s.framer.WriteData(streamID, false, head); err != nil {
		return err
	}
	st.pending = append(st.pending, pendingChunk{data: tail, endStream: endStream})
	return nil
}

// SendTrailers writes a trailing HEADERS frame with END_STREAM set.
func (s *Session) SendTrailers(streamID uint32, trailers []hpack.HeaderField) error {
	return s.SendHeaders(streamID, trailers, true)
}

// SendPush writes a PUSH_PROMISE frame for a server-initiated stream.
func (s *Session) SendPush(streamID, promisedID uint32, headers []hpack.HeaderField) error {
	if err := s.beginSubmit(); err != nil {
		return err
	}
	defer s.completed()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.encBuf.Reset()
	for _, hf := range headers {
		if err := s.enc.WriteField(hf); err != nil {
			return err
		}
	}
	return s.framer.WritePushPromise(http2.PushPromiseParam{
		StreamID:      streamID,
		PromiseID:     promisedID,
		BlockFragment: s.encBuf.Bytes(),
		EndHeaders:    true,
	})
}

// Altsvc writes an ALTSVC frame (RFC 7838) advertising value for origin,
// always on stream 0 (the RFC's connection-wide form, which carries the
// origin in the payload). golang.org/x/net/http2 has no typed support for
// this frame, so it is written as a raw frame.
func (s *Session) Altsvc(origin, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := make([]byte, 2+len(origin)+len(value))
	binary.BigEndian.PutUint16(payload[:2], uint16(len(origin)))
	copy(payload[2:], origin)
	copy(payload[2+len(origin):], value)

	return s.writeRawFrame(byte(frameTypeAltsvc), 0, 0, payload)
}

// Origin writes an ORIGIN frame (RFC 8336) listing values as this
// connection's authoritative origin set. Always sent on stream 0.
func (s *Session) Origin(values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload []byte
	for _, v := range values {
		entry := make([]byte, 2+len(v))
		binary.BigEndian.PutUint16(entry[:2], uint16(len(v)))
		copy(entry[2:], v)
		payload = append(payload, entry...)
	}
	return s.writeRawFrame(byte(frameTypeOrigin), 0, 0, payload)
}

// writeRawFrame writes a frame type golang.org/x/net/http2's Framer has no
// Write method for (ALTSVC, ORIGIN), bypassing it entirely for the nine-byte
// header plus payload. Callers must hold s.mu.
func (s *Session) writeRawFrame(typ, flags byte, streamID uint32, payload []byte) error {
	hdr := make([]byte, frameHeaderLen)
	hdr[0] = byte(len(payload) >> 16)
	hdr[1] = byte(len(payload) >> 8)
	hdr[2] = byte(len(payload))
	hdr[3] = typ
	hdr[4] = flags
	binary.BigEndian.PutUint32(hdr[5:], streamID&0x7fffffff)

	if _, err := s.w.Write(hdr); err != nil {
		return err
	}
	_, err := s.w.Write(payload)
	return err
}

// Goaway signals the peer that no new streams above lastID will be
// processed.
func (s *Session) Goaway(lastID uint32, code http2.ErrCode, debug []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framer.WriteGoAway(lastID, code, debug)
}

// Reject resets a single stream with the given error code.
func (s *Session) Reject(streamID uint32, code http2.ErrCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, streamID)
	return s.framer.WriteRSTStream(streamID, code)
}

// Ping sends a PING frame; ack should be false for a fresh ping.
func (s *Session) Ping(ack bool, data [8]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.framer.WritePing(ack, data)
}

// Shutdown sends a graceful GOAWAY with no error.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	last := uint32(0)
	for id := range s.streams {
		if id > last {
			last = id
		}
	}
	defer s.mu.Unlock()
	return s.framer.WriteGoAway(last, http2.ErrCodeNo, nil)
}

// Free releases every stream's state; the Session must not be used again.
func (s *Session) Free() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[uint32]*StreamState)
}

// On registers trigger, id 1's special fire-on-registration semantics
// (spec.md §4.7): if no submit-class call is in flight, fn runs immediately.
func (s *Session) On(fn func()) {
	s.trigger.Set("trigger", fn)
	if !s.event.Load() {
		fn()
	}
}
