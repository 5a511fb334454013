// Package scheme implements the listening endpoint and its configuration
// (spec.md C4): host/port or IPC path, ordered broker collection, and the
// defaults every accepted broker inherits.
package scheme

import (
	"github.com/anyks/awh-sub001/internal/duration"
	"github.com/anyks/awh-sub001/internal/netproto"
)

// KeepAlive is the spec's `{cnt, idle, intvl}` tuple.
type KeepAlive struct {
	Cnt   int `mapstructure:"cnt" yaml:"cnt"`
	Idle  int `mapstructure:"idle" yaml:"idle"`
	Intvl int `mapstructure:"intvl" yaml:"intvl"`
}

// Bandwidth caps read/write throughput per broker (SPEC_FULL.md §5,
// dropped from spec.md's distillation but present in the original source's
// engine buffer-sizing hooks).
type Bandwidth struct {
	Rx int64 `mapstructure:"rx" yaml:"rx"`
	Tx int64 `mapstructure:"tx" yaml:"tx"`
}

// Config is the per-scheme configuration, decodable by viper from
// YAML/JSON/env the way nabbar-golib/config's components are.
type Config struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	Path string `mapstructure:"path" yaml:"path"` // IPC

	Family netproto.Family `mapstructure:"family" yaml:"family"`
	Sonet  netproto.Sonet  `mapstructure:"sonet" yaml:"sonet"`
	IPv6Only bool          `mapstructure:"ipv6_only" yaml:"ipv6_only"`

	ReadTimeout    duration.Seconds `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   duration.Seconds `mapstructure:"write_timeout" yaml:"write_timeout"`
	ConnectTimeout duration.Seconds `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	WaitMessage    duration.Seconds `mapstructure:"wait_message" yaml:"wait_message"`

	KeepAlive KeepAlive `mapstructure:"keep_alive" yaml:"keep_alive"`
	Bandwidth Bandwidth `mapstructure:"bandwidth" yaml:"bandwidth"`

	// Total is the strictly enforced max-brokers cap (spec.md §3, §8).
	// Total(0) rejects all accepts.
	Total int `mapstructure:"total" yaml:"total"`

	// SendQueueCap bounds the per-broker payload queue before a backpressure
	// signal is raised (spec.md §4.4). Zero falls back to a fixed 64 KiB cap
	// (the reactor's maximum write chunk); the socket's transmit buffer size
	// is not consulted.
	SendQueueCap int `mapstructure:"send_queue_cap" yaml:"send_queue_cap"`

	Compression []string `mapstructure:"compression" yaml:"compression"`
}

// UnlimitedTotal is a conspicuous constant applications set on Config.Total
// to mean "no cap", instead of leaving the field at its ambiguous zero
// value. A zero Total means "reject every accept" per spec.md §8, so there
// is no implicit default here — callers must choose.
const UnlimitedTotal = 1<<31 - 1
