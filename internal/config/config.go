// Package config holds the server's runtime configuration, the seam
// cmd/chatroomd builds from CLI flags and internal/reactor/internal/netsetup
// build a running server from.
package config

// Config is the chatroom daemon's configuration.
type Config struct {
	// Port is the TCP port to listen on, the daemon's first positional arg.
	Port int
	// Backlog is the listen backlog hint, the daemon's optional second
	// positional arg (default netsetup.DefaultBacklog).
	Backlog int
	// MaxPacketSize bounds a single steady-state packet.
	MaxPacketSize int
	// LogFile redirects logging output to a file when non-empty.
	LogFile string
	// Quiet suppresses join/leave/accept log lines.
	Quiet bool
	// Color enables ANSI-colored notices via internal/chatcolor.
	Color bool
	// Pprof starts a debug pprof server on :6060.
	Pprof bool
	// StatsLog, if non-empty, enables internal/chatstats' periodic CSV
	// counters.
	StatsLog string
	// StatsPeriod is the interval in seconds between stats flushes.
	StatsPeriod int
}
