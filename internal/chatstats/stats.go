// Package chatstats provides periodic operational counters: a ticker
// goroutine that appends a CSV row of chat-server counters to a
// timestamp-formatted log file.
//
// It uses the same ticker + csv.Writer + time.Now().Format(logfile)
// rotation idiom other operational counters in this codebase's lineage use,
// repurposed here for chat-specific counters.
package chatstats

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// Counters are the chat-server-specific gauges/totals tracked by the
// reactor and periodically flushed by Logger.
type Counters struct {
	ConnectionsAccepted atomic.Int64
	UsersOnline         atomic.Int64
	MessagesRelayed     atomic.Int64
	BytesBroadcast      atomic.Int64
	NamesRejected       atomic.Int64
}

// Header names each column Logger writes, in the same order as Row.
func (c *Counters) Header() []string {
	return []string{
		"Unix", "ConnectionsAccepted", "UsersOnline",
		"MessagesRelayed", "BytesBroadcast", "NamesRejected",
	}
}

// Row snapshots the counters as strings, prefixed with the current unix
// time, ready to hand to csv.Writer.Write.
func (c *Counters) Row() []string {
	return []string{
		fmt.Sprint(time.Now().Unix()),
		fmt.Sprint(c.ConnectionsAccepted.Load()),
		fmt.Sprint(c.UsersOnline.Load()),
		fmt.Sprint(c.MessagesRelayed.Load()),
		fmt.Sprint(c.BytesBroadcast.Load()),
		fmt.Sprint(c.NamesRejected.Load()),
	}
}

// Logger periodically appends a Row to path (which may embed a
// time.Format-style pattern in its filename, rotating the log file as time
// passes) every period. It returns immediately if path is empty or period
// is non-positive, matching std/snmp.go's SnmpLogger no-op guard.
func Logger(path string, period time.Duration, counters *Counters, onError func(error)) {
	if path == "" || period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for range ticker.C {
		if err := flush(path, counters); err != nil && onError != nil {
			onError(err)
		}
	}
}

func flush(path string, counters *Counters) error {
	logdir, logfile := filepath.Split(path)
	name := logdir + time.Now().Format(logfile)

	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		if err := w.Write(counters.Header()); err != nil {
			return err
		}
	}
	if err := w.Write(counters.Row()); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
