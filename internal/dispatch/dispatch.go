// Package dispatch routes decoded RESP command arrays to keyspace
// operations, enforcing arity and authentication before invoking the
// handler, and triggering an AOF append for writes that succeed.
package dispatch

import (
	"strings"

	"hexagondb/internal/keyspace"
	"hexagondb/internal/metrics"
	"hexagondb/internal/pubsub"
	"hexagondb/internal/resp"
)

// AOFAppender receives the argument list of every write command that
// completed without error, in the order those mutations became visible to
// other readers. A nil Dispatcher.AOF disables AOF entirely.
type AOFAppender interface {
	Append(args []string) error
}

// ConnState is the subset of per-connection state the dispatcher consults:
// authentication and the active subscription set. The connection goroutine
// owns the full object, selecting on each Receiver's channel alongside the
// socket read loop; dispatch only adds and removes entries.
type ConnState struct {
	Authenticated bool
	InSubscribe   bool

	Channels map[string]*pubsub.Receiver
	Patterns map[string]*pubsub.Receiver
}

// handlerFunc implements one command's semantics and reports whether the
// operation mutated the keyspace (and, if so, the exact arguments the AOF
// should record — normally the original args, but some commands, such as
// an auto-ID XADD, must rewrite the recorded form so replay is
// deterministic).
type handlerFunc func(d *Dispatcher, conn *ConnState, args []string) (result resp.Value, mutated bool, aofArgs []string)

// spec declares one command's arity and dispatch behavior.
type spec struct {
	minArgs int // including the command name itself
	maxArgs int // -1 means unbounded
	write   bool
	authed  bool // must be allowed before authentication succeeds
	fn      handlerFunc
}

// Dispatcher holds every shared subsystem a command handler may touch.
type Dispatcher struct {
	KS       *keyspace.Keyspace
	Broker   *pubsub.Broker
	Metrics  metrics.Sink
	AOF      AOFAppender
	Password string

	// Info renders the INFO command's text block; Save/BGSave trigger RDB
	// snapshots. The server wires these in, since they depend on process
	// state (uptime, connection counts) and the configured RDB path that
	// dispatch itself has no business knowing about.
	Info   func() string
	Save   func() error
	BGSave func() (started bool)

	// Replaying suppresses AOF appends; set by AOF replay at startup.
	Replaying bool
}

var table map[string]spec

// register adds one command to the table. preAuth marks commands that must
// work before AUTH succeeds (PING, AUTH itself, HELLO, QUIT); every other
// command, including ECHO, is blocked with NOAUTH once Dispatcher.Password
// is set and the connection hasn't authenticated.
func register(name string, minArgs, maxArgs int, write, preAuth bool, fn handlerFunc) {
	if table == nil {
		table = make(map[string]spec)
	}
	table[name] = spec{minArgs: minArgs, maxArgs: maxArgs, write: write, authed: preAuth, fn: fn}
}

// Dispatch routes one decoded command array. args[0] is the command name.
func (d *Dispatcher) Dispatch(conn *ConnState, args []string) resp.Value {
	if len(args) == 0 {
		return resp.Error("ERR empty command")
	}
	name := strings.ToUpper(args[0])
	s, ok := table[name]
	if !ok {
		return resp.Error("ERR unknown command '" + args[0] + "'")
	}
	if len(args) < s.minArgs || (s.maxArgs >= 0 && len(args) > s.maxArgs) {
		return resp.Error("ERR wrong number of arguments for '" + args[0] + "' command")
	}
	if d.Password != "" && !conn.Authenticated && !s.authed {
		return resp.Error("NOAUTH Authentication required")
	}

	result, mutated, aofArgs := s.fn(d, conn, args)
	if mutated && !d.Replaying && d.AOF != nil {
		if aofArgs == nil {
			aofArgs = args
		}
		if err := d.AOF.Append(aofArgs); err != nil {
			return resp.Error("ERR failed to persist write: " + err.Error())
		}
	}
	return result
}

// KnownCommand reports whether name is registered, used by the connection
// handler to validate SUBSCRIBE-mode input without fully dispatching.
func KnownCommand(name string) bool {
	_, ok := table[strings.ToUpper(name)]
	return ok
}

func keyspaceErrorToResp(err error) resp.Value {
	var kerr *keyspace.Error
	if e, ok := err.(*keyspace.Error); ok {
		kerr = e
	}
	if kerr == nil {
		return resp.Error("ERR " + err.Error())
	}
	switch kerr.Kind {
	case keyspace.KindTypeMismatch:
		return resp.Error(kerr.Msg)
	default:
		return resp.Error(kerr.Msg)
	}
}
