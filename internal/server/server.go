// Package server owns the TCP listener, the per-connection state machine,
// and the background persistence loops (generalized from the teacher's
// GoFastServer.Start/handleConnection/cleanupExpiredKeys into a RESP2,
// typed-keyspace server with AOF and RDB durability).
package server

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hexagondb/internal/aof"
	"hexagondb/internal/bufpool"
	"hexagondb/internal/config"
	"hexagondb/internal/dispatch"
	"hexagondb/internal/keyspace"
	"hexagondb/internal/metrics"
	"hexagondb/internal/pubsub"
	"hexagondb/internal/rdb"
	"hexagondb/internal/resp"
)

// maxInputBuffer bounds a connection's accumulated unread bytes; exceeding
// it closes the connection with a protocol error (§4.3's "request too
// large" rule).
const maxInputBuffer = 64 * 1024 * 1024

// initialReadBuffer is the starting capacity of a connection's read buffer.
const initialReadBuffer = 8 * 1024

// subscribeAllowed lists the only commands a connection in subscribe mode
// may issue.
var subscribeAllowed = map[string]bool{
	"SUBSCRIBE": true, "UNSUBSCRIBE": true,
	"PSUBSCRIBE": true, "PUNSUBSCRIBE": true,
	"PING": true, "QUIT": true,
}

// stats mirrors the teacher's ServerStats, generalized with the counters
// the INFO command's Clients/Stats sections need.
type stats struct {
	mu sync.RWMutex

	startedAt               time.Time
	connectedClients        int64
	totalConnectionsReceived int64
	rejectedConnections     int64
	totalCommandsProcessed  int64
	totalNetInputBytes      int64
	totalNetOutputBytes     int64
	expiredKeys             int64
}

// Server ties together the keyspace, dispatcher, durability subsystems, and
// listener lifecycle.
type Server struct {
	cfg *config.Config

	KS     *keyspace.Keyspace
	Broker *pubsub.Broker
	Disp   *dispatch.Dispatcher
	Stats  metrics.Sink

	aofLog *aof.Log

	listener net.Listener
	sem      chan struct{} // admission-control semaphore sized to max_connections

	outBufs *bufpool.Pool // reused response-encoding buffers, one per connection batch

	stopBG chan struct{}
	done   chan struct{}

	st stats

	savingMu sync.Mutex
	saving   bool
	lastSave time.Time

	mu      sync.Mutex
	cfgLive *config.Config // hot-reloadable sections only
}

// New constructs a Server from cfg but does not yet open any socket or
// persistence file; call Run to do both.
func New(cfg *config.Config, sink metrics.Sink) *Server {
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	ks := keyspace.New()
	broker := pubsub.New()
	s := &Server{
		cfg:     cfg,
		cfgLive: cfg,
		KS:      ks,
		Broker:  broker,
		Stats:   sink,
		outBufs: bufpool.New(),
	}
	s.st.startedAt = time.Now()

	s.Disp = &dispatch.Dispatcher{
		KS:       ks,
		Broker:   broker,
		Metrics:  sink,
		Password: cfg.Security.Password,
		Info:     s.renderInfo,
		Save:     s.saveNow,
		BGSave:   s.startBackgroundSave,
	}
	return s
}

// Run opens persistence (replaying the AOF or loading the RDB file if
// configured), binds the listener, and serves until ctx-driven shutdown via
// Shutdown. It blocks until the listener stops accepting.
func (s *Server) Run() error {
	if err := s.restorePersistedState(); err != nil {
		return fmt.Errorf("server: restoring persisted state: %w", err)
	}

	if s.cfg.Persistence.AofEnabled {
		l, err := aof.Open(s.cfg.Persistence.AofPath, s.cfg.Persistence.AofFsync)
		if err != nil {
			return fmt.Errorf("server: opening AOF: %w", err)
		}
		s.aofLog = l
		s.Disp.AOF = l
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.BindAddress, s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: bind %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.sem = make(chan struct{}, s.cfg.Server.MaxConnections)
	s.stopBG = make(chan struct{})
	s.done = make(chan struct{})

	log.Printf("hexagondb listening on %s", addr)

	var bg errgroup.Group
	bg.Go(func() error { s.backgroundSaveLoop(s.stopBG); return nil })
	bg.Go(func() error { s.backgroundFsyncLoop(s.stopBG); return nil })

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedErr(err) {
				break
			}
			log.Printf("accept error: %v", err)
			continue
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.st.mu.Lock()
			s.st.rejectedConnections++
			s.st.mu.Unlock()
			conn.Close()
			continue
		}

		s.st.mu.Lock()
		s.st.connectedClients++
		s.st.totalConnectionsReceived++
		s.st.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-s.sem }()
			s.handleConnection(conn)
		}()
	}

	close(s.stopBG)
	bg.Wait()
	wg.Wait()
	if s.aofLog != nil {
		s.aofLog.Close()
	}
	close(s.done)
	return nil
}

func isClosedErr(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}

// Shutdown stops accepting new connections and the background persistence
// loops, then waits up to grace for in-flight connection handlers to drain
// before returning, matching the bounded-deadline shutdown the concurrency
// model calls for. Run must already be running in another goroutine.
func (s *Server) Shutdown(grace time.Duration) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("server: shutdown grace period of %s exceeded", grace)
	}
}

// ReloadConfig applies a freshly parsed configuration's hot-reloadable
// sections (persistence, memory, security) live, per config.Watch's
// contract that only those sections are safe to apply without a restart.
// The server section (bind address, port, max connections) is reported but
// ignored until the process is restarted.
func (s *Server) ReloadConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.Server != s.cfgLive.Server {
		log.Printf("config: server section changed but requires a restart to take effect")
	}
	s.cfgLive = cfg
	s.cfg.Persistence = cfg.Persistence
	s.cfg.Memory = cfg.Memory
	s.cfg.Security = cfg.Security
	s.Disp.Password = cfg.Security.Password
	log.Printf("config: reloaded persistence/memory/security sections")
}

func (s *Server) restorePersistedState() error {
	if s.cfg.Persistence.RdbEnabled {
		if _, err := os.Stat(s.cfg.Persistence.RdbPath); err == nil {
			snap, err := rdb.Load(s.cfg.Persistence.RdbPath)
			if err != nil {
				return fmt.Errorf("rdb load: %w", err)
			}
			s.KS.LoadSnapshot(snap)
			log.Printf("rdb: loaded %d keys from %s", len(snap), s.cfg.Persistence.RdbPath)
		}
	}
	if s.cfg.Persistence.AofEnabled {
		s.Disp.Replaying = true
		err := aof.Replay(s.cfg.Persistence.AofPath, func(args []string) error {
			s.Disp.Dispatch(&dispatch.ConnState{Authenticated: true}, args)
			return nil
		})
		s.Disp.Replaying = false
		if err != nil {
			return fmt.Errorf("aof replay: %w", err)
		}
	}
	return nil
}

// backgroundSaveLoop checks once a second whether an RDB snapshot is due
// (enabled, interval elapsed, and at least rdb_min_changes mutations have
// happened since the last save), generalized from the teacher's
// cleanupExpiredKeys ticker loop into a second independent periodic task.
func (s *Server) backgroundSaveLoop(stop <-chan struct{}) {
	if !s.cfg.Persistence.RdbEnabled {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			interval := time.Duration(s.cfg.Persistence.RdbSaveInterval) * time.Second
			if time.Since(s.lastSave) < interval {
				continue
			}
			if int(s.KS.Changes()) < s.cfg.Persistence.RdbMinChanges {
				continue
			}
			if err := s.saveNow(); err != nil {
				log.Printf("rdb: background save failed: %v", err)
			}
		}
	}
}

// backgroundFsyncLoop drives the AOF's once-per-second fsync for the
// EverySec policy so a quiet log is still flushed promptly.
func (s *Server) backgroundFsyncLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.aofLog != nil {
				s.aofLog.Tick()
			}
		}
	}
}

// saveNow performs a synchronous RDB snapshot, used by both the SAVE command
// and the background save loop.
func (s *Server) saveNow() error {
	s.savingMu.Lock()
	defer s.savingMu.Unlock()

	snap := s.KS.Snapshot()
	if err := rdb.Save(s.cfg.Persistence.RdbPath, snap, s.cfg.Persistence.RdbBackupCount); err != nil {
		return err
	}
	s.lastSave = time.Now()
	s.KS.ResetChanges()

	if s.aofLog != nil {
		if err := aof.Rewrite(s.cfg.Persistence.AofPath, snap, s.cfg.Persistence.AofFsync); err != nil {
			log.Printf("aof: rewrite after save failed: %v", err)
		}
	}
	return nil
}

// startBackgroundSave triggers an asynchronous RDB snapshot and reports
// whether one was started (false if one was already in progress), matching
// BGSAVE's non-blocking contract.
func (s *Server) startBackgroundSave() bool {
	s.savingMu.Lock()
	if s.saving {
		s.savingMu.Unlock()
		return false
	}
	s.saving = true
	s.savingMu.Unlock()

	go func() {
		defer func() {
			s.savingMu.Lock()
			s.saving = false
			s.savingMu.Unlock()
		}()
		if err := s.saveNow(); err != nil {
			log.Printf("rdb: background save failed: %v", err)
		}
	}()
	return true
}

// handleConnection implements the Reading/Dispatching/Responding/Subscribing
// state machine of §4.3, generalized from the teacher's bufio-based
// handleConnection loop.
func (s *Server) handleConnection(conn net.Conn) {
	id := uuid.NewString()
	defer func() {
		conn.Close()
		s.st.mu.Lock()
		s.st.connectedClients--
		active := s.st.connectedClients
		s.st.mu.Unlock()
		s.Stats.SetGauge(metrics.ActiveConnections, float64(active))
	}()
	s.Stats.IncrCounter(metrics.ConnectionsTotal, 1)
	s.st.mu.RLock()
	active := s.st.connectedClients
	s.st.mu.RUnlock()
	s.Stats.SetGauge(metrics.ActiveConnections, float64(active))

	timeout := s.cfg.Timeout()
	reader := bufio.NewReaderSize(conn, initialReadBuffer)
	writer := bufio.NewWriter(conn)
	connState := &dispatch.ConnState{}

	readBuf := make([]byte, 0, initialReadBuffer)
	chunk := make([]byte, initialReadBuffer)
	out := s.outBufs.Get()
	defer func() { s.outBufs.Put(out) }()

	for {
		if connState.InSubscribe {
			if !s.subscribeLoop(conn, reader, writer, connState, id) {
				return
			}
			continue
		}

		if timeout > 0 {
			conn.SetReadDeadline(time.Now().Add(timeout))
		}
		n, err := reader.Read(chunk)
		if n > 0 {
			readBuf = append(readBuf, chunk[:n]...)
			s.st.mu.Lock()
			s.st.totalNetInputBytes += int64(n)
			s.st.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("conn %s: read error: %v", id, err)
			}
			return
		}
		if len(readBuf) > maxInputBuffer {
			writeAndFlush(writer, resp.Error("ERR request too large"))
			return
		}

		out = out[:0]
		for {
			v, consumed, derr := resp.Decode(readBuf)
			if derr == resp.ErrNeedMore {
				break
			}
			if derr != nil {
				out = resp.Encode(out, resp.Error("ERR Protocol error: "+derr.Error()))
				writeBytes(writer, out)
				return
			}
			readBuf = readBuf[consumed:]

			args, aerr := resp.AsStrings(v)
			if aerr != nil {
				out = resp.Encode(out, resp.Error("ERR Protocol error: "+aerr.Error()))
				writeBytes(writer, out)
				return
			}
			if len(args) == 0 {
				continue
			}

			frames := s.dispatchFrames(connState, args)
			s.st.mu.Lock()
			s.st.totalCommandsProcessed++
			s.st.mu.Unlock()
			s.Stats.IncrCounter(metrics.CommandsTotal, 1)

			for _, f := range frames {
				out = resp.Encode(out, f)
			}

			if connState.InSubscribe {
				break
			}
			if strings.EqualFold(args[0], "QUIT") {
				writeBytes(writer, out)
				return
			}
		}

		if len(out) > 0 {
			if !writeBytes(writer, out) {
				return
			}
			s.st.mu.Lock()
			s.st.totalNetOutputBytes += int64(len(out))
			s.st.mu.Unlock()
		}
	}
}

// subscribeLoop implements the Subscribing state: select between inbound
// frames (restricted to subscribeAllowed) and outbound pub/sub deliveries.
func (s *Server) subscribeLoop(conn net.Conn, reader *bufio.Reader, writer *bufio.Writer, cs *dispatch.ConnState, id string) bool {
	frames := make(chan resp.Value, 1)
	errs := make(chan error, 1)
	stop := make(chan struct{})
	go func() {
		defer close(frames)
		buf := make([]byte, 0, initialReadBuffer)
		chunk := make([]byte, initialReadBuffer)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for {
				v, consumed, derr := resp.Decode(buf)
				if derr == resp.ErrNeedMore {
					break
				}
				if derr != nil {
					errs <- derr
					return
				}
				buf = buf[consumed:]
				frames <- v
			}
			n, err := conn.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
			}
			if err != nil {
				errs <- err
				return
			}
		}
	}()
	defer close(stop)

	for {
		select {
		case v, ok := <-frames:
			if !ok {
				return false
			}
			args, err := resp.AsStrings(v)
			if err != nil || len(args) == 0 {
				writeAndFlush(writer, resp.Error("ERR Protocol error"))
				return false
			}
			if !subscribeAllowed[strings.ToUpper(args[0])] {
				writeAndFlush(writer, resp.Error("ERR only (P)SUBSCRIBE / (P)UNSUBSCRIBE / PING / QUIT allowed in this context"))
				continue
			}
			for _, f := range s.dispatchFrames(cs, args) {
				writeAndFlush(writer, f)
			}
			if strings.EqualFold(args[0], "QUIT") {
				return false
			}
			if !cs.InSubscribe {
				return true
			}
		case err := <-errs:
			if err != io.EOF {
				log.Printf("conn %s: subscribe read error: %v", id, err)
			}
			return false
		case msg := <-fanIn(cs):
			if msg.Pattern != "" {
				writeAndFlush(writer, resp.Array([]resp.Value{
					resp.BulkString("pmessage"),
					resp.BulkString(msg.Pattern),
					resp.BulkString(msg.Channel),
					resp.Bulk(msg.Payload),
				}))
			} else {
				writeAndFlush(writer, resp.Array([]resp.Value{
					resp.BulkString("message"),
					resp.BulkString(msg.Channel),
					resp.Bulk(msg.Payload),
				}))
			}
		}
	}
}

// subscribeReplyVerbs maps each subscription command to the reply verb
// SUBSCRIBE/UNSUBSCRIBE-family commands emit one confirmation per target
// for, per §4.3: a client that (P)SUBSCRIBEs to three channels in one call
// gets three separate top-level replies, not one array of three.
var subscribeReplyVerbs = map[string]string{
	"SUBSCRIBE":    "subscribe",
	"PSUBSCRIBE":   "psubscribe",
	"UNSUBSCRIBE":  "unsubscribe",
	"PUNSUBSCRIBE": "punsubscribe",
}

// dispatchFrames runs one command through the dispatcher and returns every
// top-level reply frame it produces. For the subscribe family this is one
// frame per target (the handler itself only returns the last one, per its
// own doc comment); every other command produces exactly one frame.
func (s *Server) dispatchFrames(conn *dispatch.ConnState, args []string) []resp.Value {
	name := strings.ToUpper(args[0])
	verb, multi := subscribeReplyVerbs[name]
	var targets []string
	if multi {
		if len(args) > 1 {
			targets = args[1:]
		} else {
			switch name {
			case "UNSUBSCRIBE":
				for ch := range conn.Channels {
					targets = append(targets, ch)
				}
			case "PUNSUBSCRIBE":
				for p := range conn.Patterns {
					targets = append(targets, p)
				}
			}
		}
	}

	result := s.Disp.Dispatch(conn, args)
	if !multi {
		return []resp.Value{result}
	}
	if len(targets) == 0 {
		// Unsubscribe-all with nothing subscribed still gets one reply.
		return []resp.Value{result}
	}

	count := len(conn.Channels) + len(conn.Patterns)
	frames := make([]resp.Value, 0, len(targets))
	for _, t := range targets {
		frames = append(frames, resp.Array([]resp.Value{
			resp.BulkString(verb),
			resp.BulkString(t),
			resp.Integer(int64(count)),
		}))
	}
	return frames
}

// fanIn merges every currently-subscribed channel/pattern receiver into one
// channel for the select above. Rebuilt each call so SUBSCRIBE/UNSUBSCRIBE
// issued mid-loop take effect on the next message wait.
func fanIn(cs *dispatch.ConnState) <-chan pubsub.Message {
	out := make(chan pubsub.Message, 1)
	if len(cs.Channels) == 0 && len(cs.Patterns) == 0 {
		return out
	}
	var once sync.Once
	send := func(m pubsub.Message) {
		once.Do(func() { out <- m })
	}
	for _, r := range cs.Channels {
		r := r
		go func() {
			select {
			case m, ok := <-r.C():
				if ok {
					send(m)
				}
			case <-time.After(200 * time.Millisecond):
			}
		}()
	}
	for _, r := range cs.Patterns {
		r := r
		go func() {
			select {
			case m, ok := <-r.C():
				if ok {
					send(m)
				}
			case <-time.After(200 * time.Millisecond):
			}
		}()
	}
	return out
}

func writeAndFlush(w *bufio.Writer, v resp.Value) {
	buf := resp.Encode(nil, v)
	writeBytes(w, buf)
}

func writeBytes(w *bufio.Writer, buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	if _, err := w.Write(buf); err != nil {
		return false
	}
	return w.Flush() == nil
}

// renderInfo produces the stable, section-partitioned INFO text block.
func (s *Server) renderInfo() string {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()

	uptime := time.Since(s.st.startedAt)
	var b strings.Builder
	fmt.Fprintf(&b, "# Server\r\n")
	fmt.Fprintf(&b, "version:1.0.0\r\n")
	fmt.Fprintf(&b, "os:%s\r\n", runtime.GOOS)
	fmt.Fprintf(&b, "arch:%s\r\n", runtime.GOARCH)
	fmt.Fprintf(&b, "pid:%d\r\n", os.Getpid())
	fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(uptime.Seconds()))
	fmt.Fprintf(&b, "uptime_in_days:%d\r\n", int64(uptime.Hours()/24))

	fmt.Fprintf(&b, "# Clients\r\n")
	fmt.Fprintf(&b, "connected_clients:%d\r\n", s.st.connectedClients)
	fmt.Fprintf(&b, "total_connections_received:%d\r\n", s.st.totalConnectionsReceived)
	fmt.Fprintf(&b, "rejected_connections:%d\r\n", s.st.rejectedConnections)

	fmt.Fprintf(&b, "# Stats\r\n")
	fmt.Fprintf(&b, "total_commands_processed:%d\r\n", s.st.totalCommandsProcessed)
	fmt.Fprintf(&b, "total_net_input_bytes:%d\r\n", s.st.totalNetInputBytes)
	fmt.Fprintf(&b, "total_net_output_bytes:%d\r\n", s.st.totalNetOutputBytes)
	fmt.Fprintf(&b, "expired_keys:%d\r\n", s.st.expiredKeys)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(&b, "# Memory\r\n")
	fmt.Fprintf(&b, "used_memory:%d\r\n", mem.HeapAlloc)
	fmt.Fprintf(&b, "used_memory_human:%s\r\n", humanBytes(mem.HeapAlloc))

	fmt.Fprintf(&b, "# Keyspace\r\n")
	fmt.Fprintf(&b, "db0:keys=%d\r\n", s.KS.DBSize())

	return b.String()
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
