// Package aof implements the append-only command log: synchronous append
// with a configurable fsync policy, startup replay with bounded
// resynchronization past corrupt frames, and rewrite-with-atomic-rename
// compaction.
package aof

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"hexagondb/internal/config"
	"hexagondb/internal/keyspace"
	"hexagondb/internal/resp"
)

// maxResyncErrors bounds how many corrupt frames replay will skip past
// before giving up and failing startup.
const maxResyncErrors = 100

// Log is the append-only file handle. One Log instance owns one AOF file
// for the process lifetime; Rewrite swaps it for a freshly compacted file
// without closing the original until the rename has succeeded.
type Log struct {
	mu     sync.Mutex
	path   string
	fsync  config.AofFsync
	file   *os.File
	writer *bufio.Writer

	lastSync time.Time
}

// Open creates the AOF file if it does not exist and positions the writer
// at its end, ready for Append calls. Replay must run (via Replay) before
// any Append, or replayed commands will be interleaved with live traffic.
func Open(path string, fsync config.AofFsync) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("aof: open %s: %w", path, err)
	}
	return &Log{
		path:   path,
		fsync:  fsync,
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// Append serializes args as a RESP command array and writes it to the log,
// honoring the configured fsync policy. Always syncs after every append;
// EverySec syncs at most once per second; No leaves flushing to the OS.
func (l *Log) Append(args []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	frame := resp.Array(bulkStrings(args))
	buf := resp.Encode(make([]byte, 0, 128), frame)
	if _, err := l.writer.Write(buf); err != nil {
		return fmt.Errorf("aof: write: %w", err)
	}

	switch l.fsync {
	case config.AofFsyncAlways:
		return l.syncLocked()
	case config.AofFsyncEverySec:
		if time.Since(l.lastSync) >= time.Second {
			return l.syncLocked()
		}
		return l.writer.Flush()
	default: // AofFsyncNo
		return l.writer.Flush()
	}
}

func (l *Log) syncLocked() error {
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("aof: flush: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("aof: fsync: %w", err)
	}
	l.lastSync = time.Now()
	return nil
}

// Tick performs the once-per-second fsync for EverySec policy; the server
// calls this from a background ticker so a quiet log still gets flushed
// promptly after its last write.
func (l *Log) Tick() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fsync == config.AofFsyncEverySec && time.Since(l.lastSync) >= time.Second {
		_ = l.syncLocked()
	}
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

func bulkStrings(args []string) []resp.Value {
	vs := make([]resp.Value, len(args))
	for i, a := range args {
		vs[i] = resp.BulkString(a)
	}
	return vs
}

// Replay streams every complete RESP array frame from path and invokes
// dispatch for each, in order. A truncated trailing frame (the last write
// interrupted by a crash) is tolerated: replay stops there and logs the
// offset, without returning an error. Up to maxResyncErrors
// malformed frames are skipped via one-byte resynchronization before giving
// up; exceeding that bound fails startup, per the append log's replay
// contract.
func Replay(path string, dispatch func(args []string) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("aof: open %s for replay: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("aof: stat %s: %w", path, err)
	}

	buf := make([]byte, 0, 64*1024)
	tmp := make([]byte, 32*1024)
	resyncErrors := 0
	applied := 0

	for {
		n, rerr := f.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		eof := rerr != nil

		for len(buf) > 0 {
			v, consumed, derr := resp.Decode(buf)
			if derr == resp.ErrNeedMore {
				if eof {
					if len(buf) > 0 {
						log.Printf("aof: replay stopped at offset %d of %d: truncated trailing frame", info.Size()-int64(len(buf)), info.Size())
					}
					buf = nil
				}
				break
			}
			if derr != nil {
				resyncErrors++
				if resyncErrors > maxResyncErrors {
					return fmt.Errorf("aof: replay: too many malformed frames (> %d), giving up: %w", maxResyncErrors, derr)
				}
				buf = buf[1:]
				continue
			}

			args, aerr := resp.AsStrings(v)
			buf = buf[consumed:]
			if aerr != nil {
				resyncErrors++
				if resyncErrors > maxResyncErrors {
					return fmt.Errorf("aof: replay: too many malformed frames (> %d), giving up: %w", maxResyncErrors, aerr)
				}
				continue
			}
			if len(args) == 0 {
				continue
			}
			if err := dispatch(args); err != nil {
				log.Printf("aof: replay: command %q failed: %v", args[0], err)
			}
			applied++
		}

		if eof {
			break
		}
	}
	log.Printf("aof: replay complete: %d commands applied, %d frames resynchronized", applied, resyncErrors)
	return nil
}

// Rewrite compacts snap into a minimal command sequence — one creation
// command per key plus a trailing EXPIRE (remaining TTL in whole seconds,
// rounded up) when a deadline is present — and
// atomically replaces the live AOF file with it. Grounded on the
// snapshot-then-replace shape of a background AOF rewrite: the keyspace is
// read once under its own lock (via keyspace.Keyspace.Snapshot), then all
// serialization happens off that lock.
func Rewrite(path string, snap map[string]keyspace.SnapshotEntry, fsync config.AofFsync) error {
	tmpPath := path + ".rewrite.tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("aof: rewrite: create temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	now := time.Now()
	for key, se := range snap {
		for _, cmd := range commandsFor(key, se) {
			buf := resp.Encode(make([]byte, 0, 128), resp.Array(bulkStrings(cmd)))
			if _, err := w.Write(buf); err != nil {
				f.Close()
				os.Remove(tmpPath)
				return fmt.Errorf("aof: rewrite: write: %w", err)
			}
		}
		if !se.ExpiresAt.IsZero() && se.ExpiresAt.After(now) {
			ttlSecs := (se.ExpiresAt.Sub(now).Milliseconds() + 999) / 1000
			cmd := []string{"EXPIRE", key, fmt.Sprintf("%d", ttlSecs)}
			buf := resp.Encode(make([]byte, 0, 64), resp.Array(bulkStrings(cmd)))
			if _, err := w.Write(buf); err != nil {
				f.Close()
				os.Remove(tmpPath)
				return fmt.Errorf("aof: rewrite: write expire: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("aof: rewrite: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("aof: rewrite: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("aof: rewrite: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("aof: rewrite: rename: %w", err)
	}
	return nil
}

// commandsFor renders one Entry's minimal reconstruction command(s),
// omitting empty containers (which cannot occur for a live entry, but
// guards against a future Snapshot producing one).
func commandsFor(key string, se keyspace.SnapshotEntry) [][]string {
	switch se.Kind {
	case keyspace.KindString:
		return [][]string{{"SET", key, string(se.Str)}}
	case keyspace.KindList:
		if len(se.List) == 0 {
			return nil
		}
		cmd := append([]string{"RPUSH", key}, bytesToStrings(se.List)...)
		return [][]string{cmd}
	case keyspace.KindHash:
		if len(se.Hash) == 0 {
			return nil
		}
		cmd := []string{"HSET", key}
		for _, kv := range se.Hash {
			cmd = append(cmd, string(kv[0]), string(kv[1]))
		}
		return [][]string{cmd}
	case keyspace.KindSet:
		if len(se.Set) == 0 {
			return nil
		}
		cmd := append([]string{"SADD", key}, se.Set...)
		return [][]string{cmd}
	case keyspace.KindSortedSet:
		if len(se.ZSet) == 0 {
			return nil
		}
		cmd := []string{"ZADD", key}
		for _, zm := range se.ZSet {
			cmd = append(cmd, formatScore(zm.Score), zm.Member)
		}
		return [][]string{cmd}
	case keyspace.KindBitmap:
		if len(se.Bitmap) == 0 {
			return nil
		}
		return [][]string{{"SETRANGE", key, "0", string(se.Bitmap)}}
	case keyspace.KindGeo:
		if len(se.Geo) == 0 {
			return nil
		}
		cmd := []string{"GEOADD", key}
		for member, p := range se.Geo {
			cmd = append(cmd, formatScore(p.Lon), formatScore(p.Lat), member)
		}
		return [][]string{cmd}
	case keyspace.KindStream:
		cmds := make([][]string, 0, len(se.Stream))
		for _, entry := range se.Stream {
			cmd := []string{"XADD", key, entry.ID.String()}
			for _, f := range entry.Fields {
				cmd = append(cmd, string(f[0]), string(f[1]))
			}
			cmds = append(cmds, cmd)
		}
		return cmds
	case keyspace.KindHyperLogLog:
		// HyperLogLog registers cannot be reconstructed from PFADD element
		// commands; the rewritten AOF intentionally drops the key rather
		// than emit a command that would under-count on replay. RDB is the
		// durability path for cardinality sketches.
		return nil
	default:
		return nil
	}
}

func bytesToStrings(bs [][]byte) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}

func formatScore(f float64) string {
	return fmt.Sprintf("%g", f)
}
