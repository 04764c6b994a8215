// Package rdb implements point-in-time binary snapshots of the keyspace:
// atomic save-with-rename, versioned load, and backup rotation.
package rdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"hexagondb/internal/keyspace"
)

// magic identifies an hexagondb RDB file; the trailing two bytes are the
// format version.
var magicV01 = [8]byte{'H', 'X', 'D', 'B', 0, 0, 0, 1}
var magicV02 = [8]byte{'H', 'X', 'D', 'B', 0, 0, 0, 2}

// Opcodes, matching the byte used as each record's leading tag.
const (
	opString      byte = 0x00
	opList        byte = 0x01
	opSet         byte = 0x02
	opZSet        byte = 0x03
	opHash        byte = 0x04
	opBitmap      byte = 0x05
	opStream      byte = 0x06
	opGeo         byte = 0x07
	opHyperLogLog byte = 0x08
	opExpire      byte = 0xFD
	opEOF         byte = 0xFF
)

const hllRegisterCount = 16384

// Save writes snap to path atomically: it serializes to "<path>.tmp", fsyncs,
// then renames over path. Before the rename, any existing file at path is
// rotated through ".1".."<backupCount>" if backupCount > 0.
func Save(path string, snap map[string]keyspace.SnapshotEntry, backupCount int) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("rdb: create temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	if _, err := w.Write(magicV02[:]); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("rdb: write magic: %w", err)
	}

	now := time.Now()
	for key, se := range snap {
		if !se.ExpiresAt.IsZero() {
			remaining := se.ExpiresAt.Sub(now)
			if remaining <= 0 {
				continue // expired between Snapshot and Save; skip it
			}
			if err := writeByte(w, opExpire); err != nil {
				f.Close()
				os.Remove(tmpPath)
				return err
			}
			if err := writeUint64(w, uint64(remaining.Milliseconds())); err != nil {
				f.Close()
				os.Remove(tmpPath)
				return err
			}
		}
		if err := writeEntry(w, key, se); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("rdb: write entry %q: %w", key, err)
		}
	}

	if err := writeByte(w, opEOF); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("rdb: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("rdb: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rdb: close: %w", err)
	}

	if backupCount > 0 {
		rotateBackups(path, backupCount)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rdb: rename: %w", err)
	}
	return nil
}

// rotateBackups shifts <path>.<n-1> to <path>.<n> down to <path>.<count>,
// then moves the current <path> to <path>.1. Missing files are skipped.
func rotateBackups(path string, count int) {
	last := fmt.Sprintf("%s.%d", path, count)
	os.Remove(last)
	for n := count - 1; n >= 1; n-- {
		from := fmt.Sprintf("%s.%d", path, n)
		to := fmt.Sprintf("%s.%d", path, n+1)
		if _, err := os.Stat(from); err == nil {
			os.Rename(from, to)
		}
	}
	if _, err := os.Stat(path); err == nil {
		os.Rename(path, path+".1")
	}
}

func writeEntry(w *bufio.Writer, key string, se keyspace.SnapshotEntry) error {
	switch se.Kind {
	case keyspace.KindString:
		if err := writeByte(w, opString); err != nil {
			return err
		}
		if err := writeString(w, key); err != nil {
			return err
		}
		return writeBytes(w, se.Str)

	case keyspace.KindList:
		if err := writeByte(w, opList); err != nil {
			return err
		}
		if err := writeString(w, key); err != nil {
			return err
		}
		if err := writeLength(w, len(se.List)); err != nil {
			return err
		}
		for _, item := range se.List {
			if err := writeBytes(w, item); err != nil {
				return err
			}
		}
		return nil

	case keyspace.KindSet:
		if err := writeByte(w, opSet); err != nil {
			return err
		}
		if err := writeString(w, key); err != nil {
			return err
		}
		if err := writeLength(w, len(se.Set)); err != nil {
			return err
		}
		for _, m := range se.Set {
			if err := writeString(w, m); err != nil {
				return err
			}
		}
		return nil

	case keyspace.KindSortedSet:
		if err := writeByte(w, opZSet); err != nil {
			return err
		}
		if err := writeString(w, key); err != nil {
			return err
		}
		if err := writeLength(w, len(se.ZSet)); err != nil {
			return err
		}
		for _, zm := range se.ZSet {
			if err := writeString(w, zm.Member); err != nil {
				return err
			}
			if err := writeFloat64(w, zm.Score); err != nil {
				return err
			}
		}
		return nil

	case keyspace.KindHash:
		if err := writeByte(w, opHash); err != nil {
			return err
		}
		if err := writeString(w, key); err != nil {
			return err
		}
		if err := writeLength(w, len(se.Hash)); err != nil {
			return err
		}
		for _, kv := range se.Hash {
			if err := writeBytes(w, kv[0]); err != nil {
				return err
			}
			if err := writeBytes(w, kv[1]); err != nil {
				return err
			}
		}
		return nil

	case keyspace.KindBitmap:
		if err := writeByte(w, opBitmap); err != nil {
			return err
		}
		if err := writeString(w, key); err != nil {
			return err
		}
		if err := writeLength(w, len(se.Bitmap)); err != nil {
			return err
		}
		_, err := w.Write(se.Bitmap)
		return err

	case keyspace.KindStream:
		if err := writeByte(w, opStream); err != nil {
			return err
		}
		if err := writeString(w, key); err != nil {
			return err
		}
		if err := writeLength(w, len(se.Stream)); err != nil {
			return err
		}
		for _, entry := range se.Stream {
			if err := writeString(w, entry.ID.String()); err != nil {
				return err
			}
			if err := writeUint64(w, entry.ID.Ms); err != nil {
				return err
			}
			if err := writeLength(w, len(entry.Fields)); err != nil {
				return err
			}
			for _, f := range entry.Fields {
				if err := writeBytes(w, f[0]); err != nil {
					return err
				}
				if err := writeBytes(w, f[1]); err != nil {
					return err
				}
			}
		}
		return writeUint64(w, se.StreamLastID.Seq)

	case keyspace.KindGeo:
		if err := writeByte(w, opGeo); err != nil {
			return err
		}
		if err := writeString(w, key); err != nil {
			return err
		}
		if err := writeLength(w, len(se.Geo)); err != nil {
			return err
		}
		for member, p := range se.Geo {
			if err := writeString(w, member); err != nil {
				return err
			}
			// Payload order is latitude before longitude, deliberately
			// mismatched against the GEOADD argument order (lon, lat); see
			// the load side for the corresponding read order.
			if err := writeFloat64(w, p.Lat); err != nil {
				return err
			}
			if err := writeFloat64(w, p.Lon); err != nil {
				return err
			}
		}
		return nil

	case keyspace.KindHyperLogLog:
		if err := writeByte(w, opHyperLogLog); err != nil {
			return err
		}
		if err := writeString(w, key); err != nil {
			return err
		}
		if err := writeLength(w, len(se.HLLRegisters)); err != nil {
			return err
		}
		_, err := w.Write(se.HLLRegisters)
		return err

	default:
		return nil
	}
}

func writeByte(w *bufio.Writer, b byte) error { return w.WriteByte(b) }

func writeLength(w *bufio.Writer, n int) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(n))
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w *bufio.Writer, n uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	_, err := w.Write(b[:])
	return err
}

func writeFloat64(w *bufio.Writer, f float64) error {
	return writeUint64(w, math.Float64bits(f))
}

func writeString(w *bufio.Writer, s string) error { return writeBytes(w, []byte(s)) }

func writeBytes(w *bufio.Writer, b []byte) error {
	if err := writeLength(w, len(b)); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// Load reads path and returns the reconstructed snapshot. It fails on a bad
// magic, an unsupported opcode for the detected version, or a truncated
// record — per the load procedure's all-or-nothing contract.
func Load(path string) (map[string]keyspace.SnapshotEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rdb: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("rdb: read magic: %w", err)
	}
	var version uint32
	switch {
	case bytes.Equal(header[:], magicV01[:]):
		version = 1
	case bytes.Equal(header[:], magicV02[:]):
		version = 2
	default:
		return nil, fmt.Errorf("rdb: bad magic %x", header)
	}

	out := make(map[string]keyspace.SnapshotEntry)
	var pendingExpireMs uint64
	havePendingExpire := false

	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("rdb: read opcode: %w", err)
		}
		switch op {
		case opEOF:
			return out, nil
		case opExpire:
			ms, err := readUint64(r)
			if err != nil {
				return nil, fmt.Errorf("rdb: read expire: %w", err)
			}
			pendingExpireMs = ms
			havePendingExpire = true
			continue
		case opBitmap, opStream, opGeo, opHyperLogLog:
			if version < 2 {
				return nil, fmt.Errorf("rdb: opcode 0x%02x not supported in version 1", op)
			}
		}

		key, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("rdb: read key: %w", err)
		}
		se := keyspace.SnapshotEntry{}
		if havePendingExpire {
			se.ExpiresAt = time.Now().Add(time.Duration(pendingExpireMs) * time.Millisecond)
			havePendingExpire = false
		}

		switch op {
		case opString:
			se.Kind = keyspace.KindString
			se.Str, err = readBytes(r)
		case opList:
			se.Kind = keyspace.KindList
			var n uint32
			n, err = readLength(r)
			for i := uint32(0); err == nil && i < n; i++ {
				var item []byte
				item, err = readBytes(r)
				se.List = append(se.List, item)
			}
		case opSet:
			se.Kind = keyspace.KindSet
			var n uint32
			n, err = readLength(r)
			for i := uint32(0); err == nil && i < n; i++ {
				var m string
				m, err = readString(r)
				se.Set = append(se.Set, m)
			}
		case opZSet:
			se.Kind = keyspace.KindSortedSet
			var n uint32
			n, err = readLength(r)
			for i := uint32(0); err == nil && i < n; i++ {
				var member string
				member, err = readString(r)
				if err != nil {
					break
				}
				var score float64
				score, err = readFloat64(r)
				se.ZSet = append(se.ZSet, keyspace.ZMember{Score: score, Member: member})
			}
		case opHash:
			se.Kind = keyspace.KindHash
			var n uint32
			n, err = readLength(r)
			for i := uint32(0); err == nil && i < n; i++ {
				var field, val []byte
				field, err = readBytes(r)
				if err != nil {
					break
				}
				val, err = readBytes(r)
				se.Hash = append(se.Hash, [2][]byte{field, val})
			}
		case opBitmap:
			se.Kind = keyspace.KindBitmap
			var n uint32
			n, err = readLength(r)
			if err == nil {
				se.Bitmap = make([]byte, n)
				_, err = io.ReadFull(r, se.Bitmap)
			}
		case opStream:
			se.Kind = keyspace.KindStream
			var n uint32
			n, err = readLength(r)
			for i := uint32(0); err == nil && i < n; i++ {
				var idStr string
				idStr, err = readString(r)
				if err != nil {
					break
				}
				var ms uint64
				ms, err = readUint64(r)
				if err != nil {
					break
				}
				var fn uint32
				fn, err = readLength(r)
				if err != nil {
					break
				}
				var fields [][2][]byte
				for j := uint32(0); err == nil && j < fn; j++ {
					var fk, fv []byte
					fk, err = readBytes(r)
					if err != nil {
						break
					}
					fv, err = readBytes(r)
					fields = append(fields, [2][]byte{fk, fv})
				}
				if err != nil {
					break
				}
				id, perr := keyspace.ParseStreamID(idStr, 0)
				if perr != nil {
					err = perr
					break
				}
				id.Ms = ms
				se.Stream = append(se.Stream, keyspace.StreamEntry{ID: id, Fields: fields})
			}
			if err == nil {
				var lastSeq uint64
				lastSeq, err = readUint64(r)
				if len(se.Stream) > 0 {
					se.StreamLastID = keyspace.StreamID{Ms: se.Stream[len(se.Stream)-1].ID.Ms, Seq: lastSeq}
				}
			}
		case opGeo:
			se.Kind = keyspace.KindGeo
			se.Geo = make(map[string]keyspace.GeoPoint)
			var n uint32
			n, err = readLength(r)
			for i := uint32(0); err == nil && i < n; i++ {
				var member string
				member, err = readString(r)
				if err != nil {
					break
				}
				var lat, lon float64
				lat, err = readFloat64(r)
				if err != nil {
					break
				}
				lon, err = readFloat64(r)
				se.Geo[member] = keyspace.GeoPoint{Lon: lon, Lat: lat}
			}
		case opHyperLogLog:
			se.Kind = keyspace.KindHyperLogLog
			var n uint32
			n, err = readLength(r)
			if err == nil {
				if n != hllRegisterCount {
					err = fmt.Errorf("rdb: unexpected HyperLogLog register count %d", n)
				} else {
					se.HLLRegisters = make([]byte, n)
					_, err = io.ReadFull(r, se.HLLRegisters)
				}
			}
		default:
			return nil, fmt.Errorf("rdb: unknown opcode 0x%02x", op)
		}
		if err != nil {
			return nil, fmt.Errorf("rdb: read record for key %q: %w", key, err)
		}
		out[key] = se
	}
}

func readUint64(r *bufio.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readFloat64(r *bufio.Reader) (float64, error) {
	n, err := readUint64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(n), nil
}

func readLength(r *bufio.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readBytes(r *bufio.Reader) ([]byte, error) {
	n, err := readLength(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func readString(r *bufio.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
