package dispatch

import (
	"time"

	"hexagondb/internal/resp"
)

func init() {
	register("EXISTS", 2, -1, false, false, cmdExists)
	register("DEL", 2, -1, true, false, cmdDel)
	register("UNLINK", 2, -1, true, false, cmdDel)
	register("TYPE", 2, 2, false, false, cmdType)
	register("EXPIRE", 3, 3, true, false, cmdExpire)
	register("EXPIREAT", 3, 3, true, false, cmdExpireAt)
	register("PERSIST", 2, 2, true, false, cmdPersist)
	register("TTL", 2, 2, false, false, cmdTTL)
	register("PTTL", 2, 2, false, false, cmdPTTL)
	register("KEYS", 2, 2, false, false, cmdKeys)
	register("SCAN", 2, -1, false, false, cmdScan)
	register("RENAME", 3, 3, true, false, cmdRename)
	register("RENAMENX", 3, 3, true, false, cmdRenameNX)
	register("RANDOMKEY", 1, 1, false, false, cmdRandomKey)
	register("COPY", 3, -1, true, false, cmdCopy)
	register("TOUCH", 2, -1, false, false, cmdTouch)
	register("DBSIZE", 1, 1, false, false, cmdDBSize)
	register("FLUSHDB", 1, 1, true, false, cmdFlushDB)
}

func cmdExists(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n := 0
	for _, k := range args[1:] {
		if d.KS.Exists(k) {
			n++
		}
	}
	return resp.Integer(int64(n)), false, nil
}

func cmdDel(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n := 0
	for _, k := range args[1:] {
		if d.KS.Del(k) {
			n++
		}
	}
	return resp.Integer(int64(n)), n > 0, nil
}

func cmdType(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return resp.SimpleString(d.KS.Type(args[1])), false, nil
}

func cmdExpire(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	secs, ok := parseIntArg(args[2])
	if !ok {
		return notIntReply(), false, nil
	}
	changed := d.KS.Expire(args[1], time.Duration(secs)*time.Second)
	if !changed {
		return resp.Integer(0), false, nil
	}
	return resp.Integer(1), true, nil
}

func cmdExpireAt(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	secs, ok := parseIntArg(args[2])
	if !ok {
		return notIntReply(), false, nil
	}
	changed := d.KS.ExpireAt(args[1], time.Unix(secs, 0))
	if !changed {
		return resp.Integer(0), false, nil
	}
	return resp.Integer(1), true, nil
}

func cmdPersist(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	changed := d.KS.Persist(args[1])
	if !changed {
		return resp.Integer(0), false, nil
	}
	return resp.Integer(1), true, nil
}

func cmdTTL(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return resp.Integer(d.KS.TTL(args[1])), false, nil
}

func cmdPTTL(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return resp.Integer(d.KS.PTTL(args[1])), false, nil
}

func cmdKeys(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return resp.BulkStrings(d.KS.Keys(args[1])), false, nil
}

func cmdScan(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	cursor, ok := parseIntArg(args[1])
	if !ok {
		return notIntReply(), false, nil
	}
	pattern := "*"
	count := 10
	for i := 2; i < len(args); i++ {
		switch {
		case eqFold(args[i], "MATCH") && i+1 < len(args):
			pattern = args[i+1]
			i++
		case eqFold(args[i], "COUNT") && i+1 < len(args):
			n, ok := parseIntArg(args[i+1])
			if !ok {
				return notIntReply(), false, nil
			}
			count = int(n)
			i++
		default:
			return syntaxReply(), false, nil
		}
	}
	next, keys := d.KS.Scan(uint64(cursor), pattern, count)
	return resp.Array([]resp.Value{
		resp.BulkString(formatUint(next)),
		resp.BulkStrings(keys),
	}), false, nil
}

func cmdRename(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	if !d.KS.Rename(args[1], args[2]) {
		return resp.Error("ERR no such key"), false, nil
	}
	return resp.OK(), true, nil
}

func cmdRenameNX(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	renamed, srcExisted := d.KS.RenameNX(args[1], args[2])
	if !srcExisted {
		return resp.Error("ERR no such key"), false, nil
	}
	if !renamed {
		return resp.Integer(0), false, nil
	}
	return resp.Integer(1), true, nil
}

func cmdRandomKey(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	k, found := d.KS.RandomKey()
	if !found {
		return resp.NullBulk(), false, nil
	}
	return resp.BulkString(k), false, nil
}

func cmdCopy(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	replace := false
	for _, a := range args[3:] {
		if eqFold(a, "REPLACE") {
			replace = true
		}
	}
	ok := d.KS.Copy(args[1], args[2], replace)
	if !ok {
		return resp.Integer(0), false, nil
	}
	return resp.Integer(1), true, nil
}

func cmdTouch(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return resp.Integer(int64(d.KS.Touch(args[1:]))), false, nil
}

func cmdDBSize(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return resp.Integer(int64(d.KS.DBSize())), false, nil
}

func cmdFlushDB(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	d.KS.FlushDB()
	return resp.OK(), true, nil
}
