package dispatch

import (
	"hexagondb/internal/keyspace"
	"hexagondb/internal/resp"
)

func init() {
	register("SET", 3, -1, true, false, cmdSet)
	register("GET", 2, 2, false, false, cmdGet)
	register("GETSET", 3, 3, true, false, cmdGetSet)
	register("INCR", 2, 2, true, false, cmdIncr)
	register("DECR", 2, 2, true, false, cmdDecr)
	register("INCRBY", 3, 3, true, false, cmdIncrBy)
	register("DECRBY", 3, 3, true, false, cmdDecrBy)
	register("INCRBYFLOAT", 3, 3, true, false, cmdIncrByFloat)
	register("APPEND", 3, 3, true, false, cmdAppend)
	register("STRLEN", 2, 2, false, false, cmdStrLen)
	register("GETRANGE", 4, 4, false, false, cmdGetRange)
	register("SETRANGE", 4, 4, true, false, cmdSetRange)
}

func cmdSet(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	key, val := args[1], []byte(args[2])
	opts := keyspace.SetOpts{}
	for i := 3; i < len(args); i++ {
		switch {
		case eqFold(args[i], "NX"):
			opts.NX = true
		case eqFold(args[i], "XX"):
			opts.XX = true
		case eqFold(args[i], "EX") && i+1 < len(args):
			n, ok := parseIntArg(args[i+1])
			if !ok {
				return notIntReply(), false, nil
			}
			opts.HasTTL = true
			opts.TTLMillis = n * 1000
			i++
		case eqFold(args[i], "PX") && i+1 < len(args):
			n, ok := parseIntArg(args[i+1])
			if !ok {
				return notIntReply(), false, nil
			}
			opts.HasTTL = true
			opts.TTLMillis = n
			i++
		default:
			return syntaxReply(), false, nil
		}
	}
	ok, _ := d.KS.Set(key, val, opts)
	if !ok {
		return resp.NullBulk(), false, nil
	}
	return resp.OK(), true, nil
}

func cmdGet(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	v, found, err := d.KS.Get(args[1])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !found {
		return resp.NullBulk(), false, nil
	}
	return resp.Bulk(v), false, nil
}

func cmdGetSet(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	prev, had, err := d.KS.GetSet(args[1], []byte(args[2]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !had {
		return resp.NullBulk(), true, nil
	}
	return resp.Bulk(prev), true, nil
}

func cmdIncr(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return incrByN(d, args[1], 1)
}

func cmdDecr(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return incrByN(d, args[1], -1)
}

func cmdIncrBy(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, ok := parseIntArg(args[2])
	if !ok {
		return notIntReply(), false, nil
	}
	return incrByN(d, args[1], n)
}

func cmdDecrBy(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, ok := parseIntArg(args[2])
	if !ok {
		return notIntReply(), false, nil
	}
	return incrByN(d, args[1], -n)
}

func incrByN(d *Dispatcher, key string, delta int64) (resp.Value, bool, []string) {
	n, err := d.KS.IncrBy(key, delta)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(n), true, nil
}

func cmdIncrByFloat(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	delta, ok := parseFloatArg(args[2])
	if !ok {
		return resp.Error("ERR value is not a valid float"), false, nil
	}
	n, err := d.KS.IncrByFloat(args[1], delta)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.BulkString(formatFloat(n)), true, nil
}

func cmdAppend(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.Append(args[1], []byte(args[2]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), true, nil
}

func cmdStrLen(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.StrLen(args[1])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), false, nil
}

func cmdGetRange(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	start, ok1 := parseIntArg(args[2])
	end, ok2 := parseIntArg(args[3])
	if !ok1 || !ok2 {
		return notIntReply(), false, nil
	}
	out, err := d.KS.GetRange(args[1], int(start), int(end))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Bulk(out), false, nil
}

func cmdSetRange(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	offset, ok := parseIntArg(args[2])
	if !ok {
		return notIntReply(), false, nil
	}
	n, err := d.KS.SetRange(args[1], int(offset), []byte(args[3]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), true, nil
}
