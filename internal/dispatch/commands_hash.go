package dispatch

import (
	"hexagondb/internal/resp"
)

func init() {
	register("HSET", 4, -1, true, false, cmdHSet)
	register("HSETNX", 4, 4, true, false, cmdHSetNX)
	register("HGET", 3, 3, false, false, cmdHGet)
	register("HDEL", 3, -1, true, false, cmdHDel)
	register("HGETALL", 2, 2, false, false, cmdHGetAll)
	register("HLEN", 2, 2, false, false, cmdHLen)
	register("HEXISTS", 3, 3, false, false, cmdHExists)
	register("HKEYS", 2, 2, false, false, cmdHKeys)
	register("HVALS", 2, 2, false, false, cmdHVals)
	register("HINCRBY", 4, 4, true, false, cmdHIncrBy)
	register("HINCRBYFLOAT", 4, 4, true, false, cmdHIncrByFloat)
	register("HSCAN", 3, -1, false, false, cmdHScan)
}

func cmdHSet(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	rest := args[2:]
	if len(rest)%2 != 0 {
		return wrongArgs("hset"), false, nil
	}
	pairs := make([][2][]byte, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		pairs = append(pairs, [2][]byte{[]byte(rest[i]), []byte(rest[i+1])})
	}
	created, err := d.KS.HSet(args[1], pairs)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(created)), true, nil
}

func cmdHSetNX(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	set, err := d.KS.HSetNX(args[1], args[2], []byte(args[3]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !set {
		return resp.Integer(0), false, nil
	}
	return resp.Integer(1), true, nil
}

func cmdHGet(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	val, found, err := d.KS.HGet(args[1], args[2])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !found {
		return resp.NullBulk(), false, nil
	}
	return resp.Bulk(val), false, nil
}

func cmdHDel(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.HDel(args[1], args[2:])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), n > 0, nil
}

func cmdHGetAll(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	pairs, err := d.KS.HGetAll(args[1])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	flat := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		flat = append(flat, string(p[0]), string(p[1]))
	}
	return resp.BulkStrings(flat), false, nil
}

func cmdHLen(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.HLen(args[1])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), false, nil
}

func cmdHExists(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	exists, err := d.KS.HExists(args[1], args[2])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if exists {
		return resp.Integer(1), false, nil
	}
	return resp.Integer(0), false, nil
}

func cmdHKeys(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	keys, err := d.KS.HKeys(args[1])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.BulkStrings(keys), false, nil
}

func cmdHVals(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	vals, err := d.KS.HVals(args[1])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.BulkByteSlices(vals), false, nil
}

func cmdHIncrBy(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	delta, ok := parseIntArg(args[3])
	if !ok {
		return notIntReply(), false, nil
	}
	n, err := d.KS.HIncrBy(args[1], args[2], delta)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(n), true, nil
}

func cmdHIncrByFloat(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	delta, ok := parseFloatArg(args[3])
	if !ok {
		return resp.Error("ERR value is not a valid float"), false, nil
	}
	n, err := d.KS.HIncrByFloat(args[1], args[2], delta)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.BulkString(formatFloat(n)), true, nil
}

func cmdHScan(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	cursor, ok := parseIntArg(args[2])
	if !ok {
		return notIntReply(), false, nil
	}
	pattern := "*"
	count := 10
	for i := 3; i < len(args); i++ {
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
	next, pairs, err := d.KS.HScan(args[1], uint64(cursor), pattern, count)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	flat := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		flat = append(flat, string(p[0]), string(p[1]))
	}
	return resp.Array([]resp.Value{
		resp.BulkString(formatUint(next)),
		resp.BulkStrings(flat),
	}), false, nil
}
