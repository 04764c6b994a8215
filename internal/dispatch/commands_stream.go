package dispatch

import (
	"time"

	"hexagondb/internal/keyspace"
	"hexagondb/internal/resp"
)

func init() {
	register("XADD", 5, -1, true, false, cmdXAdd)
	register("XLEN", 2, 2, false, false, cmdXLen)
	register("XRANGE", 4, 6, false, false, cmdXRange)
	register("XREVRANGE", 4, 6, false, false, cmdXRevRange)
	register("XTRIM", 4, 4, true, false, cmdXTrim)
}

func cmdXAdd(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	id := args[2]
	rest := args[3:]
	if len(rest)%2 != 0 {
		return wrongArgs("xadd"), false, nil
	}
	fields := make([][2][]byte, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		fields = append(fields, [2][]byte{[]byte(rest[i]), []byte(rest[i+1])})
	}
	nowMs := uint64(time.Now().UnixMilli())
	assigned, err := d.KS.XAdd(args[1], id, fields, nowMs)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	rewritten := append([]string{"XADD", args[1], assigned.String()}, rest...)
	return resp.BulkString(assigned.String()), true, rewritten
}

func cmdXLen(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.XLen(args[1])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), false, nil
}

func streamEntryReply(e keyspace.StreamEntry) resp.Value {
	var flat []string
	for _, f := range e.Fields {
		flat = append(flat, string(f[0]), string(f[1]))
	}
	return resp.Array([]resp.Value{
		resp.BulkString(e.ID.String()),
		resp.BulkStrings(flat),
	})
}

func cmdXRange(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return xRange(d, args, false)
}

func cmdXRevRange(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return xRange(d, args, true)
}

func xRange(d *Dispatcher, args []string, rev bool) (resp.Value, bool, []string) {
	startArg, endArg := args[2], args[3]
	if rev {
		startArg, endArg = args[3], args[2]
	}
	start, err1 := keyspace.ParseStreamID(startArg, 0)
	end, err2 := keyspace.ParseStreamID(endArg, ^uint64(0))
	if err1 != nil || err2 != nil {
		return notIntReply(), false, nil
	}
	count := 0
	if len(args) == 6 {
		if !eqFold(args[4], "COUNT") {
			return syntaxReply(), false, nil
		}
		n, ok := parseIntArg(args[5])
		if !ok {
			return notIntReply(), false, nil
		}
		count = int(n)
	}
	out, err := d.KS.XRange(args[1], start, end, rev, count)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	vals := make([]resp.Value, 0, len(out))
	for _, e := range out {
		vals = append(vals, streamEntryReply(e))
	}
	return resp.Array(vals), false, nil
}

func cmdXTrim(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	if !eqFold(args[2], "MAXLEN") {
		return syntaxReply(), false, nil
	}
	threshold := args[3]
	if threshold == "~" || threshold == "=" {
		return syntaxReply(), false, nil
	}
	maxLen, ok := parseIntArg(threshold)
	if !ok {
		return notIntReply(), false, nil
	}
	n, err := d.KS.XTrim(args[1], int(maxLen))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), n > 0, nil
}
