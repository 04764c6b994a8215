package dispatch

import (
	"hexagondb/internal/resp"
)

func init() {
	register("LPUSH", 3, -1, true, false, cmdLPush)
	register("RPUSH", 3, -1, true, false, cmdRPush)
	register("LPOP", 2, 3, true, false, cmdLPop)
	register("RPOP", 2, 3, true, false, cmdRPop)
	register("LLEN", 2, 2, false, false, cmdLLen)
	register("LINDEX", 3, 3, false, false, cmdLIndex)
	register("LSET", 4, 4, true, false, cmdLSet)
	register("LRANGE", 4, 4, false, false, cmdLRange)
	register("LREM", 4, 4, true, false, cmdLRem)
	register("LMOVE", 5, 5, true, false, cmdLMove)
	register("LINSERT", 5, 5, true, false, cmdLInsert)
}

func cmdLPush(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.LPush(args[1], toBytes(args[2:]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), true, nil
}

func cmdRPush(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.RPush(args[1], toBytes(args[2:]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), true, nil
}

func cmdLPop(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return popReply(d, args, true)
}

func cmdRPop(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return popReply(d, args, false)
}

func popReply(d *Dispatcher, args []string, head bool) (resp.Value, bool, []string) {
	count := 1
	hasCount := len(args) == 3
	if hasCount {
		n, ok := parseIntArg(args[2])
		if !ok {
			return notIntReply(), false, nil
		}
		count = int(n)
	}
	var popped [][]byte
	var found bool
	var err error
	if head {
		popped, found, err = d.KS.LPop(args[1], count)
	} else {
		popped, found, err = d.KS.RPop(args[1], count)
	}
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !found {
		if hasCount {
			return resp.NullArray(), false, nil
		}
		return resp.NullBulk(), false, nil
	}
	if hasCount {
		return resp.BulkByteSlices(popped), len(popped) > 0, nil
	}
	if len(popped) == 0 {
		return resp.NullBulk(), false, nil
	}
	return resp.Bulk(popped[0]), true, nil
}

func cmdLLen(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.LLen(args[1])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), false, nil
}

func cmdLIndex(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	idx, ok := parseIntArg(args[2])
	if !ok {
		return notIntReply(), false, nil
	}
	val, found, err := d.KS.LIndex(args[1], int(idx))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !found {
		return resp.NullBulk(), false, nil
	}
	return resp.Bulk(val), false, nil
}

func cmdLSet(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	idx, ok := parseIntArg(args[2])
	if !ok {
		return notIntReply(), false, nil
	}
	if err := d.KS.LSet(args[1], int(idx), []byte(args[3])); err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.OK(), true, nil
}

func cmdLRange(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	start, ok1 := parseIntArg(args[2])
	stop, ok2 := parseIntArg(args[3])
	if !ok1 || !ok2 {
		return notIntReply(), false, nil
	}
	out, err := d.KS.LRange(args[1], int(start), int(stop))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.BulkByteSlices(out), false, nil
}

func cmdLRem(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	count, ok := parseIntArg(args[2])
	if !ok {
		return notIntReply(), false, nil
	}
	n, err := d.KS.LRem(args[1], int(count), []byte(args[3]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), n > 0, nil
}

func cmdLMove(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	fromLeft, ok1 := parseSide(args[3])
	toLeft, ok2 := parseSide(args[4])
	if !ok1 || !ok2 {
		return syntaxReply(), false, nil
	}
	val, moved, err := d.KS.LMove(args[1], args[2], fromLeft, toLeft)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !moved {
		return resp.NullBulk(), false, nil
	}
	return resp.Bulk(val), true, nil
}

func cmdLInsert(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	before, ok := parseBeforeAfter(args[2])
	if !ok {
		return syntaxReply(), false, nil
	}
	n, err := d.KS.LInsert(args[1], before, []byte(args[3]), []byte(args[4]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), n > 0, nil
}

func parseBeforeAfter(s string) (before bool, ok bool) {
	switch {
	case eqFold(s, "BEFORE"):
		return true, true
	case eqFold(s, "AFTER"):
		return false, true
	default:
		return false, false
	}
}

func parseSide(s string) (left bool, ok bool) {
	switch {
	case eqFold(s, "LEFT"):
		return true, true
	case eqFold(s, "RIGHT"):
		return false, true
	default:
		return false, false
	}
}
