package dispatch

import (
	"hexagondb/internal/resp"
)

func init() {
	register("SETBIT", 4, 4, true, false, cmdSetBit)
	register("GETBIT", 3, 3, false, false, cmdGetBit)
	register("BITCOUNT", 2, 4, false, false, cmdBitCount)
	register("BITOP", 4, -1, true, false, cmdBitOp)
	register("BITPOS", 3, 5, false, false, cmdBitPos)
}

func cmdSetBit(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	offset, ok := parseIntArg(args[2])
	if !ok || offset < 0 {
		return resp.Error("ERR bit offset is not an integer or out of range"), false, nil
	}
	val, ok := parseIntArg(args[3])
	if !ok || (val != 0 && val != 1) {
		return resp.Error("ERR bit is not an integer or out of range"), false, nil
	}
	prev, err := d.KS.SetBit(args[1], offset, int(val))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(prev)), true, nil
}

func cmdGetBit(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	offset, ok := parseIntArg(args[2])
	if !ok || offset < 0 {
		return resp.Error("ERR bit offset is not an integer or out of range"), false, nil
	}
	val, err := d.KS.GetBit(args[1], offset)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(val)), false, nil
}

func cmdBitCount(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	hasRange := len(args) == 4
	if len(args) != 2 && len(args) != 4 {
		return syntaxReply(), false, nil
	}
	var start, end int64
	if hasRange {
		var ok1, ok2 bool
		start, ok1 = parseIntArg(args[2])
		end, ok2 = parseIntArg(args[3])
		if !ok1 || !ok2 {
			return notIntReply(), false, nil
		}
	}
	n, err := d.KS.BitCount(args[1], hasRange, int(start), int(end))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), false, nil
}

func cmdBitOp(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	op := args[1]
	switch {
	case eqFold(op, "AND"), eqFold(op, "OR"), eqFold(op, "XOR"), eqFold(op, "NOT"):
	default:
		return syntaxReply(), false, nil
	}
	n, err := d.KS.BitOp(upperOp(op), args[2], args[3:])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), true, nil
}

func upperOp(s string) string {
	switch {
	case eqFold(s, "AND"):
		return "AND"
	case eqFold(s, "OR"):
		return "OR"
	case eqFold(s, "XOR"):
		return "XOR"
	default:
		return "NOT"
	}
}

func cmdBitPos(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	want, ok := parseIntArg(args[2])
	if !ok || (want != 0 && want != 1) {
		return resp.Error("ERR the bit argument must be 1 or 0"), false, nil
	}
	var hasStart, hasEnd bool
	var start, end int64
	if len(args) >= 4 {
		hasStart = true
		start, ok = parseIntArg(args[3])
		if !ok {
			return notIntReply(), false, nil
		}
	}
	if len(args) >= 5 {
		hasEnd = true
		end, ok = parseIntArg(args[4])
		if !ok {
			return notIntReply(), false, nil
		}
	}
	pos, err := d.KS.BitPos(args[1], int(want), hasStart, int(start), hasEnd, int(end))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(pos), false, nil
}
