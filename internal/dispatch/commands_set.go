package dispatch

import (
	"hexagondb/internal/resp"
)

func init() {
	register("SADD", 3, -1, true, false, cmdSAdd)
	register("SREM", 3, -1, true, false, cmdSRem)
	register("SISMEMBER", 3, 3, false, false, cmdSIsMember)
	register("SCARD", 2, 2, false, false, cmdSCard)
	register("SMEMBERS", 2, 2, false, false, cmdSMembers)
	register("SUNION", 2, -1, false, false, cmdSUnion)
	register("SINTER", 2, -1, false, false, cmdSInter)
	register("SDIFF", 2, -1, false, false, cmdSDiff)
	register("SUNIONSTORE", 3, -1, true, false, cmdSUnionStore)
	register("SINTERSTORE", 3, -1, true, false, cmdSInterStore)
	register("SDIFFSTORE", 3, -1, true, false, cmdSDiffStore)
	register("SRANDMEMBER", 2, 3, false, false, cmdSRandMember)
	register("SPOP", 2, 3, true, false, cmdSPop)
}

func cmdSAdd(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.SAdd(args[1], toBytes(args[2:]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), n > 0, nil
}

func cmdSRem(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.SRem(args[1], toBytes(args[2:]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), n > 0, nil
}

func cmdSIsMember(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	yes, err := d.KS.SIsMember(args[1], []byte(args[2]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if yes {
		return resp.Integer(1), false, nil
	}
	return resp.Integer(0), false, nil
}

func cmdSCard(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.SCard(args[1])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), false, nil
}

func cmdSMembers(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	members, err := d.KS.SMembers(args[1])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.BulkStrings(members), false, nil
}

func cmdSUnion(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	members, err := d.KS.SUnion(args[1:])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.BulkStrings(members), false, nil
}

func cmdSInter(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	members, err := d.KS.SInter(args[1:])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.BulkStrings(members), false, nil
}

func cmdSDiff(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	members, err := d.KS.SDiff(args[1:])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.BulkStrings(members), false, nil
}

func cmdSUnionStore(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.SUnionStore(args[1], args[2:])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), true, nil
}

func cmdSInterStore(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.SInterStore(args[1], args[2:])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), true, nil
}

func cmdSDiffStore(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.SDiffStore(args[1], args[2:])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), true, nil
}

func cmdSRandMember(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	count := 1
	hasCount := len(args) == 3
	if hasCount {
		n, ok := parseIntArg(args[2])
		if !ok {
			return notIntReply(), false, nil
		}
		count = int(n)
	}
	picked, err := d.KS.SRandMember(args[1], count)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !hasCount {
		if len(picked) == 0 {
			return resp.NullBulk(), false, nil
		}
		return resp.BulkString(picked[0]), false, nil
	}
	return resp.BulkStrings(picked), false, nil
}

func cmdSPop(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	count := 1
	hasCount := len(args) == 3
	if hasCount {
		n, ok := parseIntArg(args[2])
		if !ok {
			return notIntReply(), false, nil
		}
		count = int(n)
	}
	popped, err := d.KS.SPop(args[1], count)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !hasCount {
		if len(popped) == 0 {
			return resp.NullBulk(), false, nil
		}
		return resp.BulkString(popped[0]), true, nil
	}
	return resp.BulkStrings(popped), len(popped) > 0, nil
}
