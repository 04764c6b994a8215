package dispatch

import (
	"hexagondb/internal/resp"
)

func init() {
	register("PFADD", 2, -1, true, false, cmdPFAdd)
	register("PFCOUNT", 2, -1, false, false, cmdPFCount)
	register("PFMERGE", 2, -1, true, false, cmdPFMerge)
}

func cmdPFAdd(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	changed, err := d.KS.PFAdd(args[1], toBytes(args[2:]))
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if changed {
		return resp.Integer(1), true, nil
	}
	return resp.Integer(0), false, nil
}

func cmdPFCount(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	keys := args[1:]
	if len(keys) == 1 {
		n, err := d.KS.PFCount(keys[0])
		if err != nil {
			return keyspaceErrorToResp(err), false, nil
		}
		return resp.Integer(int64(n)), false, nil
	}
	n, err := d.KS.PFCountMerged(keys)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), false, nil
}

func cmdPFMerge(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	if err := d.KS.PFMerge(args[1], args[2:]); err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.OK(), true, nil
}
