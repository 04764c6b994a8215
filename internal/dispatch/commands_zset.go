package dispatch

import (
	"hexagondb/internal/keyspace"
	"hexagondb/internal/resp"
)

func init() {
	register("ZADD", 4, -1, true, false, cmdZAdd)
	register("ZSCORE", 3, 3, false, false, cmdZScore)
	register("ZINCRBY", 4, 4, true, false, cmdZIncrBy)
	register("ZREM", 3, -1, true, false, cmdZRem)
	register("ZCARD", 2, 2, false, false, cmdZCard)
	register("ZRANGE", 4, -1, false, false, cmdZRange)
	register("ZREVRANGE", 4, -1, false, false, cmdZRevRange)
	register("ZRANGEBYSCORE", 4, -1, false, false, cmdZRangeByScore)
	register("ZREVRANGEBYSCORE", 4, -1, false, false, cmdZRevRangeByScore)
	register("ZRANK", 3, 3, false, false, cmdZRank)
	register("ZREVRANK", 3, 3, false, false, cmdZRevRank)
	register("ZUNIONSTORE", 4, -1, true, false, cmdZUnionStore)
	register("ZINTERSTORE", 4, -1, true, false, cmdZInterStore)
}

func cmdZAdd(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	i := 2
	var opts keyspace.ZAddOpts
	for i < len(args) {
		switch {
		case eqFold(args[i], "NX"):
			opts.NX = true
		case eqFold(args[i], "XX"):
			opts.XX = true
		case eqFold(args[i], "CH"):
			opts.CH = true
		case eqFold(args[i], "INCR"):
			opts.Incr = true
		default:
			goto pairs
		}
		i++
	}
pairs:
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return wrongArgs("zadd"), false, nil
	}
	if opts.Incr && len(rest) != 2 {
		return syntaxReply(), false, nil
	}
	pairs := make([]keyspace.ZMember, 0, len(rest)/2)
	for j := 0; j < len(rest); j += 2 {
		score, ok := parseFloatArg(rest[j])
		if !ok {
			return resp.Error("ERR value is not a valid float"), false, nil
		}
		pairs = append(pairs, keyspace.ZMember{Score: score, Member: rest[j+1]})
	}
	added, incrResult, hasIncr, err := d.KS.ZAdd(args[1], pairs, opts)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if hasIncr {
		return resp.BulkString(formatFloat(incrResult)), true, nil
	}
	return resp.Integer(int64(added)), true, nil
}

func cmdZScore(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	score, found, err := d.KS.ZScore(args[1], args[2])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !found {
		return resp.NullBulk(), false, nil
	}
	return resp.BulkString(formatFloat(score)), false, nil
}

func cmdZIncrBy(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	delta, ok := parseFloatArg(args[2])
	if !ok {
		return resp.Error("ERR value is not a valid float"), false, nil
	}
	result, err := d.KS.ZIncrBy(args[1], delta, args[3])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.BulkString(formatFloat(result)), true, nil
}

func cmdZRem(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.ZRem(args[1], args[2:])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), n > 0, nil
}

func cmdZCard(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	n, err := d.KS.ZCard(args[1])
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), false, nil
}

func zRangeReply(members []keyspace.ZRangeMember, withScores bool) resp.Value {
	var flat []string
	for _, m := range members {
		flat = append(flat, m.Member)
		if withScores {
			flat = append(flat, formatFloat(m.Score))
		}
	}
	return resp.BulkStrings(flat)
}

func hasWithScores(args []string) bool {
	for _, a := range args {
		if eqFold(a, "WITHSCORES") {
			return true
		}
	}
	return false
}

func cmdZRange(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return zRangeByRank(d, args, false)
}

func cmdZRevRange(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return zRangeByRank(d, args, true)
}

func zRangeByRank(d *Dispatcher, args []string, rev bool) (resp.Value, bool, []string) {
	start, ok1 := parseIntArg(args[2])
	stop, ok2 := parseIntArg(args[3])
	if !ok1 || !ok2 {
		return notIntReply(), false, nil
	}
	out, err := d.KS.ZRange(args[1], int(start), int(stop), rev)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return zRangeReply(out, hasWithScores(args[4:])), false, nil
}

func parseScoreBound(s string) (val float64, exclusive bool, ok bool) {
	if eqFold(s, "-inf") {
		return mathInfNeg(), false, true
	}
	if eqFold(s, "+inf") || eqFold(s, "inf") {
		return mathInfPos(), false, true
	}
	if len(s) > 0 && s[0] == '(' {
		f, pok := parseFloatArg(s[1:])
		return f, true, pok
	}
	f, pok := parseFloatArg(s)
	return f, false, pok
}

func cmdZRangeByScore(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return zRangeByScore(d, args, false)
}

func cmdZRevRangeByScore(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return zRangeByScore(d, args, true)
}

func zRangeByScore(d *Dispatcher, args []string, rev bool) (resp.Value, bool, []string) {
	minArg, maxArg := args[2], args[3]
	if rev {
		minArg, maxArg = args[3], args[2]
	}
	min, minExcl, ok1 := parseScoreBound(minArg)
	max, maxExcl, ok2 := parseScoreBound(maxArg)
	if !ok1 || !ok2 {
		return resp.Error("ERR min or max is not a float"), false, nil
	}
	r := keyspace.ScoreRange{Min: min, Max: max, MinExclusive: minExcl, MaxExclusive: maxExcl}
	withScores := false
	limit, offset := -1, 0
	for i := 4; i < len(args); i++ {
		switch {
		case eqFold(args[i], "WITHSCORES"):
			withScores = true
		case eqFold(args[i], "LIMIT") && i+2 < len(args):
			o, ok := parseIntArg(args[i+1])
			l, ok2 := parseIntArg(args[i+2])
			if !ok || !ok2 {
				return notIntReply(), false, nil
			}
			offset, limit = int(o), int(l)
			i += 2
		default:
			return syntaxReply(), false, nil
		}
	}
	out, err := d.KS.ZRangeByScore(args[1], r, rev, limit, offset)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return zRangeReply(out, withScores), false, nil
}

func cmdZRank(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return zRank(d, args, false)
}

func cmdZRevRank(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return zRank(d, args, true)
}

func zRank(d *Dispatcher, args []string, rev bool) (resp.Value, bool, []string) {
	rank, found, err := d.KS.ZRank(args[1], args[2], rev)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !found {
		return resp.NullBulk(), false, nil
	}
	return resp.Integer(int64(rank)), false, nil
}

func parseWeightsAndAgg(args []string) (keys []string, weights []float64, agg keyspace.Aggregate, ok bool) {
	numKeys, pok := parseIntArg(args[2])
	if !pok || int(numKeys) < 0 || 3+int(numKeys) > len(args) {
		return nil, nil, 0, false
	}
	n := int(numKeys)
	keys = args[3 : 3+n]
	agg = keyspace.AggregateSum
	i := 3 + n
	for i < len(args) {
		switch {
		case eqFold(args[i], "WEIGHTS") && i+n < len(args):
			weights = make([]float64, n)
			for j := 0; j < n; j++ {
				w, wok := parseFloatArg(args[i+1+j])
				if !wok {
					return nil, nil, 0, false
				}
				weights[j] = w
			}
			i += n + 1
		case eqFold(args[i], "AGGREGATE") && i+1 < len(args):
			switch {
			case eqFold(args[i+1], "SUM"):
				agg = keyspace.AggregateSum
			case eqFold(args[i+1], "MIN"):
				agg = keyspace.AggregateMin
			case eqFold(args[i+1], "MAX"):
				agg = keyspace.AggregateMax
			default:
				return nil, nil, 0, false
			}
			i += 2
		default:
			return nil, nil, 0, false
		}
	}
	return keys, weights, agg, true
}

func cmdZUnionStore(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	keys, weights, agg, ok := parseWeightsAndAgg(args)
	if !ok {
		return syntaxReply(), false, nil
	}
	n, err := d.KS.ZUnionStore(args[1], keys, weights, agg)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), true, nil
}

func cmdZInterStore(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	keys, weights, agg, ok := parseWeightsAndAgg(args)
	if !ok {
		return syntaxReply(), false, nil
	}
	n, err := d.KS.ZInterStore(args[1], keys, weights, agg)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), true, nil
}
