package dispatch

import (
	"hexagondb/internal/keyspace"
	"hexagondb/internal/resp"
)

func init() {
	register("GEOADD", 5, -1, true, false, cmdGeoAdd)
	register("GEODIST", 4, 5, false, false, cmdGeoDist)
	register("GEOPOS", 2, -1, false, false, cmdGeoPos)
	register("GEOSEARCH", 7, -1, false, false, cmdGeoSearch)
}

func cmdGeoAdd(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	rest := args[2:]
	if len(rest)%3 != 0 {
		return wrongArgs("geoadd"), false, nil
	}
	points := make(map[string]keyspace.GeoPoint, len(rest)/3)
	for i := 0; i < len(rest); i += 3 {
		lon, ok1 := parseFloatArg(rest[i])
		lat, ok2 := parseFloatArg(rest[i+1])
		if !ok1 || !ok2 {
			return resp.Error("ERR value is not a valid float"), false, nil
		}
		points[rest[i+2]] = keyspace.GeoPoint{Lon: lon, Lat: lat}
	}
	n, err := d.KS.GeoAdd(args[1], points)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	return resp.Integer(int64(n)), true, nil
}

func parseGeoUnit(s string) (keyspace.GeoUnit, bool) {
	switch {
	case eqFold(s, "m"):
		return keyspace.GeoUnitMeters, true
	case eqFold(s, "km"):
		return keyspace.GeoUnitKilometers, true
	case eqFold(s, "mi"):
		return keyspace.GeoUnitMiles, true
	case eqFold(s, "ft"):
		return keyspace.GeoUnitFeet, true
	default:
		return "", false
	}
}

func cmdGeoDist(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	unit := keyspace.GeoUnitMeters
	if len(args) == 5 {
		var ok bool
		unit, ok = parseGeoUnit(args[4])
		if !ok {
			return syntaxReply(), false, nil
		}
	}
	dist, found, err := d.KS.GeoDist(args[1], args[2], args[3], unit)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	if !found {
		return resp.NullBulk(), false, nil
	}
	return resp.BulkString(formatFloat(dist)), false, nil
}

func cmdGeoPos(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	vals := make([]resp.Value, 0, len(args)-2)
	for _, member := range args[2:] {
		p, found, err := d.KS.GeoPos(args[1], member)
		if err != nil {
			return keyspaceErrorToResp(err), false, nil
		}
		if !found {
			vals = append(vals, resp.NullArray())
			continue
		}
		vals = append(vals, resp.Array([]resp.Value{
			resp.BulkString(formatFloat(p.Lon)),
			resp.BulkString(formatFloat(p.Lat)),
		}))
	}
	return resp.Array(vals), false, nil
}

// cmdGeoSearch supports FROMLONLAT lon lat or FROMMEMBER member as the
// center, combined with BYRADIUS r unit | BYBOX w h unit, plus optional
// [ASC|DESC] [COUNT n].
func cmdGeoSearch(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	var center keyspace.GeoPoint
	var i int
	switch {
	case eqFold(args[2], "FROMLONLAT"):
		if len(args) < 5 {
			return syntaxReply(), false, nil
		}
		lon, ok1 := parseFloatArg(args[3])
		lat, ok2 := parseFloatArg(args[4])
		if !ok1 || !ok2 {
			return resp.Error("ERR value is not a valid float"), false, nil
		}
		center = keyspace.GeoPoint{Lon: lon, Lat: lat}
		i = 5
	case eqFold(args[2], "FROMMEMBER"):
		if len(args) < 4 {
			return syntaxReply(), false, nil
		}
		p, found, err := d.KS.GeoPos(args[1], args[3])
		if err != nil {
			return keyspaceErrorToResp(err), false, nil
		}
		if !found {
			return resp.Error("ERR could not decode requested zset member"), false, nil
		}
		center = p
		i = 4
	default:
		return syntaxReply(), false, nil
	}

	var byBox bool
	var radiusM, widthM, heightM float64
	var unit keyspace.GeoUnit
	switch {
	case i < len(args) && eqFold(args[i], "BYRADIUS") && i+2 < len(args):
		r, ok := parseFloatArg(args[i+1])
		u, uok := parseGeoUnit(args[i+2])
		if !ok || !uok {
			return syntaxReply(), false, nil
		}
		radiusM = u.ToMeters(r)
		unit = u
		i += 3
	case i < len(args) && eqFold(args[i], "BYBOX") && i+3 < len(args):
		w, ok1 := parseFloatArg(args[i+1])
		h, ok2 := parseFloatArg(args[i+2])
		u, uok := parseGeoUnit(args[i+3])
		if !ok1 || !ok2 || !uok {
			return syntaxReply(), false, nil
		}
		byBox = true
		widthM, heightM = u.ToMeters(w), u.ToMeters(h)
		unit = u
		i += 4
	default:
		return syntaxReply(), false, nil
	}

	desc := false
	count := 0
	for i < len(args) {
		switch {
		case eqFold(args[i], "ASC"):
			desc = false
		case eqFold(args[i], "DESC"):
			desc = true
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
		i++
	}

	out, err := d.KS.GeoSearch(args[1], center, byBox, radiusM, widthM, heightM, unit, count, desc)
	if err != nil {
		return keyspaceErrorToResp(err), false, nil
	}
	vals := make([]resp.Value, 0, len(out))
	for _, r := range out {
		vals = append(vals, resp.Array([]resp.Value{
			resp.BulkString(r.Member),
			resp.BulkString(formatFloat(r.DistFrom)),
		}))
	}
	return resp.Array(vals), false, nil
}
