package keyspace

import (
	"math"
	"sort"
)

// earthRadiusMeters is the sphere radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// GeoPoint is a member's stored coordinate.
type GeoPoint struct {
	Lon, Lat float64
}

// Geo is a member→coordinate table, exposed externally as a sorted-set-like
// structure but internally a plain table on which haversine distance and
// bounding-box filters are computed.
type Geo struct {
	points map[string]GeoPoint
}

func newGeo() *Geo { return &Geo{points: make(map[string]GeoPoint)} }

func (g *Geo) clone() *Geo {
	cp := newGeo()
	for m, p := range g.points {
		cp.points[m] = p
	}
	return cp
}

func asGeo(e *Entry) (*Geo, bool) {
	if e == nil {
		return nil, true
	}
	if e.Kind != KindGeo {
		return nil, false
	}
	return e.Value.(*Geo), true
}

// GeoAdd stores (lon, lat) per member, returning the count of newly added
// members.
func (ks *Keyspace) GeoAdd(key string, points map[string]GeoPoint) (added int, err error) {
	ks.withWrite(key, func(e *Entry, exists bool) {
		var g *Geo
		if exists {
			var ok bool
			g, ok = asGeo(e)
			if !ok {
				err = ErrWrongType
				return
			}
		} else {
			g = newGeo()
			ks.storeLocked(key, &Entry{Kind: KindGeo, Value: g})
		}
		for m, p := range points {
			if _, had := g.points[m]; !had {
				added++
			}
			g.points[m] = p
		}
	})
	return added, err
}

// GeoPos returns the stored coordinate for member, found==false if absent.
func (ks *Keyspace) GeoPos(key, member string) (p GeoPoint, found bool, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		g, ok := asGeo(e)
		if !ok {
			err = ErrWrongType
			return
		}
		p, found = g.points[member]
	})
	return p, found, err
}

// haversineMeters computes the great-circle distance in meters between two
// (lon, lat) points in degrees.
func haversineMeters(a, b GeoPoint) float64 {
	lat1, lat2 := toRadians(a.Lat), toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// GeoUnit converts meters to the requested unit.
type GeoUnit string

const (
	GeoUnitMeters     GeoUnit = "m"
	GeoUnitKilometers GeoUnit = "km"
	GeoUnitMiles      GeoUnit = "mi"
	GeoUnitFeet       GeoUnit = "ft"
)

func (u GeoUnit) fromMeters(m float64) float64 {
	switch u {
	case GeoUnitKilometers:
		return m / 1000
	case GeoUnitMiles:
		return m / 1609.34
	case GeoUnitFeet:
		return m * 3.28084
	default:
		return m
	}
}

func (u GeoUnit) ToMeters(v float64) float64 {
	switch u {
	case GeoUnitKilometers:
		return v * 1000
	case GeoUnitMiles:
		return v * 1609.34
	case GeoUnitFeet:
		return v / 3.28084
	default:
		return v
	}
}

// GeoDist returns the distance between two members in the requested unit.
func (ks *Keyspace) GeoDist(key, m1, m2 string, unit GeoUnit) (dist float64, found bool, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		g, ok := asGeo(e)
		if !ok {
			err = ErrWrongType
			return
		}
		p1, ok1 := g.points[m1]
		p2, ok2 := g.points[m2]
		if !ok1 || !ok2 {
			return
		}
		found = true
		dist = unit.fromMeters(haversineMeters(p1, p2))
	})
	return dist, found, err
}

// GeoSearchResult pairs a member with its distance (in the query's unit)
// from the search origin.
type GeoSearchResult struct {
	Member   string
	DistFrom float64
}

// GeoSearch finds members within radiusMeters of center (BYRADIUS) or
// within a box of width/height meters (BYBOX), pre-filtering with a small-
// angle bounding box before computing exact haversine distances on
// survivors, then sorts ascending/descending and applies an optional count
// limit.
func (ks *Keyspace) GeoSearch(key string, center GeoPoint, byBox bool, radiusM, boxWidthM, boxHeightM float64, unit GeoUnit, count int, desc bool) (out []GeoSearchResult, err error) {
	ks.withRead(key, func(e *Entry, exists bool) {
		if !exists {
			return
		}
		g, ok := asGeo(e)
		if !ok {
			err = ErrWrongType
			return
		}

		halfW, halfH := radiusM, radiusM
		if byBox {
			halfW, halfH = boxWidthM/2, boxHeightM/2
		}
		latDelta := halfH / 111320.0
		lonDelta := halfW / (111320.0 * math.Cos(toRadians(center.Lat)))

		var matched []GeoSearchResult
		for m, p := range g.points {
			if p.Lat < center.Lat-latDelta || p.Lat > center.Lat+latDelta {
				continue
			}
			if p.Lon < center.Lon-lonDelta || p.Lon > center.Lon+lonDelta {
				continue
			}
			d := haversineMeters(center, p)
			if byBox {
				// Refine with an exact local-flat box check now that the
				// candidate has survived the coarse bounding-box prefilter.
				dLat := (p.Lat - center.Lat) * 111320.0
				dLon := (p.Lon - center.Lon) * 111320.0 * math.Cos(toRadians(center.Lat))
				if math.Abs(dLat) > boxHeightM/2 || math.Abs(dLon) > boxWidthM/2 {
					continue
				}
			} else if d > radiusM {
				continue
			}
			matched = append(matched, GeoSearchResult{Member: m, DistFrom: unit.fromMeters(d)})
		}

		sortGeoResults(matched, desc)
		if count > 0 && count < len(matched) {
			matched = matched[:count]
		}
		out = matched
	})
	return out, err
}

func sortGeoResults(r []GeoSearchResult, desc bool) {
	sort.Slice(r, func(i, j int) bool {
		if desc {
			return r[i].DistFrom > r[j].DistFrom
		}
		return r[i].DistFrom < r[j].DistFrom
	})
}
