// Package geo implements the geofence decision procedure: point-in-polygon
// containment with a buffer tolerance, haversine distance, and threshold
// classification of reported worker locations against authorized zones.
//
// Everything here is pure and stateless; identical inputs always produce
// identical outcomes, so the package is safe for unrestricted concurrent use.
package geo

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6371000.0

// Point is a reported GPS location in WGS84 degrees.
type Point struct {
	Lat float64
	Lon float64
	// AccuracyMeters is the device-reported GPS uncertainty.
	// Zero or negative means not reported.
	AccuracyMeters float64
}

// Vertex is one polygon ring coordinate.
type Vertex struct {
	Lat float64
	Lon float64
}

// Polygon is an authorization zone boundary: an ordered ring of vertices,
// implicitly closed (the last vertex connects back to the first). Polygons
// are immutable per query.
type Polygon struct {
	ID   int64
	Code string
	Ring []Vertex
}

// Decision classifies a reported location against the candidate zones.
type Decision int

const (
	// Accepted means the point is inside a zone, or close enough that no
	// review is needed.
	Accepted Decision = iota
	// AcceptedWithWarning means the action is recorded but flagged for
	// supervisor review.
	AcceptedWithWarning
	// Rejected means the point is too far from every candidate zone.
	Rejected
)

// String returns the lowercase decision name used in results and logs.
func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case AcceptedWithWarning:
		return "accepted_with_warning"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Outcome is the result of validating one point.
type Outcome struct {
	Decision Decision
	// MatchedZoneID is the containing zone, or for non-contained points the
	// nearest candidate. Zero when there were no candidates.
	MatchedZoneID int64
	// DistanceMeters is 0 when contained, otherwise the haversine distance
	// to the nearest zone anchor.
	DistanceMeters float64
	// Borderline is set when the point was outside every ring but within
	// the warning distance. Recorded internally, not surfaced to callers as
	// a warning.
	Borderline bool
}

// Thresholds parameterizes classification. Values come from configuration;
// the engine never hardcodes them.
type Thresholds struct {
	// ToleranceDegrees is the containment buffer (~0.0003 ≈ 30 m) applied
	// so GPS noise does not reject points genuinely inside a zone.
	ToleranceDegrees float64
	// WarningMeters and HardRejectMeters bound the accept / warn / reject
	// bands for non-contained points.
	WarningMeters    float64
	HardRejectMeters float64
}

// Haversine returns the great-circle distance in meters between two
// coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// Centroid returns the arithmetic mean of the ring vertices. Good enough as
// a representative anchor for municipal-scale zones.
func (p Polygon) Centroid() Vertex {
	if len(p.Ring) == 0 {
		return Vertex{}
	}
	var lat, lon float64
	n := 0
	for i, v := range p.Ring {
		// Skip an explicit closing vertex so it isn't counted twice.
		if i == len(p.Ring)-1 && len(p.Ring) > 1 && v == p.Ring[0] {
			break
		}
		lat += v.Lat
		lon += v.Lon
		n++
	}
	return Vertex{Lat: lat / float64(n), Lon: lon / float64(n)}
}

// contains runs a ray-casting test of (lat, lon) against the ring.
func (p Polygon) contains(lat, lon float64) bool {
	n := len(p.Ring)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := p.Ring[i], p.Ring[j]
		if (vi.Lat > lat) != (vj.Lat > lat) {
			x := (vj.Lon-vi.Lon)*(lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
			if lon < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// Contains reports whether the point lies inside the ring with the buffer
// tolerance applied: the raw point is tested first, then the point nudged
// toward the ring centroid by tolerance degrees on each axis, so a point a
// few dozen meters outside the boundary from GPS jitter still counts as
// inside.
func (p Polygon) Contains(lat, lon, toleranceDegrees float64) bool {
	if p.contains(lat, lon) {
		return true
	}
	if toleranceDegrees <= 0 {
		return false
	}
	c := p.Centroid()
	bLat := lat + math.Copysign(toleranceDegrees, c.Lat-lat)
	bLon := lon + math.Copysign(toleranceDegrees, c.Lon-lon)
	return p.contains(bLat, bLon)
}

// AnchorDistanceMeters returns the distance from the point to the polygon's
// representative anchor: the minimum of the centroid distance and the
// nearest-vertex distance.
func (p Polygon) AnchorDistanceMeters(lat, lon float64) float64 {
	c := p.Centroid()
	min := Haversine(lat, lon, c.Lat, c.Lon)
	for _, v := range p.Ring {
		if d := Haversine(lat, lon, v.Lat, v.Lon); d < min {
			min = d
		}
	}
	return min
}

// Validate classifies a reported point against candidate zones.
//
// Zones are evaluated in the order given; the first containing zone wins, so
// callers must supply a stable ordering (ZoneIndex hands out zones in
// ascending id order) to keep overlapping-zone tie-breaks deterministic.
//
// When the point reports an accuracy, the warning and hard-reject distances
// are relaxed by that amount, except that an accuracy beyond the hard-reject
// distance itself is treated as unusable and grants no relaxation at all.
func Validate(pt Point, zones []Polygon, th Thresholds) Outcome {
	for _, z := range zones {
		if z.Contains(pt.Lat, pt.Lon, th.ToleranceDegrees) {
			return Outcome{Decision: Accepted, MatchedZoneID: z.ID, DistanceMeters: 0}
		}
	}

	if len(zones) == 0 {
		return Outcome{Decision: Rejected}
	}

	nearest := zones[0]
	minDist := nearest.AnchorDistanceMeters(pt.Lat, pt.Lon)
	for _, z := range zones[1:] {
		if d := z.AnchorDistanceMeters(pt.Lat, pt.Lon); d < minDist {
			minDist = d
			nearest = z
		}
	}

	warn, hard := th.WarningMeters, th.HardRejectMeters
	if acc := pt.AccuracyMeters; acc > 0 && acc <= th.HardRejectMeters {
		warn += acc
		hard += acc
	}

	out := Outcome{MatchedZoneID: nearest.ID, DistanceMeters: minDist}
	switch {
	case minDist <= warn:
		out.Decision = Accepted
		out.Borderline = true
	case minDist <= hard:
		out.Decision = AcceptedWithWarning
	default:
		out.Decision = Rejected
	}
	return out
}

// ValidCoordinate reports whether lat/lon are inside the WGS84 value range.
func ValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
