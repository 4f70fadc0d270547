package geo

import (
	"math"
	"testing"
)

// unitSquare is a ~1.1km square zone used across the tests.
func unitSquare() Polygon {
	return Polygon{
		ID:   1,
		Code: "Z-001",
		Ring: []Vertex{
			{31.900, 35.200},
			{31.900, 35.210},
			{31.910, 35.210},
			{31.910, 35.200},
		},
	}
}

const degPerMeterLat = 1.0 / 111320.0

func TestHaversine(t *testing.T) {
	// One degree of latitude is ~111.2 km.
	d := Haversine(31.0, 35.0, 32.0, 35.0)
	if d < 110000 || d > 112500 {
		t.Errorf("1 degree latitude = %.0fm, want ~111200m", d)
	}

	if d := Haversine(31.9, 35.2, 31.9, 35.2); d != 0 {
		t.Errorf("zero distance = %v, want 0", d)
	}
}

func TestValidateContained(t *testing.T) {
	th := Thresholds{ToleranceDegrees: 0.0003, WarningMeters: 100, HardRejectMeters: 500}
	out := Validate(Point{Lat: 31.905, Lon: 35.205}, []Polygon{unitSquare()}, th)

	if out.Decision != Accepted {
		t.Fatalf("decision = %v, want accepted", out.Decision)
	}
	if out.DistanceMeters != 0 {
		t.Errorf("distance = %v, want 0", out.DistanceMeters)
	}
	if out.MatchedZoneID != 1 {
		t.Errorf("matched zone = %d, want 1", out.MatchedZoneID)
	}
}

func TestValidateBufferTolerance(t *testing.T) {
	// ~15m south of the southern edge: outside the raw ring, inside the buffer.
	pt := Point{Lat: 31.900 - 15*degPerMeterLat, Lon: 35.205}

	out := Validate(pt, []Polygon{unitSquare()}, Thresholds{ToleranceDegrees: 0.0003, WarningMeters: 100, HardRejectMeters: 500})
	if out.Decision != Accepted || out.DistanceMeters != 0 {
		t.Errorf("buffered point: decision=%v distance=%v, want accepted at 0m", out.Decision, out.DistanceMeters)
	}

	// With no tolerance the same point is outside the ring. Its distance is
	// measured to the zone anchor (nearest corner, ~470m away), which puts
	// it in the warning band rather than the borderline accept band.
	out = Validate(pt, []Polygon{unitSquare()}, Thresholds{WarningMeters: 100, HardRejectMeters: 500})
	if out.Decision != AcceptedWithWarning {
		t.Errorf("no-tolerance point: decision=%v, want accepted_with_warning", out.Decision)
	}
}

func TestValidateWarningBand(t *testing.T) {
	// ~150m south of the southwest corner.
	pt := Point{Lat: 31.900 - 150*degPerMeterLat, Lon: 35.200}
	th := Thresholds{ToleranceDegrees: 0.0003, WarningMeters: 100, HardRejectMeters: 500}

	out := Validate(pt, []Polygon{unitSquare()}, th)
	if out.Decision != AcceptedWithWarning {
		t.Fatalf("decision = %v, want accepted_with_warning", out.Decision)
	}
	if math.Abs(out.DistanceMeters-150) > 10 {
		t.Errorf("distance = %.1fm, want ~150m", out.DistanceMeters)
	}
}

func TestValidateHardReject(t *testing.T) {
	// ~600m south of the southwest corner.
	pt := Point{Lat: 31.900 - 600*degPerMeterLat, Lon: 35.200}
	th := Thresholds{ToleranceDegrees: 0.0003, WarningMeters: 100, HardRejectMeters: 500}

	out := Validate(pt, []Polygon{unitSquare()}, th)
	if out.Decision != Rejected {
		t.Fatalf("decision = %v, want rejected", out.Decision)
	}
	if out.MatchedZoneID != 1 {
		t.Errorf("matched zone = %d, want nearest zone 1", out.MatchedZoneID)
	}
}

func TestValidateAccuracyRelaxation(t *testing.T) {
	// ~150m out with 200m reported accuracy: relaxed warning band accepts it.
	pt := Point{Lat: 31.900 - 150*degPerMeterLat, Lon: 35.200, AccuracyMeters: 200}
	th := Thresholds{WarningMeters: 100, HardRejectMeters: 500}

	out := Validate(pt, []Polygon{unitSquare()}, th)
	if out.Decision != Accepted || !out.Borderline {
		t.Errorf("decision=%v borderline=%v, want borderline accept", out.Decision, out.Borderline)
	}

	// ~600m out with 200m accuracy: relaxed hard band keeps it recorded with
	// a warning instead of rejecting.
	pt = Point{Lat: 31.900 - 600*degPerMeterLat, Lon: 35.200, AccuracyMeters: 200}
	out = Validate(pt, []Polygon{unitSquare()}, th)
	if out.Decision != AcceptedWithWarning {
		t.Errorf("decision = %v, want accepted_with_warning", out.Decision)
	}

	// Accuracy beyond the hard-reject distance grants no relaxation at all.
	pt = Point{Lat: 31.900 - 600*degPerMeterLat, Lon: 35.200, AccuracyMeters: 10000}
	out = Validate(pt, []Polygon{unitSquare()}, th)
	if out.Decision != Rejected {
		t.Errorf("decision = %v, want rejected for absurd accuracy", out.Decision)
	}
}

func TestValidateOverlappingZonesStableTieBreak(t *testing.T) {
	a := unitSquare()
	b := unitSquare()
	b.ID = 2
	b.Code = "Z-002"

	pt := Point{Lat: 31.905, Lon: 35.205}
	th := Thresholds{ToleranceDegrees: 0.0003, WarningMeters: 100, HardRejectMeters: 500}

	for i := 0; i < 10; i++ {
		out := Validate(pt, []Polygon{a, b}, th)
		if out.MatchedZoneID != 1 {
			t.Fatalf("run %d: matched zone %d, want first containing zone 1", i, out.MatchedZoneID)
		}
	}
}

func TestValidateNoCandidates(t *testing.T) {
	out := Validate(Point{Lat: 31.905, Lon: 35.205}, nil, Thresholds{WarningMeters: 100, HardRejectMeters: 500})
	if out.Decision != Rejected {
		t.Errorf("decision = %v, want rejected with no candidate zones", out.Decision)
	}
	if out.MatchedZoneID != 0 {
		t.Errorf("matched zone = %d, want 0", out.MatchedZoneID)
	}
}

func TestValidateDeterminism(t *testing.T) {
	pt := Point{Lat: 31.9041, Lon: 35.2077, AccuracyMeters: 42}
	th := Thresholds{ToleranceDegrees: 0.0003, WarningMeters: 100, HardRejectMeters: 500}
	zones := []Polygon{unitSquare()}

	first := Validate(pt, zones, th)
	for i := 0; i < 100; i++ {
		if got := Validate(pt, zones, th); got != first {
			t.Fatalf("run %d: outcome %+v != first %+v", i, got, first)
		}
	}
}

func TestValidCoordinate(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     bool
	}{
		{31.9, 35.2, true},
		{90, 180, true},
		{-90, -180, true},
		{91, 35.2, false},
		{31.9, 181, false},
		{-91, 0, false},
	}
	for _, c := range cases {
		if got := ValidCoordinate(c.lat, c.lon); got != c.want {
			t.Errorf("ValidCoordinate(%v, %v) = %v, want %v", c.lat, c.lon, got, c.want)
		}
	}
}

func TestCentroidSkipsClosingVertex(t *testing.T) {
	open := unitSquare()
	closed := unitSquare()
	closed.Ring = append(closed.Ring, closed.Ring[0])

	co, cc := open.Centroid(), closed.Centroid()
	if math.Abs(co.Lat-cc.Lat) > 1e-9 || math.Abs(co.Lon-cc.Lon) > 1e-9 {
		t.Errorf("open centroid %+v != closed centroid %+v", co, cc)
	}
}
