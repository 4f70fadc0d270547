// Package zones provides the read-only zone index: an immutable snapshot of
// active authorization polygons handed to the geofence engine.
package zones

import (
	"fmt"
	"sort"

	"github.com/nadim/fieldsync/internal/geo"
)

// Zone is one authorization zone as stored by the zone-management side.
type Zone struct {
	ID       int64        `json:"id"`
	Code     string       `json:"code"`
	Name     string       `json:"name"`
	District string       `json:"district,omitempty"`
	Ring     []geo.Vertex `json:"ring"`
	Version  int          `json:"version"`
	Active   bool         `json:"active"`
}

// Polygon converts the zone to the engine's polygon form.
func (z Zone) Polygon() geo.Polygon {
	return geo.Polygon{ID: z.ID, Code: z.Code, Ring: z.Ring}
}

// Index is an immutable snapshot of active zones. Iteration order is always
// ascending zone id, which the geofence engine relies on for its documented
// overlapping-zone tie-break. Safe for concurrent use.
type Index struct {
	ordered []Zone
	byID    map[int64]Zone
	byCode  map[string]Zone
}

// NewIndex builds an index from the given zones, keeping only active ones
// with a usable ring (3+ vertices). Input order does not matter.
func NewIndex(all []Zone) *Index {
	idx := &Index{
		byID:   make(map[int64]Zone),
		byCode: make(map[string]Zone),
	}
	for _, z := range all {
		if !z.Active || len(z.Ring) < 3 {
			continue
		}
		idx.ordered = append(idx.ordered, z)
		idx.byID[z.ID] = z
		idx.byCode[z.Code] = z
	}
	sort.Slice(idx.ordered, func(i, j int) bool { return idx.ordered[i].ID < idx.ordered[j].ID })
	return idx
}

// Len returns the number of indexed zones.
func (idx *Index) Len() int { return len(idx.ordered) }

// ByID returns the zone with the given id.
func (idx *Index) ByID(id int64) (Zone, bool) {
	z, ok := idx.byID[id]
	return z, ok
}

// ByCode returns the zone with the given code.
func (idx *Index) ByCode(code string) (Zone, bool) {
	z, ok := idx.byCode[code]
	return z, ok
}

// All returns every indexed zone in ascending id order. The returned slice
// is shared; callers must not mutate it.
func (idx *Index) All() []Zone {
	return idx.ordered
}

// Polygons returns all zone polygons in ascending id order.
func (idx *Index) Polygons() []geo.Polygon {
	out := make([]geo.Polygon, len(idx.ordered))
	for i, z := range idx.ordered {
		out[i] = z.Polygon()
	}
	return out
}

// Candidates returns the polygons to validate a point against. When zoneID
// is non-zero only that zone is a candidate (a task pinned to a zone is
// validated against its own zone); otherwise every active zone is, in
// ascending id order. Unknown zone ids yield an error rather than a silent
// empty candidate set.
func (idx *Index) Candidates(zoneID int64) ([]geo.Polygon, error) {
	if zoneID == 0 {
		return idx.Polygons(), nil
	}
	z, ok := idx.byID[zoneID]
	if !ok {
		return nil, fmt.Errorf("zone %d not in index", zoneID)
	}
	return []geo.Polygon{z.Polygon()}, nil
}

// Near returns polygons whose anchor lies within radiusMeters of the point,
// in ascending id order. Used to trim candidate sets for dense
// municipalities; an empty result means no zone is anywhere close.
func (idx *Index) Near(lat, lon, radiusMeters float64) []geo.Polygon {
	var out []geo.Polygon
	for _, z := range idx.ordered {
		p := z.Polygon()
		if p.AnchorDistanceMeters(lat, lon) <= radiusMeters {
			out = append(out, p)
		}
	}
	return out
}
