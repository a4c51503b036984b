package domain

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	sfgeom "github.com/peterstace/simplefeatures/geom"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geom/xy"
)

// Point is a planar coordinate in the source projection.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Geom returns p as a go-geom point.
func (p Point) Geom() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.X, p.Y})
}

// PointFromGeom extracts a Point from a go-geom point geometry.
func PointFromGeom(g geom.T) (Point, error) {
	pt, ok := g.(*geom.Point)
	if !ok {
		return Point{}, fmt.Errorf("expected point geometry, got %T", g)
	}
	if len(pt.FlatCoords()) < 2 {
		return Point{}, errors.New("empty point geometry")
	}
	return Point{X: pt.X(), Y: pt.Y()}, nil
}

// Segment is a straight boundary edge between two points.
type Segment struct {
	A, B Point
}

// SectorFeature is one fine-grained source polygon with its dissolve keys.
type SectorFeature struct {
	Code     MunicipalityCode
	Region   string
	Geometry geom.T // *geom.Polygon or *geom.MultiPolygon
}

// GeometryRecord is a dissolved municipality boundary and its centroid.
type GeometryRecord struct {
	Code     MunicipalityCode
	Boundary *geom.MultiPolygon
	Centroid Point
}

// RegionRecord is a dissolved region used for background outlines.
type RegionRecord struct {
	Name     string
	Boundary *geom.MultiPolygon
	// Outline holds the ring edges of Boundary.
	Outline []Segment
}

// Geometry is the dissolved output of a geometry source.
type Geometry struct {
	Municipalities []GeometryRecord
	Regions        []RegionRecord
}

// Dissolve merges sector features into one record per municipality code and
// one per region name. The member polygons of each key are unioned, so shared
// sector edges disappear from the boundary. Records are ordered by code and by
// region name.
func Dissolve(features []SectorFeature) (Geometry, error) {
	byCode := make(map[MunicipalityCode][]*geom.Polygon)
	byRegion := make(map[string][]*geom.Polygon)

	for i, f := range features {
		polys, err := polygonsOf(f.Geometry)
		if err != nil {
			return Geometry{}, fmt.Errorf("feature %d (%s): %w", i, f.Code, err)
		}
		if f.Code != "" {
			byCode[f.Code] = append(byCode[f.Code], polys...)
		}
		if f.Region != "" {
			byRegion[f.Region] = append(byRegion[f.Region], polys...)
		}
	}

	var out Geometry
	for _, code := range sortedKeys(byCode) {
		mp, err := Union(byCode[code])
		if err != nil {
			return Geometry{}, fmt.Errorf("dissolve %s: %w", code, err)
		}
		c, err := xy.Centroid(mp)
		if err != nil {
			return Geometry{}, fmt.Errorf("centroid of %s: %w", code, err)
		}
		out.Municipalities = append(out.Municipalities, GeometryRecord{
			Code:     code,
			Boundary: mp,
			Centroid: Point{X: c.X(), Y: c.Y()},
		})
	}
	for _, name := range sortedKeys(byRegion) {
		mp, err := Union(byRegion[name])
		if err != nil {
			return Geometry{}, fmt.Errorf("dissolve %s: %w", name, err)
		}
		out.Regions = append(out.Regions, RegionRecord{
			Name:     name,
			Boundary: mp,
			Outline:  Outline(mp),
		})
	}
	return out, nil
}

// Union returns the point-set union of polys. Polygons that share an edge, in
// full or only in part, merge into one polygon.
func Union(polys []*geom.Polygon) (*geom.MultiPolygon, error) {
	members := make([]sfgeom.Geometry, 0, len(polys))
	for i, p := range polys {
		raw, err := wkb.Marshal(p, wkb.NDR)
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %w", i, err)
		}
		g, err := sfgeom.UnmarshalWKB(raw)
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %w", i, err)
		}
		members = append(members, g)
	}

	u, err := sfgeom.UnaryUnion(sfgeom.NewGeometryCollection(members).AsGeometry())
	if err != nil {
		return nil, fmt.Errorf("union: %w", err)
	}
	if u.IsEmpty() {
		return nil, errors.New("union is empty")
	}
	g, err := wkb.Unmarshal(u.AsBinary())
	if err != nil {
		return nil, fmt.Errorf("union: %w", err)
	}

	switch t := g.(type) {
	case *geom.MultiPolygon:
		return t, nil
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(geom.XY)
		if err := mp.Push(t); err != nil {
			return nil, err
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("union produced %T", g)
	}
}

// Outline returns every ring edge of mp, exterior and interior, with each
// segment ordered so that A precedes B. Zero-length edges are skipped.
func Outline(mp *geom.MultiPolygon) []Segment {
	var segs []Segment
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		for j := 0; j < poly.NumLinearRings(); j++ {
			coords := poly.LinearRing(j).Coords()
			for k := 1; k < len(coords); k++ {
				a := Point{X: coords[k-1].X(), Y: coords[k-1].Y()}
				b := Point{X: coords[k].X(), Y: coords[k].Y()}
				if a == b {
					continue
				}
				if b.X < a.X || (b.X == a.X && b.Y < a.Y) {
					a, b = b, a
				}
				segs = append(segs, Segment{A: a, B: b})
			}
		}
	}
	return segs
}

// IndexCentroids maps each municipality code to its centroid. Codes must be
// unique.
func IndexCentroids(records []GeometryRecord) (map[MunicipalityCode]Point, error) {
	idx := make(map[MunicipalityCode]Point, len(records))
	for _, r := range records {
		if _, dup := idx[r.Code]; dup {
			return nil, fmt.Errorf("%w %s", ErrDuplicateGeometry, r.Code)
		}
		idx[r.Code] = r.Centroid
	}
	return idx, nil
}

func polygonsOf(g geom.T) ([]*geom.Polygon, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		p, err := toXY(t)
		if err != nil {
			return nil, err
		}
		return []*geom.Polygon{p}, nil
	case *geom.MultiPolygon:
		polys := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			p, err := toXY(t.Polygon(i))
			if err != nil {
				return nil, err
			}
			polys = append(polys, p)
		}
		return polys, nil
	case nil:
		return nil, errors.New("missing geometry")
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}
}

// toXY drops any Z/M ordinates so every dissolved shape shares the XY layout.
func toXY(p *geom.Polygon) (*geom.Polygon, error) {
	if p.Layout() == geom.XY {
		return p, nil
	}
	rings := p.Coords()
	flat := make([][]geom.Coord, len(rings))
	for i, ring := range rings {
		flat[i] = make([]geom.Coord, len(ring))
		for j, c := range ring {
			flat[i][j] = geom.Coord{c.X(), c.Y()}
		}
	}
	return geom.NewPolygon(geom.XY).SetCoords(flat)
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
