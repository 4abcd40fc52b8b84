// Package voxel implements the Heightfield Rasterizer and Compact
// Heightfield build stages: it marks walkable triangles by slope,
// conservatively rasterizes them into a voxel column grid, filters out
// ledges and low-hanging obstacles and low-ceiling spans, then collapses
// the result into a neighbour-linked compact heightfield ready for
// region partitioning.
package voxel

import (
	"fmt"

	"github.com/arl/gogeo/f32/d3"
	"github.com/arl/math32"
	"github.com/wayfarer-nav/navmesh/buildlog"
)

// WalkableArea is the reserved area id produced by MarkWalkableTriangles
// for any triangle whose slope is within the configured limit. Area 0
// means "not walkable" throughout rasterization.
const (
	NullArea     uint8 = 0
	WalkableArea uint8 = 63
)

const maxHeight = 0xffff

// Span is a vertical interval of solid or walkable voxels within one
// heightfield column, expressed in voxel units along +Y.
type Span struct {
	Min, Max uint16
	Area     uint8
}

// Heightfield is a W×H grid of columns, each an ordered, non-overlapping
// chain of Spans sorted by Min. Column (x,z) lives at index x+z*Width.
type Heightfield struct {
	Width, Height int32
	BMin, BMax    d3.Vec3
	CellSize      float32 // Cs: xz-plane cell size, world units/voxel.
	CellHeight    float32 // Ch: y-axis cell size, world units/voxel.
	Columns       [][]Span
}

// New allocates an empty heightfield covering [bmin,bmax] at the given
// voxel resolution. It fails (returns nil) for a degenerate grid.
func New(width, height int32, bmin, bmax d3.Vec3, cellSize, cellHeight float32) (*Heightfield, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("voxel: degenerate grid %dx%d", width, height)
	}
	return &Heightfield{
		Width: width, Height: height,
		BMin: d3.NewVec3From(bmin), BMax: d3.NewVec3From(bmax),
		CellSize: cellSize, CellHeight: cellHeight,
		Columns: make([][]Span, width*height),
	}, nil
}

// addSpan inserts [smin,smax) with the given area into column idx,
// merging with any touching or overlapping span. flagMergeThr is the
// walkable-climb threshold (in voxels) that governs the climb-sensitive
// merge rule: when the merged tops differ by more than the threshold,
// the existing (lower) span's area wins; otherwise the higher span's
// area wins, but only when it is walkable. This preserves thin walkable
// caps over solid ground while losing thin ledges a character could not
// mount.
func (hf *Heightfield) addSpan(idx int32, smin, smax uint16, area uint8, flagMergeThr int32) {
	col := hf.Columns[idx]
	ns := Span{Min: smin, Max: smax, Area: area}

	i := 0
	out := make([]Span, 0, len(col)+1)
	for i < len(col) && col[i].Max < ns.Min {
		out = append(out, col[i])
		i++
	}
	for i < len(col) && col[i].Min <= ns.Max {
		cur := col[i]
		if cur.Min < ns.Min {
			ns.Min = cur.Min
		}
		if cur.Max > ns.Max {
			ns.Max = cur.Max
		}
		diff := int32(ns.Max) - int32(cur.Max)
		if diff < 0 {
			diff = -diff
		}
		if diff > flagMergeThr {
			ns.Area = cur.Area
		} else if cur.Area > ns.Area {
			ns.Area = cur.Area
		}
		i++
	}
	out = append(out, ns)
	out = append(out, col[i:]...)
	hf.Columns[idx] = out
}

// MarkWalkableTriangles sets areas[i] = WalkableArea for every triangle
// whose normal (assuming CCW winding, +Y up) makes an angle with +Y no
// greater than maxSlopeDeg; other triangles are left untouched (area 0
// by convention).
func MarkWalkableTriangles(maxSlopeDeg float32, positions []float32, indices []int32, areas []uint8) {
	walkableThr := math32.Cos(maxSlopeDeg / 180.0 * math32.Pi)
	ntris := int32(len(indices)) / 3
	for i := int32(0); i < ntris; i++ {
		a := vertAt(positions, indices[i*3+0])
		b := vertAt(positions, indices[i*3+1])
		c := vertAt(positions, indices[i*3+2])
		n := triNormal(a, b, c)
		if n[1] > walkableThr {
			areas[i] = WalkableArea
		}
	}
}

func vertAt(positions []float32, idx int32) d3.Vec3 {
	return d3.Vec3(positions[idx*3 : idx*3+3])
}

func triNormal(a, b, c d3.Vec3) d3.Vec3 {
	e0 := d3.NewVec3()
	e1 := d3.NewVec3()
	d3.Vec3Sub(e0, b, a)
	d3.Vec3Sub(e1, c, a)
	n := d3.NewVec3()
	d3.Vec3Cross(n, e0, e1)
	l := n.Len()
	if l > 1e-12 {
		n[0] /= l
		n[1] /= l
		n[2] /= l
	}
	return n
}

// RasterizeTriangles conservatively rasterizes every triangle into hf:
// any voxel column whose square XZ footprint is touched by the triangle
// receives a span covering the triangle's Y extent over that column.
// flagMergeThr is the walkable-climb threshold in voxels (see addSpan).
func RasterizeTriangles(ctx *buildlog.Context, hf *Heightfield, positions []float32, indices []int32, areas []uint8, flagMergeThr int32) {
	t := ctx.Start(buildlog.StageRasterize)
	defer ctx.Stop(buildlog.StageRasterize, t)

	ntris := int32(len(indices)) / 3
	for i := int32(0); i < ntris; i++ {
		a := vertAt(positions, indices[i*3+0])
		b := vertAt(positions, indices[i*3+1])
		c := vertAt(positions, indices[i*3+2])
		rasterizeTriangle(hf, a, b, c, areas[i], flagMergeThr)
	}
}

func rasterizeTriangle(hf *Heightfield, v0, v1, v2 d3.Vec3, area uint8, flagMergeThr int32) {
	bmin, bmax := hf.BMin, hf.BMax
	cs := hf.CellSize
	ics := 1.0 / cs
	ich := 1.0 / hf.CellHeight
	by := bmax[1] - bmin[1]

	var tmin, tmax d3.Vec3
	tmin = d3.NewVec3From(v0)
	tmax = d3.NewVec3From(v0)
	d3.Vec3Min(tmin, v1)
	d3.Vec3Min(tmin, v2)
	d3.Vec3Max(tmax, v1)
	d3.Vec3Max(tmax, v2)

	if !aabbOverlap(bmin, bmax, tmin, tmax) {
		return
	}

	z0 := clampi(int32((tmin[2]-bmin[2])*ics), 0, hf.Height-1)
	z1 := clampi(int32((tmax[2]-bmin[2])*ics), 0, hf.Height-1)

	poly := []d3.Vec3{d3.NewVec3From(v0), d3.NewVec3From(v1), d3.NewVec3From(v2)}

	for z := z0; z <= z1; z++ {
		cz := bmin[2] + float32(z)*cs
		row := clipPolygon(poly, 2, cz, cz+cs)
		if len(row) < 3 {
			continue
		}

		minX, maxX := row[0][0], row[0][0]
		for _, p := range row[1:] {
			if p[0] < minX {
				minX = p[0]
			}
			if p[0] > maxX {
				maxX = p[0]
			}
		}
		x0 := clampi(int32((minX-bmin[0])*ics), 0, hf.Width-1)
		x1 := clampi(int32((maxX-bmin[0])*ics), 0, hf.Width-1)

		for x := x0; x <= x1; x++ {
			cx := bmin[0] + float32(x)*cs
			cell := clipPolygon(row, 0, cx, cx+cs)
			if len(cell) < 3 {
				continue
			}

			smin, smax := cell[0][1], cell[0][1]
			for _, p := range cell[1:] {
				smin = math32.Min(smin, p[1])
				smax = math32.Max(smax, p[1])
			}
			smin -= bmin[1]
			smax -= bmin[1]
			if smax < 0 || smin > by {
				continue
			}
			if smin < 0 {
				smin = 0
			}
			if smax > by {
				smax = by
			}

			ismin := uint16(clampi(int32(math32.Floor(smin*ich)), 0, int32(maxHeight)-1))
			ismax := uint16(clampi(int32(math32.Ceil(smax*ich)), int32(ismin)+1, int32(maxHeight)))
			hf.addSpan(x+z*hf.Width, ismin, ismax, area, flagMergeThr)
		}
	}
}

func aabbOverlap(amin, amax, bmin, bmax d3.Vec3) bool {
	if amin[0] > bmax[0] || amax[0] < bmin[0] {
		return false
	}
	if amin[1] > bmax[1] || amax[1] < bmin[1] {
		return false
	}
	if amin[2] > bmax[2] || amax[2] < bmin[2] {
		return false
	}
	return true
}

func clampi(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clipPolygon runs Sutherland-Hodgman clipping of a convex polygon
// against the slab [lo,hi] on the given axis (0=x, 2=z).
func clipPolygon(in []d3.Vec3, axis int, lo, hi float32) []d3.Vec3 {
	in = clipHalf(in, axis, lo, true)
	if len(in) < 3 {
		return in
	}
	return clipHalf(in, axis, hi, false)
}

// clipHalf clips against a single half-plane: keep >= bound when keepGE,
// else keep <= bound.
func clipHalf(in []d3.Vec3, axis int, bound float32, keepGE bool) []d3.Vec3 {
	n := len(in)
	if n == 0 {
		return in
	}
	out := make([]d3.Vec3, 0, n+1)
	side := func(p d3.Vec3) float32 {
		d := p[axis] - bound
		if keepGE {
			return d
		}
		return -d
	}
	j := n - 1
	dj := side(in[j])
	for i := 0; i < n; i++ {
		di := side(in[i])
		if (dj >= 0) != (di >= 0) {
			s := dj / (dj - di)
			out = append(out, lerpVec3(in[j], in[i], s))
		}
		if di >= 0 {
			out = append(out, in[i])
		}
		j, dj = i, di
	}
	return out
}

func lerpVec3(a, b d3.Vec3, t float32) d3.Vec3 {
	return d3.NewVec3XYZ(
		a[0]+(b[0]-a[0])*t,
		a[1]+(b[1]-a[1])*t,
		a[2]+(b[2]-a[2])*t,
	)
}

func dirOffsetX(dir int32) int32 {
	return [4]int32{-1, 0, 1, 0}[dir&3]
}

func dirOffsetZ(dir int32) int32 {
	return [4]int32{0, 1, 0, -1}[dir&3]
}

// FilterLowHangingWalkableObstacles reclaims shallow curbs: if a
// non-walkable span sits directly atop a walkable one and the step
// between their tops is within walkableClimb, the upper span is
// promoted to the lower span's area.
func FilterLowHangingWalkableObstacles(ctx *buildlog.Context, hf *Heightfield, walkableClimb int32) {
	t := ctx.Start(buildlog.StageFilter)
	defer ctx.Stop(buildlog.StageFilter, t)

	for idx, col := range hf.Columns {
		prevWalkable := false
		prevArea := NullArea
		for i := range col {
			s := &col[i]
			walkable := s.Area != NullArea
			if !walkable && prevWalkable {
				if iabs(int32(s.Max)-int32(col[i-1].Max)) <= walkableClimb {
					s.Area = prevArea
				}
			}
			prevWalkable = walkable
			prevArea = s.Area
		}
		hf.Columns[idx] = col
	}
}

// FilterLedgeSpans demotes to non-walkable every span standing over a
// drop the agent could not safely step down (a "ledge"): either some
// cardinal neighbour's top differs by more than walkableClimb, or the
// spread between the neighbours' accessible heights exceeds
// walkableClimb. Clearance below a neighbour's ceiling must be at least
// walkableHeight for that neighbour to count as accessible.
func FilterLedgeSpans(ctx *buildlog.Context, hf *Heightfield, walkableHeight, walkableClimb int32) {
	t := ctx.Start(buildlog.StageFilter)
	defer ctx.Stop(buildlog.StageFilter, t)

	w, h := hf.Width, hf.Height
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			col := hf.Columns[x+z*w]
			for i := range col {
				s := &col[i]
				if s.Area == NullArea {
					continue
				}
				bot := int32(s.Max)
				top := int32(maxHeight)
				if i+1 < len(col) {
					top = int32(col[i+1].Min)
				}

				minh := int32(maxHeight)
				asmin, asmax := s.Max, s.Max

				for dir := int32(0); dir < 4; dir++ {
					dx, dz := x+dirOffsetX(dir), z+dirOffsetZ(dir)
					if dx < 0 || dz < 0 || dx >= w || dz >= h {
						minh = imin(minh, -walkableClimb-bot)
						continue
					}
					ncol := hf.Columns[dx+dz*w]
					nbot := -walkableClimb
					ntop := int32(maxHeight)
					if len(ncol) > 0 {
						ntop = int32(ncol[0].Min)
					}
					if imin(top, ntop)-imax(bot, nbot) > walkableHeight {
						minh = imin(minh, nbot-bot)
					}
					for ni := range ncol {
						nbot = int32(ncol[ni].Max)
						ntop = int32(maxHeight)
						if ni+1 < len(ncol) {
							ntop = int32(ncol[ni+1].Min)
						}
						if imin(top, ntop)-imax(bot, nbot) > walkableHeight {
							minh = imin(minh, nbot-bot)
							if iabs(nbot-bot) <= walkableClimb {
								if nbot < int32(asmin) {
									asmin = uint16(nbot)
								}
								if nbot > int32(asmax) {
									asmax = uint16(nbot)
								}
							}
						}
					}
				}

				if minh < -walkableClimb {
					s.Area = NullArea
				} else if int32(asmax-asmin) > walkableClimb {
					s.Area = NullArea
				}
			}
		}
	}
}

// FilterWalkableLowHeightSpans demotes any walkable span whose
// clearance to the next span above is less than walkableHeight: there
// is not enough headroom for an agent to stand there.
func FilterWalkableLowHeightSpans(ctx *buildlog.Context, hf *Heightfield, walkableHeight int32) {
	t := ctx.Start(buildlog.StageFilter)
	defer ctx.Stop(buildlog.StageFilter, t)

	for _, col := range hf.Columns {
		for i := range col {
			s := &col[i]
			top := int32(maxHeight)
			if i+1 < len(col) {
				top = int32(col[i+1].Min)
			}
			if (top - int32(s.Max)) < walkableHeight {
				s.Area = NullArea
			}
		}
	}
}

func iabs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
func imin(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
func imax(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
