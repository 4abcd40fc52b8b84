// Package contour traces each compact-heightfield region's boundary
// into a raw polyline, then simplifies it within a maximum deviation
// tolerance, producing the input polygons for the polymesh builder.
package contour

import (
	"sort"

	"github.com/wayfarer-nav/navmesh/buildlog"
	"github.com/wayfarer-nav/navmesh/voxel"
)

const (
	borderReg     uint16 = 0x8000
	contourRegMask uint32 = 0xffff
	borderVertex  int32  = 0x10000
	areaBorder    int32  = 0x20000
)

// TessFlags controls which contour edges get extra vertices inserted to
// cap maxEdgeLen, on top of whatever simplification already adds.
type TessFlags int32

const (
	TessWallEdges TessFlags = 1 << iota
	TessAreaEdges
)

// Vertex is one contour point in voxel space, plus the packed flags the
// tracer and simplifier stash in its low bits (region id, border-vertex
// and area-border markers).
type Vertex struct {
	X, Y, Z int32
	Flags   int32
}

// Contour is one region's simplified boundary (Verts) alongside the
// untouched raw trace (RawVerts) it was simplified from.
type Contour struct {
	Verts    []Vertex
	RawVerts []Vertex
	Region   uint16
	Area     uint8
}

// Set is every contour traced from one compact heightfield, in the same
// voxel-space coordinate system (BMin/BMax/CellSize/CellHeight carried
// through from the heightfield for downstream world-space conversion).
type Set struct {
	Contours   []Contour
	BMin, BMax [3]float32
	CellSize   float32
	CellHeight float32
	Width      int32
	Height     int32
	BorderSize int32
	MaxError   float32
}

func regOf(v Vertex) uint32 { return uint32(v.Flags) & contourRegMask }

// Build traces and simplifies every non-border region boundary in chf.
// maxError bounds, in voxels, how far a simplified edge may
// deviate from the traced outline; maxEdgeLen (0 disables) caps edge
// length in voxels for edges selected by tessFlags.
func Build(ctx *buildlog.Context, chf *voxel.CompactHeightfield, maxError float32, maxEdgeLen int32, tessFlags TessFlags) *Set {
	t := ctx.Start(buildlog.StageContours)
	defer ctx.Stop(buildlog.StageContours, t)

	w, h := chf.Width, chf.Height
	borderSize := chf.BorderSize

	set := &Set{
		BMin: [3]float32{chf.BMin[0], chf.BMin[1], chf.BMin[2]},
		BMax: [3]float32{chf.BMax[0], chf.BMax[1], chf.BMax[2]},
		CellSize:   chf.CellSize,
		CellHeight: chf.CellHeight,
		Width:      w - borderSize*2,
		Height:     h - borderSize*2,
		BorderSize: borderSize,
		MaxError:   maxError,
	}
	if borderSize > 0 {
		pad := float32(borderSize) * chf.CellSize
		set.BMin[0] += pad
		set.BMin[2] += pad
		set.BMax[0] -= pad
		set.BMax[2] -= pad
	}

	flags := make([]uint8, chf.SpanCount)
	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := int32(c.Index); i < int32(c.Index)+int32(c.Count); i++ {
				s := &chf.Spans[i]
				if s.Region == 0 || s.Region&borderReg != 0 {
					continue
				}
				var res uint8
				for dir := int32(0); dir < 4; dir++ {
					var r uint16
					if voxel.GetCon(s, dir) != voxel.NotConnected {
						ax, az := x+voxel.DirOffsetX(dir), z+voxel.DirOffsetZ(dir)
						ai := int32(chf.Cells[ax+az*w].Index) + int32(voxel.GetCon(s, dir))
						r = chf.Spans[ai].Region
					}
					if r == s.Region {
						res |= 1 << uint(dir)
					}
				}
				flags[i] = res ^ 0xf
			}
		}
	}

	for z := int32(0); z < h; z++ {
		for x := int32(0); x < w; x++ {
			c := chf.Cells[x+z*w]
			for i := int32(c.Index); i < int32(c.Index)+int32(c.Count); i++ {
				if flags[i] == 0 || flags[i] == 0xf {
					flags[i] = 0
					continue
				}
				reg := chf.Spans[i].Region
				if reg == 0 || reg&borderReg != 0 {
					continue
				}
				area := chf.Areas[i]

				raw := walkContour(x, z, i, chf, flags)
				simplified := simplifyContour(raw, maxError, maxEdgeLen, tessFlags)
				simplified = removeDegenerateSegments(simplified)

				if len(simplified) < 3 {
					continue
				}

				cont := Contour{Region: reg, Area: area}
				cont.Verts = append([]Vertex(nil), simplified...)
				cont.RawVerts = append([]Vertex(nil), raw...)
				if borderSize > 0 {
					for j := range cont.Verts {
						cont.Verts[j].X -= borderSize
						cont.Verts[j].Z -= borderSize
					}
					for j := range cont.RawVerts {
						cont.RawVerts[j].X -= borderSize
						cont.RawVerts[j].Z -= borderSize
					}
				}
				set.Contours = append(set.Contours, cont)
			}
		}
	}

	mergeHoles(ctx, set)
	return set
}

// walkContour walks clockwise around the boundary of the region owning
// span i starting from its first unvisited non-connected edge,
// recording one Vertex per boundary corner crossed.
func walkContour(x, z, i int32, chf *voxel.CompactHeightfield, flags []uint8) []Vertex {
	var dir int32
	for flags[i]&(1<<uint(dir)) == 0 {
		dir++
	}
	startDir, starti := dir, i
	area := chf.Areas[i]

	var pts []Vertex
	for iter := 0; iter+1 < 40000; iter++ {
		if flags[i]&(1<<uint(dir)) != 0 {
			py, isBorder := cornerHeight(x, z, i, dir, chf)
			px, pz := x, z
			switch dir {
			case 0:
				pz++
			case 1:
				px++
				pz++
			case 2:
				px++
			}

			var r int32
			s := &chf.Spans[i]
			isAreaBorder := false
			if voxel.GetCon(s, dir) != voxel.NotConnected {
				ax, az := x+voxel.DirOffsetX(dir), z+voxel.DirOffsetZ(dir)
				ai := int32(chf.Cells[ax+az*chf.Width].Index) + int32(voxel.GetCon(s, dir))
				r = int32(chf.Spans[ai].Region)
				if area != chf.Areas[ai] {
					isAreaBorder = true
				}
			}
			if isBorder {
				r |= borderVertex
			}
			if isAreaBorder {
				r |= areaBorder
			}
			pts = append(pts, Vertex{X: px, Y: py, Z: pz, Flags: r})

			flags[i] &^= 1 << uint(dir)
			dir = (dir + 1) & 3
		} else {
			ni := int32(-1)
			nx, nz := x+voxel.DirOffsetX(dir), z+voxel.DirOffsetZ(dir)
			s := &chf.Spans[i]
			if voxel.GetCon(s, dir) != voxel.NotConnected {
				ni = int32(chf.Cells[nx+nz*chf.Width].Index) + int32(voxel.GetCon(s, dir))
			}
			if ni == -1 {
				return pts
			}
			x, z, i = nx, nz, ni
			dir = (dir + 3) & 3
		}
		if starti == i && startDir == dir {
			break
		}
	}
	return pts
}

// cornerHeight computes a contour corner's Y by taking the max floor
// height of the up-to-4 compact spans meeting at it, and flags it as a
// border vertex when it sits between exactly two distinct regions plus
// two interior cells (the classic "cross of 4 cells" case that would
// otherwise get dropped during simplification and corrupt a portal).
func cornerHeight(x, z, i, dir int32, chf *voxel.CompactHeightfield) (height int32, isBorder bool) {
	s := &chf.Spans[i]
	ch := int32(s.Y)
	dirp := (dir + 1) & 3

	var regs [4]uint32
	regs[0] = uint32(chf.Spans[i].Region) | uint32(chf.Areas[i])<<16

	if voxel.GetCon(s, dir) != voxel.NotConnected {
		ax, az := x+voxel.DirOffsetX(dir), z+voxel.DirOffsetZ(dir)
		ai := int32(chf.Cells[ax+az*chf.Width].Index) + int32(voxel.GetCon(s, dir))
		as := &chf.Spans[ai]
		ch = maxI32(ch, int32(as.Y))
		regs[1] = uint32(chf.Spans[ai].Region) | uint32(chf.Areas[ai])<<16
		if voxel.GetCon(as, dirp) != voxel.NotConnected {
			ax2, az2 := ax+voxel.DirOffsetX(dirp), az+voxel.DirOffsetZ(dirp)
			ai2 := int32(chf.Cells[ax2+az2*chf.Width].Index) + int32(voxel.GetCon(as, dirp))
			ch = maxI32(ch, int32(chf.Spans[ai2].Y))
			regs[2] = uint32(chf.Spans[ai2].Region) | uint32(chf.Areas[ai2])<<16
		}
	}
	if voxel.GetCon(s, dirp) != voxel.NotConnected {
		ax, az := x+voxel.DirOffsetX(dirp), z+voxel.DirOffsetZ(dirp)
		ai := int32(chf.Cells[ax+az*chf.Width].Index) + int32(voxel.GetCon(s, dirp))
		as := &chf.Spans[ai]
		ch = maxI32(ch, int32(as.Y))
		regs[3] = uint32(chf.Spans[ai].Region) | uint32(chf.Areas[ai])<<16
		if voxel.GetCon(as, dir) != voxel.NotConnected {
			ax2, az2 := ax+voxel.DirOffsetX(dir), az+voxel.DirOffsetZ(dir)
			ai2 := int32(chf.Cells[ax2+az2*chf.Width].Index) + int32(voxel.GetCon(as, dir))
			ch = maxI32(ch, int32(chf.Spans[ai2].Y))
			regs[2] = uint32(chf.Spans[ai2].Region) | uint32(chf.Areas[ai2])<<16
		}
	}

	for j := int32(0); j < 4; j++ {
		a, b, c, d := j, (j+1)&3, (j+2)&3, (j+3)&3
		twoSameExts := regs[a]&regs[b]&uint32(borderReg) != 0 && regs[a] == regs[b]
		twoInts := (regs[c]|regs[d])&uint32(borderReg) == 0
		intsSameArea := regs[c]>>16 == regs[d]>>16
		noZeros := regs[a] != 0 && regs[b] != 0 && regs[c] != 0 && regs[d] != 0
		if twoSameExts && twoInts && intsSameArea && noZeros {
			isBorder = true
			break
		}
	}
	return ch, isBorder
}

func maxI32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func distPtSeg(x, z, px, pz, qx, qz int32) float32 {
	pqx, pqz := float32(qx-px), float32(qz-pz)
	dx, dz := float32(x-px), float32(z-pz)
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	dx = float32(px) + t*pqx - float32(x)
	dz = float32(pz) + t*pqz - float32(z)
	return dx*dx + dz*dz
}

// simplifyContour reduces a raw traced boundary down to the fewest
// vertices such that no raw point strays from its simplified edge by
// more than maxError, always keeping every vertex where the owning
// region changes (those are mandatory portal corners). When maxEdgeLen
// is set and tessFlags selects it, long wall/area-border edges are
// additionally split so detail-mesh sampling doesn't have to cross a
// huge flat span unassisted.
func simplifyContour(points []Vertex, maxError float32, maxEdgeLen int32, tessFlags TessFlags) []Vertex {
	hasConnections := false
	for _, p := range points {
		if uint32(p.Flags)&contourRegMask != 0 {
			hasConnections = true
			break
		}
	}

	type simp struct {
		v   Vertex
		src int32
	}
	var simplified []simp

	if hasConnections {
		n := int32(len(points))
		for i := int32(0); i < n; i++ {
			ii := (i + 1) % n
			differentRegs := uint32(points[i].Flags)&contourRegMask != uint32(points[ii].Flags)&contourRegMask
			areaBorders := points[i].Flags&areaBorder != points[ii].Flags&areaBorder
			if differentRegs || areaBorders {
				simplified = append(simplified, simp{v: points[i], src: i})
			}
		}
	}
	if len(simplified) == 0 {
		ll, ur := points[0], points[0]
		lli, uri := int32(0), int32(0)
		for i, p := range points {
			if p.X < ll.X || (p.X == ll.X && p.Z < ll.Z) {
				ll, lli = p, int32(i)
			}
			if p.X > ur.X || (p.X == ur.X && p.Z > ur.Z) {
				ur, uri = p, int32(i)
			}
		}
		simplified = append(simplified, simp{v: ll, src: lli}, simp{v: ur, src: uri})
	}

	pn := int32(len(points))
	for i := 0; i < len(simplified); {
		ii := (i + 1) % len(simplified)
		a, b := simplified[i], simplified[ii]

		ax, az, ai := a.v.X, a.v.Z, a.src
		bx, bz, bi := b.v.X, b.v.Z, b.src

		var maxd float32
		maxi := int32(-1)
		var ci, cinc, endi int32

		if bx > ax || (bx == ax && bz > az) {
			cinc = 1
			ci = (ai + cinc) % pn
			endi = bi
		} else {
			cinc = pn - 1
			ci = (bi + cinc) % pn
			endi = ai
			ax, bx = bx, ax
			az, bz = bz, az
		}

		if uint32(points[ci].Flags)&contourRegMask == 0 || points[ci].Flags&areaBorder != 0 {
			for ci != endi {
				d := distPtSeg(points[ci].X, points[ci].Z, ax, az, bx, bz)
				if d > maxd {
					maxd = d
					maxi = ci
				}
				ci = (ci + cinc) % pn
			}
		}

		if maxi != -1 && maxd > maxError*maxError {
			ns := append([]simp(nil), simplified[:i+1]...)
			ns = append(ns, simp{v: points[maxi], src: maxi})
			ns = append(ns, simplified[i+1:]...)
			simplified = ns
		} else {
			i++
		}
	}

	if maxEdgeLen > 0 && tessFlags&(TessWallEdges|TessAreaEdges) != 0 {
		for i := 0; i < len(simplified); {
			ii := (i + 1) % len(simplified)
			a, b := simplified[i], simplified[ii]
			ax, az, ai := a.v.X, a.v.Z, a.src
			bx, bz, bi := b.v.X, b.v.Z, b.src

			maxi := int32(-1)
			ci := (ai + 1) % pn
			tess := false
			if tessFlags&TessWallEdges != 0 && uint32(points[ci].Flags)&contourRegMask == 0 {
				tess = true
			}
			if tessFlags&TessAreaEdges != 0 && points[ci].Flags&areaBorder != 0 {
				tess = true
			}
			if tess {
				dx, dz := bx-ax, bz-az
				if dx*dx+dz*dz > maxEdgeLen*maxEdgeLen {
					var n int32
					if bi < ai {
						n = bi + pn - ai
					} else {
						n = bi - ai
					}
					if n > 1 {
						if bx > ax || (bx == ax && bz > az) {
							maxi = (ai + n/2) % pn
						} else {
							maxi = (ai + (n+1)/2) % pn
						}
					}
				}
			}
			if maxi != -1 {
				ns := append([]simp(nil), simplified[:i+1]...)
				ns = append(ns, simp{v: points[maxi], src: maxi})
				ns = append(ns, simplified[i+1:]...)
				simplified = ns
			} else {
				i++
			}
		}
	}

	out := make([]Vertex, len(simplified))
	for i, sp := range simplified {
		ai := (sp.src + 1) % pn
		bi := sp.src
		out[i] = Vertex{
			X: sp.v.X, Y: sp.v.Y, Z: sp.v.Z,
			Flags: (points[ai].Flags & int32(contourRegMask|uint32(areaBorder))) | (points[bi].Flags & borderVertex),
		}
	}
	return out
}

func removeDegenerateSegments(verts []Vertex) []Vertex {
	n := len(verts)
	out := make([]Vertex, 0, n)
	for i := 0; i < n; i++ {
		ni := (i + 1) % n
		if verts[i].X == verts[ni].X && verts[i].Z == verts[ni].Z {
			continue
		}
		out = append(out, verts[i])
	}
	return out
}

func signedArea2D(verts []Vertex) int32 {
	var area int32
	n := int32(len(verts))
	for i, j := int32(0), n-1; i < n; i++ {
		vi, vj := verts[i], verts[j]
		area += vi.X*vj.Z - vj.X*vi.Z
		j = i
	}
	return (area + 1) / 2
}

func area2(a, b, c Vertex) int32 {
	return (b.X-a.X)*(c.Z-a.Z) - (c.X-a.X)*(b.Z-a.Z)
}
func left(a, b, c Vertex) bool   { return area2(a, b, c) < 0 }
func leftOn(a, b, c Vertex) bool { return area2(a, b, c) <= 0 }
func collinear(a, b, c Vertex) bool { return area2(a, b, c) == 0 }

func between(a, b, c Vertex) bool {
	if !collinear(a, b, c) {
		return false
	}
	if a.X != b.X {
		return (a.X <= c.X && c.X <= b.X) || (a.X >= c.X && c.X >= b.X)
	}
	return (a.Z <= c.Z && c.Z <= b.Z) || (a.Z >= c.Z && c.Z >= b.Z)
}

func intersectProp(a, b, c, d Vertex) bool {
	if collinear(a, b, c) || collinear(a, b, d) || collinear(c, d, a) || collinear(c, d, b) {
		return false
	}
	return (left(a, b, c) != left(a, b, d)) && (left(c, d, a) != left(c, d, b))
}

func segIntersect(a, b, c, d Vertex) bool {
	if intersectProp(a, b, c, d) {
		return true
	}
	return between(a, b, c) || between(a, b, d) || between(c, d, a) || between(c, d, b)
}

func vequal(a, b Vertex) bool { return a.X == b.X && a.Z == b.Z }

func inCone(i int, verts []Vertex, pj Vertex) bool {
	n := len(verts)
	pi := verts[i]
	pi1 := verts[(i+1)%n]
	pin1 := verts[(i-1+n)%n]
	if leftOn(pin1, pi, pi1) {
		return left(pi, pj, pin1) && left(pj, pi, pi1)
	}
	return !(leftOn(pi, pj, pi1) && leftOn(pj, pi, pin1))
}

func intersectSegContour(d0, d1 Vertex, skip int, verts []Vertex) bool {
	n := len(verts)
	for k := 0; k < n; k++ {
		k1 := (k + 1) % n
		if skip == k || skip == k1 {
			continue
		}
		p0, p1 := verts[k], verts[k1]
		if vequal(d0, p0) || vequal(d1, p0) || vequal(d0, p1) || vequal(d1, p1) {
			continue
		}
		if segIntersect(d0, d1, p0, p1) {
			return true
		}
	}
	return false
}

// mergeHoles stitches every hole (a contour wound backwards) into the
// outline of its region by finding the shortest non-intersecting
// diagonal between them, so the polymesh builder only ever sees simple,
// hole-free polygons to triangulate.
func mergeHoles(ctx *buildlog.Context, set *Set) {
	byRegion := make(map[uint16][]int)
	for i, c := range set.Contours {
		byRegion[c.Region] = append(byRegion[c.Region], i)
	}

	var kept []Contour
	for reg, idxs := range byRegion {
		var outlineIdx = -1
		var holeIdxs []int
		for _, i := range idxs {
			if signedArea2D(set.Contours[i].Verts) >= 0 {
				if outlineIdx != -1 {
					ctx.Errorf("multiple_outlines", "region %d has multiple outline contours", reg)
				}
				outlineIdx = i
			} else {
				holeIdxs = append(holeIdxs, i)
			}
		}
		if outlineIdx == -1 {
			ctx.Errorf("missing_outline", "region %d has holes but no outline; simplification is likely too aggressive", reg)
			continue
		}
		outline := &set.Contours[outlineIdx]
		if len(holeIdxs) == 0 {
			kept = append(kept, *outline)
			continue
		}

		type hole struct {
			verts              []Vertex
			minx, minz, leftmost int
		}
		holes := make([]hole, len(holeIdxs))
		for hi, ci := range holeIdxs {
			h := hole{verts: set.Contours[ci].Verts}
			h.minx, h.minz = int(h.verts[0].X), int(h.verts[0].Z)
			for vi, v := range h.verts {
				if int(v.X) < h.minx || (int(v.X) == h.minx && int(v.Z) < h.minz) {
					h.minx, h.minz, h.leftmost = int(v.X), int(v.Z), vi
				}
			}
			holes[hi] = h
		}
		sort.Slice(holes, func(i, j int) bool {
			if holes[i].minx != holes[j].minx {
				return holes[i].minx < holes[j].minx
			}
			return holes[i].minz < holes[j].minz
		})

		for _, h := range holes {
			bestVertex := h.leftmost
			index := -1
			for iter := 0; iter < len(h.verts); iter++ {
				corner := h.verts[bestVertex]
				type diag struct {
					vert int
					dist int32
				}
				var diags []diag
				for j := range outline.Verts {
					if inCone(j, outline.Verts, corner) {
						dx := outline.Verts[j].X - corner.X
						dz := outline.Verts[j].Z - corner.Z
						diags = append(diags, diag{vert: j, dist: dx*dx + dz*dz})
					}
				}
				sort.Slice(diags, func(i, j int) bool { return diags[i].dist < diags[j].dist })

				for _, d := range diags {
					pt := outline.Verts[d.vert]
					if !intersectSegContour(pt, corner, d.vert, outline.Verts) &&
						!intersectSegContour(pt, corner, -1, h.verts) {
						index = d.vert
						break
					}
				}
				if index != -1 {
					break
				}
				bestVertex = (bestVertex + 1) % len(h.verts)
			}
			if index == -1 {
				ctx.Warnf("merge_hole_failed", "could not find a merge diagonal for region %d hole", reg)
				continue
			}
			outline.Verts = mergeVertexLoops(outline.Verts, h.verts, index, bestVertex)
		}
		kept = append(kept, *outline)
	}
	set.Contours = kept
}

func mergeVertexLoops(a, b []Vertex, ia, ib int) []Vertex {
	var out []Vertex
	for i := 0; i <= len(a); i++ {
		out = append(out, a[(ia+i)%len(a)])
	}
	for i := 0; i <= len(b); i++ {
		out = append(out, b[(ib+i)%len(b)])
	}
	return out
}
