package geom

const triangleEpsilon = 1e-7

// IntersectTriangle is the Möller-Trumbore test. Both faces are solid.
// It returns the distance along r to the hit.
func IntersectTriangle(r Ray, a, b, c Vec3) (float32, bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	h := r.Dir.Cross(e2)
	det := e1.Dot(h)
	if det > -triangleEpsilon && det < triangleEpsilon {
		return 0, false
	}
	f := 1 / det
	s := r.Origin.Sub(a)
	u := f * s.Dot(h)
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := f * r.Dir.Dot(q)
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := f * e2.Dot(q)
	if t < 0 {
		return 0, false
	}
	return t, true
}

// TriangleNormal returns the unit face normal for counter-clockwise winding.
func TriangleNormal(a, b, c Vec3) Vec3 {
	n := b.Sub(a).Cross(c.Sub(a))
	if l := n.Len(); l > 0 {
		return n.Mul(1 / l)
	}
	return n
}

// TriangleBounds returns the box around a triangle.
func TriangleBounds(a, b, c Vec3) AABB {
	return EmptyAABB().Extend(a).Extend(b).Extend(c)
}
