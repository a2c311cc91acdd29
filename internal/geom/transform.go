package geom

import "github.com/go-gl/mathgl/mgl32"

// Placement positions a model in the world: scale, then rotate (Euler
// degrees applied about X, then Y, then Z), then translate.
type Placement struct {
	pos      Vec3
	rot      Mat3
	invRot   Mat3
	scale    float32
	invScale float32
}

func NewPlacement(pos, rotDeg Vec3, scale float32) Placement {
	if scale <= 0 {
		scale = 1
	}
	rot := mgl32.Rotate3DZ(mgl32.DegToRad(rotDeg[2])).
		Mul3(mgl32.Rotate3DY(mgl32.DegToRad(rotDeg[1]))).
		Mul3(mgl32.Rotate3DX(mgl32.DegToRad(rotDeg[0])))
	return Placement{
		pos:      pos,
		rot:      rot,
		invRot:   rot.Transpose(),
		scale:    scale,
		invScale: 1 / scale,
	}
}

func (p Placement) Position() Vec3 { return p.pos }
func (p Placement) Scale() float32 { return p.scale }

// ToModel maps a world point into model space.
func (p Placement) ToModel(v Vec3) Vec3 {
	return p.invRot.Mul3x1(v.Sub(p.pos)).Mul(p.invScale)
}

// DirToModel rotates a direction into model space. Lengths are preserved,
// distances measured in model space must be multiplied by Scale.
func (p Placement) DirToModel(d Vec3) Vec3 {
	return p.invRot.Mul3x1(d)
}

// ToWorld maps a model space point back into the world.
func (p Placement) ToWorld(v Vec3) Vec3 {
	return p.rot.Mul3x1(v.Mul(p.scale)).Add(p.pos)
}

func (p Placement) DirToWorld(d Vec3) Vec3 {
	return p.rot.Mul3x1(d)
}

// RayToModel moves r into model space; the returned ray keeps unit length,
// so a model space distance t equals t*Scale in the world.
func (p Placement) RayToModel(r Ray) Ray {
	return NewRay(p.ToModel(r.Origin), p.DirToModel(r.Dir))
}

// BoundsToWorld returns the world box around model space box b.
func (p Placement) BoundsToWorld(b AABB) AABB {
	if b.IsEmpty() {
		return b
	}
	out := EmptyAABB()
	for i := 0; i < 8; i++ {
		out = out.Extend(p.ToWorld(b.Corner(i)))
	}
	return out
}
