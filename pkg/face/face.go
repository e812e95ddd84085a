// Package face defines the per-frame observations delivered by a facial
// tracking sensor: a pose, a set of blend-shape intensities and the
// operator-configured sensor offset.
package face

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Pose is the sensor's 4x4 column-major face transform. Column 0 is the
// right vector, column 1 up, column 2 forward and column 3 the position.
type Pose mgl32.Mat4

// NewPose builds a pose from its basis vectors and position.
func NewPose(right, up, forward, position mgl32.Vec3) Pose {
	return Pose(mgl32.Mat4FromCols(
		right.Vec4(0),
		up.Vec4(0),
		forward.Vec4(0),
		position.Vec4(1),
	))
}

// IdentityPose is a face at the sensor origin looking along +Z.
func IdentityPose() Pose {
	return Pose(mgl32.Ident4())
}

// Right returns the face's right vector.
func (p Pose) Right() mgl32.Vec3 { return mgl32.Mat4(p).Col(0).Vec3() }

// Up returns the face's up vector.
func (p Pose) Up() mgl32.Vec3 { return mgl32.Mat4(p).Col(1).Vec3() }

// Forward returns the face's forward vector.
func (p Pose) Forward() mgl32.Vec3 { return mgl32.Mat4(p).Col(2).Vec3() }

// Position returns the face's translation.
func (p Pose) Position() mgl32.Vec3 { return mgl32.Mat4(p).Col(3).Vec3() }

// TrackedFace is one physically detected face in one sensor update.
type TrackedFace struct {
	ID          uuid.UUID
	Pose        Pose
	BlendShapes BlendShapes
}

// Complete reports whether every blend shape was reported.
func (f TrackedFace) Complete() bool {
	return len(f.BlendShapes.Missing()) == 0
}

// Offset is the operator-configured translation added to a face position
// before encoding. A nil component means it has not been configured.
type Offset struct {
	X *float32 `yaml:"x,omitempty" json:"x,omitempty"`
	Y *float32 `yaml:"y,omitempty" json:"y,omitempty"`
	Z *float32 `yaml:"z,omitempty" json:"z,omitempty"`
}

// NewOffset returns a fully configured offset.
func NewOffset(x, y, z float32) Offset {
	return Offset{X: &x, Y: &y, Z: &z}
}

// Complete reports whether all three components are set.
func (o Offset) Complete() bool {
	return o.X != nil && o.Y != nil && o.Z != nil
}

// Vec returns the offset as a vector, or false if any component is unset.
func (o Offset) Vec() (mgl32.Vec3, bool) {
	if !o.Complete() {
		return mgl32.Vec3{}, false
	}
	return mgl32.Vec3{*o.X, *o.Y, *o.Z}, true
}
