package face

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

func TestBlendShapeNames(t *testing.T) {
	if NumBlendShapes != 18 {
		t.Fatalf("NumBlendShapes = %d, want 18", NumBlendShapes)
	}

	for _, b := range AllBlendShapes() {
		parsed, ok := ParseBlendShape(b.String())
		if !ok {
			t.Errorf("ParseBlendShape(%q) not found", b.String())
			continue
		}
		if parsed != b {
			t.Errorf("ParseBlendShape(%q) = %v, want %v", b.String(), parsed, b)
		}
	}

	if _, ok := ParseBlendShape("cheekPuff"); ok {
		t.Error("ParseBlendShape should reject signals outside the enumeration")
	}
	if BlendShape(18).Valid() {
		t.Error("BlendShape(18) should not be valid")
	}
	if got := BlendShape(-1).String(); got != "BlendShape(-1)" {
		t.Errorf("String() = %q for invalid value", got)
	}
}

func TestBlendShapeWireOrder(t *testing.T) {
	// The in/out signals interleave across eyes on the wire.
	want := []string{"eyeLookInLeft", "eyeLookOutRight", "eyeLookInRight", "eyeLookOutLeft"}
	for i, name := range want {
		if got := BlendShape(int(EyeLookInLeft) + i).String(); got != name {
			t.Errorf("position %d = %q, want %q", int(EyeLookInLeft)+i, got, name)
		}
	}
	if JawOpen.String() != "jawOpen" || int(JawOpen) != 17 {
		t.Errorf("JawOpen = %d %q, want 17 jawOpen", int(JawOpen), JawOpen.String())
	}
}

func TestBlendShapesMissing(t *testing.T) {
	bs := BlendShapes{}
	if got := len(bs.Missing()); got != NumBlendShapes {
		t.Errorf("empty Missing() len = %d, want %d", got, NumBlendShapes)
	}

	for _, b := range AllBlendShapes() {
		bs[b] = 0.5
	}
	delete(bs, MouthFunnel)

	missing := bs.Missing()
	if len(missing) != 1 || missing[0] != MouthFunnel {
		t.Errorf("Missing() = %v, want [mouthFunnel]", missing)
	}

	f := TrackedFace{ID: uuid.New(), Pose: IdentityPose(), BlendShapes: bs}
	if f.Complete() {
		t.Error("face missing mouthFunnel should not be complete")
	}
	bs[MouthFunnel] = 0
	if !f.Complete() {
		t.Error("face with all signals should be complete")
	}

	if v, ok := bs.Get(JawOpen); !ok || v != 0.5 {
		t.Errorf("Get(JawOpen) = %v, %v", v, ok)
	}
}

func TestPoseColumns(t *testing.T) {
	right := mgl32.Vec3{1, 0, 0}
	up := mgl32.Vec3{0, 1, 0}
	forward := mgl32.Vec3{0, 0, 1}
	pos := mgl32.Vec3{2, 3, 1}

	p := NewPose(right, up, forward, pos)

	if p.Right() != right {
		t.Errorf("Right() = %v, want %v", p.Right(), right)
	}
	if p.Up() != up {
		t.Errorf("Up() = %v, want %v", p.Up(), up)
	}
	if p.Forward() != forward {
		t.Errorf("Forward() = %v, want %v", p.Forward(), forward)
	}
	if p.Position() != pos {
		t.Errorf("Position() = %v, want %v", p.Position(), pos)
	}

	// Column-major storage: translation lives in elements 12..14.
	m := mgl32.Mat4(p)
	if m[12] != 2 || m[13] != 3 || m[14] != 1 || m[15] != 1 {
		t.Errorf("translation column = %v", m[12:16])
	}
}

func TestOffset(t *testing.T) {
	var o Offset
	if o.Complete() {
		t.Error("zero Offset should not be complete")
	}
	if _, ok := o.Vec(); ok {
		t.Error("Vec() on incomplete offset should report false")
	}

	x := float32(0.1)
	o.X = &x
	if o.Complete() {
		t.Error("partial Offset should not be complete")
	}

	full := NewOffset(0.1, 0.2, 0.3)
	v, ok := full.Vec()
	if !ok {
		t.Fatal("Vec() on complete offset reported false")
	}
	if v != (mgl32.Vec3{0.1, 0.2, 0.3}) {
		t.Errorf("Vec() = %v", v)
	}
}
