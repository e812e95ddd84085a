package face

import "fmt"

// BlendShape identifies one of the facial activation signals carried on the
// wire. The iota order is the order the signals appear in an encoded record.
type BlendShape int

const (
	EyeBlinkLeft BlendShape = iota
	EyeBlinkRight
	EyeLookUpLeft
	EyeLookUpRight
	EyeLookDownLeft
	EyeLookDownRight
	EyeLookInLeft
	EyeLookOutRight
	EyeLookInRight
	EyeLookOutLeft
	EyeWideLeft
	EyeWideRight
	MouthSmileLeft
	MouthSmileRight
	MouthFunnel
	MouthPressLeft
	MouthPressRight
	JawOpen

	// NumBlendShapes is the number of signals in a complete sample.
	NumBlendShapes = int(JawOpen) + 1
)

var blendShapeNames = [NumBlendShapes]string{
	"eyeBlinkLeft",
	"eyeBlinkRight",
	"eyeLookUpLeft",
	"eyeLookUpRight",
	"eyeLookDownLeft",
	"eyeLookDownRight",
	"eyeLookInLeft",
	"eyeLookOutRight",
	"eyeLookInRight",
	"eyeLookOutLeft",
	"eyeWideLeft",
	"eyeWideRight",
	"mouthSmileLeft",
	"mouthSmileRight",
	"mouthFunnel",
	"mouthPressLeft",
	"mouthPressRight",
	"jawOpen",
}

var blendShapesByName = func() map[string]BlendShape {
	m := make(map[string]BlendShape, NumBlendShapes)
	for i, name := range blendShapeNames {
		m[name] = BlendShape(i)
	}
	return m
}()

// String returns the sensor name of the signal, e.g. "eyeBlinkLeft".
func (b BlendShape) String() string {
	if b < 0 || int(b) >= NumBlendShapes {
		return fmt.Sprintf("BlendShape(%d)", int(b))
	}
	return blendShapeNames[b]
}

// Valid reports whether b is one of the known signals.
func (b BlendShape) Valid() bool {
	return b >= 0 && int(b) < NumBlendShapes
}

// ParseBlendShape looks up a signal by its sensor name.
func ParseBlendShape(name string) (BlendShape, bool) {
	b, ok := blendShapesByName[name]
	return b, ok
}

// AllBlendShapes returns every signal in wire order.
func AllBlendShapes() []BlendShape {
	all := make([]BlendShape, NumBlendShapes)
	for i := range all {
		all[i] = BlendShape(i)
	}
	return all
}

// BlendShapes maps signals to intensities in [0,1]. Absent keys mean the
// sensor did not report that signal this frame.
type BlendShapes map[BlendShape]float32

// Get returns the intensity of b and whether it was reported.
func (s BlendShapes) Get(b BlendShape) (float32, bool) {
	v, ok := s[b]
	return v, ok
}

// Value returns the intensity of b, or 0 when it was not reported.
func (s BlendShapes) Value(b BlendShape) float32 {
	return s[b]
}

// Missing returns the signals absent from s, in wire order.
func (s BlendShapes) Missing() []BlendShape {
	var missing []BlendShape
	for i := 0; i < NumBlendShapes; i++ {
		if _, ok := s[BlendShape(i)]; !ok {
			missing = append(missing, BlendShape(i))
		}
	}
	return missing
}
