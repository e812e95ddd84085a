package eyes

import "github.com/teslashibe/go-facecast/pkg/face"

// Eye selects which eye's signals to read.
type Eye int

const (
	LeftEye Eye = iota
	RightEye
)

func (e Eye) String() string {
	if e == RightEye {
		return "right"
	}
	return "left"
}

// Gaze extracts the directional signals for this eye.
//
// The sensor names in/out signals from the mirrored side, so the left eye
// reads the Right-named in/out pair and the right eye reads the Left-named
// pair. Up and down are read from the eye's own side.
func (e Eye) Gaze(bs face.BlendShapes) Gaze {
	if e == RightEye {
		return Gaze{
			Up:    bs.Value(face.EyeLookUpRight),
			Down:  bs.Value(face.EyeLookDownRight),
			Left:  bs.Value(face.EyeLookInLeft),
			Right: bs.Value(face.EyeLookOutLeft),
		}
	}
	return Gaze{
		Up:    bs.Value(face.EyeLookUpLeft),
		Down:  bs.Value(face.EyeLookDownLeft),
		Left:  bs.Value(face.EyeLookOutRight),
		Right: bs.Value(face.EyeLookInRight),
	}
}

// Lid extracts the aperture signals for this eye.
func (e Eye) Lid(bs face.BlendShapes) Lid {
	if e == RightEye {
		return Lid{
			Blink: bs.Value(face.EyeBlinkRight),
			Wide:  bs.Value(face.EyeWideRight),
		}
	}
	return Lid{
		Blink: bs.Value(face.EyeBlinkLeft),
		Wide:  bs.Value(face.EyeWideLeft),
	}
}

// Next classifies one update for this eye.
func (e Eye) Next(prev State, bs face.BlendShapes) State {
	return State{
		Position: NextPosition(prev.Position, e.Gaze(bs)),
		Shape:    NextShape(prev.Shape, e.Lid(bs)),
	}
}
