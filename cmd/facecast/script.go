package main

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/teslashibe/go-facecast/pkg/face"
	"gopkg.in/yaml.v3"
)

// Script is a replayable sequence of sensor updates.
//
//	rate: 30
//	frames:
//	  - faces:
//	      - id: 2f6c1d0e-9a4b-4c1e-8f0a-5d7e3b2a1c90
//	        position: [0, 0.02, -0.4]
//	        yaw: 15
//	        blend_shapes: {eyeBlinkLeft: 0.9, eyeBlinkRight: 0.9}
//	    repeat: 10
//	  - removed: [2f6c1d0e-9a4b-4c1e-8f0a-5d7e3b2a1c90]
type Script struct {
	Rate   float64       `yaml:"rate"`
	Frames []ScriptFrame `yaml:"frames"`
}

// ScriptFrame is one update, optionally repeated.
type ScriptFrame struct {
	Faces   []ScriptFace `yaml:"faces"`
	Removed []string     `yaml:"removed"`
	Repeat  int          `yaml:"repeat"`
}

// ScriptFace describes a face in sensor coordinates. Yaw is in degrees
// about the up axis; unlisted blend shapes are zero.
type ScriptFace struct {
	ID          string             `yaml:"id"`
	Position    [3]float32         `yaml:"position"`
	Yaw         float32            `yaml:"yaw"`
	BlendShapes map[string]float32 `yaml:"blend_shapes"`
}

// Frame is a decoded update ready to send.
type Frame struct {
	Faces   []face.TrackedFace
	Removed []uuid.UUID
}

var errEmptyScript = errors.New("script has no frames")

// LoadScript reads and decodes a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScript decodes a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if len(s.Frames) == 0 {
		return nil, errEmptyScript
	}
	if s.Rate < 0 {
		return nil, fmt.Errorf("invalid rate %v", s.Rate)
	}
	return &s, nil
}

// Expand converts the script into frames, applying repeats.
func (s *Script) Expand() ([]Frame, error) {
	var frames []Frame
	for i, sf := range s.Frames {
		frame := Frame{}
		for _, f := range sf.Faces {
			tf, err := f.trackedFace()
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
			frame.Faces = append(frame.Faces, tf)
		}
		for _, id := range sf.Removed {
			u, err := uuid.Parse(id)
			if err != nil {
				return nil, fmt.Errorf("frame %d: removed id %q: %w", i, id, err)
			}
			frame.Removed = append(frame.Removed, u)
		}

		n := max(sf.Repeat, 1)
		for j := 0; j < n; j++ {
			frames = append(frames, frame)
		}
	}
	return frames, nil
}

func (f ScriptFace) trackedFace() (face.TrackedFace, error) {
	id, err := uuid.Parse(f.ID)
	if err != nil {
		return face.TrackedFace{}, fmt.Errorf("face id %q: %w", f.ID, err)
	}

	bs := make(face.BlendShapes, face.NumBlendShapes)
	for _, b := range face.AllBlendShapes() {
		bs[b] = 0
	}
	for name, v := range f.BlendShapes {
		b, ok := face.ParseBlendShape(name)
		if !ok {
			return face.TrackedFace{}, fmt.Errorf("unknown blend shape %q", name)
		}
		bs[b] = mgl32.Clamp(v, 0, 1)
	}

	return face.TrackedFace{
		ID:          id,
		Pose:        posed(mgl32.Vec3(f.Position), f.Yaw),
		BlendShapes: bs,
	}, nil
}

// posed builds a pose at position turned yaw degrees about the up axis.
func posed(position mgl32.Vec3, yaw float32) face.Pose {
	m := mgl32.Translate3D(position.X(), position.Y(), position.Z()).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(yaw)))
	return face.Pose(m)
}

// frameSource yields updates for replay.
type frameSource interface {
	Next() (Frame, bool)
	// IDs lists every identity the source has emitted.
	IDs() []uuid.UUID
}

type scriptSource struct {
	frames []Frame
	loop   bool
	i      int
	seen   map[uuid.UUID]struct{}
}

func newScriptSource(frames []Frame, loop bool) *scriptSource {
	return &scriptSource{frames: frames, loop: loop, seen: make(map[uuid.UUID]struct{})}
}

func (s *scriptSource) Next() (Frame, bool) {
	if s.i >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return Frame{}, false
		}
		s.i = 0
	}
	f := s.frames[s.i]
	s.i++
	for _, tf := range f.Faces {
		s.seen[tf.ID] = struct{}{}
	}
	for _, id := range f.Removed {
		delete(s.seen, id)
	}
	return f, true
}

func (s *scriptSource) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.seen))
	for id := range s.seen {
		ids = append(ids, id)
	}
	return ids
}

// synthetic animates faces that blink every few seconds and sweep their
// gaze left and right.
type synthetic struct {
	ids  []uuid.UUID
	rate float64
	tick int
}

const (
	blinkPeriod   = 3.0 // seconds
	blinkDuration = 0.25
	gazePeriod    = 4.0
)

func newSynthetic(n int, rate float64) *synthetic {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return &synthetic{ids: ids, rate: rate}
}

func (s *synthetic) Next() (Frame, bool) {
	t := float64(s.tick) / s.rate
	s.tick++

	frame := Frame{Faces: make([]face.TrackedFace, len(s.ids))}
	for i, id := range s.ids {
		frame.Faces[i] = syntheticFace(id, t+float64(i)*0.7, float32(i)*0.3)
	}
	return frame, true
}

func (s *synthetic) IDs() []uuid.UUID {
	return s.ids
}

func syntheticFace(id uuid.UUID, t float64, x float32) face.TrackedFace {
	blink := float32(0)
	if phase := math.Mod(t, blinkPeriod); phase < blinkDuration {
		blink = float32(math.Sin(math.Pi * phase / blinkDuration))
	}
	gaze := float32(math.Sin(2 * math.Pi * t / gazePeriod))
	look := float32(math.Cos(2 * math.Pi * t / (gazePeriod * 2)))

	bs := make(face.BlendShapes, face.NumBlendShapes)
	for _, b := range face.AllBlendShapes() {
		bs[b] = 0
	}
	bs[face.EyeBlinkLeft] = blink
	bs[face.EyeBlinkRight] = blink

	// Looking toward the sensor's left moves the left eye outward and the
	// right eye inward; signal names are mirrored.
	left, right := max(gaze, 0), max(-gaze, 0)
	bs[face.EyeLookOutRight] = left
	bs[face.EyeLookInLeft] = left
	bs[face.EyeLookInRight] = right
	bs[face.EyeLookOutLeft] = right

	up, down := max(look, 0)*0.3, max(-look, 0)*0.3
	bs[face.EyeLookUpLeft], bs[face.EyeLookUpRight] = up, up
	bs[face.EyeLookDownLeft], bs[face.EyeLookDownRight] = down, down

	bs[face.JawOpen] = float32(0.2 + 0.2*math.Sin(2*math.Pi*t))

	return face.TrackedFace{
		ID:          id,
		Pose:        posed(mgl32.Vec3{x, 0, -0.4}, 20*gaze),
		BlendShapes: bs,
	}
}
