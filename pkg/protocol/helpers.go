package protocol

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/teslashibe/go-facecast/pkg/face"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewHelloMessage creates a hello message
func NewHelloMessage(device, token string) (*Message, error) {
	return NewMessage(TypeHello, HelloData{Device: device, Token: token})
}

// NewFacesMessage creates a faces message from tracked faces
func NewFacesMessage(faces []face.TrackedFace) (*Message, error) {
	data := FacesData{Faces: make([]FaceData, 0, len(faces))}
	for _, f := range faces {
		data.Faces = append(data.Faces, FromTrackedFace(f))
	}
	return NewMessage(TypeFaces, data)
}

// NewRemovedMessage creates a removed message
func NewRemovedMessage(ids []uuid.UUID) (*Message, error) {
	data := RemovedData{IDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		data.IDs = append(data.IDs, id.String())
	}
	return NewMessage(TypeRemoved, data)
}

// NewWelcomeMessage creates a welcome message
func NewWelcomeMessage(device string, authorized bool) (*Message, error) {
	return NewMessage(TypeWelcome, WelcomeData{Device: device, Authorized: authorized})
}

// NewStatusMessage creates a status message
func NewStatusMessage(status StatusData) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewErrorMessage creates an error message
func NewErrorMessage(message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: message})
}

// NewPongMessage creates a pong message
func NewPongMessage(pingTS, pongTS int64) (*Message, error) {
	latency := int64(0)
	if pingTS > 0 {
		latency = pongTS - pingTS
	}
	return NewMessage(TypePong, PongData{
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: latency,
	})
}

// =============================================================================
// Face conversion
// =============================================================================

// FromTrackedFace converts a tracked face into its wire form
func FromTrackedFace(f face.TrackedFace) FaceData {
	bs := make(map[string]float32, len(f.BlendShapes))
	for b, v := range f.BlendShapes {
		bs[b.String()] = v
	}
	return FaceData{
		ID:          f.ID.String(),
		Transform:   [16]float32(f.Pose),
		BlendShapes: bs,
	}
}

// TrackedFace converts the wire form into a tracked face. Blend shapes with
// unknown names are dropped; values are clamped to [0,1].
func (d FaceData) TrackedFace() (face.TrackedFace, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return face.TrackedFace{}, fmt.Errorf("invalid face id %q: %w", d.ID, err)
	}

	bs := make(face.BlendShapes, len(d.BlendShapes))
	for name, v := range d.BlendShapes {
		if b, ok := face.ParseBlendShape(name); ok {
			bs[b] = mgl32.Clamp(v, 0, 1)
		}
	}

	return face.TrackedFace{
		ID:          id,
		Pose:        face.Pose(d.Transform),
		BlendShapes: bs,
	}, nil
}

// TrackedFaces converts every face, skipping those that fail to convert.
// The number skipped is returned alongside.
func (d FacesData) TrackedFaces() ([]face.TrackedFace, int) {
	faces := make([]face.TrackedFace, 0, len(d.Faces))
	skipped := 0
	for _, fd := range d.Faces {
		f, err := fd.TrackedFace()
		if err != nil {
			skipped++
			continue
		}
		faces = append(faces, f)
	}
	return faces, skipped
}

// UUIDs parses the removed ids, skipping malformed ones.
func (d RemovedData) UUIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(d.IDs))
	for _, s := range d.IDs {
		if id, err := uuid.Parse(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
