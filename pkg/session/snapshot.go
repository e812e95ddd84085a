package session

import (
	"github.com/google/uuid"
	"github.com/teslashibe/go-facecast/pkg/eyes"
	"github.com/teslashibe/go-facecast/pkg/transport"
)

// Snapshot is the observable state of the controller. One is emitted after
// every sensor update and every settings change.
type Snapshot struct {
	// Cycle counts processed sensor updates since the controller was created.
	Cycle uint64 `json:"cycle"`

	TrackingRequested bool        `json:"tracking_requested"`
	Sensor            SensorState `json:"sensor"`
	EyeTracking       bool        `json:"eye_tracking"`

	// TrackedFaces is the number of faces in the latest update.
	TrackedFaces int `json:"tracked_faces"`

	// TrackingID is the face the eye classifier follows, if any.
	TrackingID *uuid.UUID `json:"tracking_id,omitempty"`

	// LeftEye and RightEye are nil while unknown.
	LeftEye  *eyes.State `json:"left_eye"`
	RightEye *eyes.State `json:"right_eye"`

	TransportEnabled bool             `json:"transport_enabled"`
	Transport        transport.Status `json:"transport"`

	// LastPayload is the size in bytes of the latest outgoing message.
	LastPayload int `json:"last_payload"`
}

// TrackingActive reports whether a sensor session is live.
func (s Snapshot) TrackingActive() bool {
	return s.Sensor == Active
}
