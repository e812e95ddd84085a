package session

import (
	"github.com/teslashibe/go-facecast/pkg/face"
	"github.com/teslashibe/go-facecast/pkg/transport"
)

// Settings is everything an operator configures. It is loaded and saved
// wholesale by the configuration store.
type Settings struct {
	// FaceTracking requests a live sensor session.
	FaceTracking bool `yaml:"face_tracking" json:"face_tracking"`

	// EyeTracking enables gaze and eyelid classification.
	EyeTracking bool `yaml:"eye_tracking" json:"eye_tracking"`

	// Offset is added to every face position before encoding.
	Offset face.Offset `yaml:"offset" json:"offset"`

	// Transport configures the UDP destination.
	Transport TransportSettings `yaml:"transport" json:"transport"`
}

// TransportSettings configures the UDP destination.
type TransportSettings struct {
	Enabled  bool                       `yaml:"enabled" json:"enabled"`
	Endpoint transport.OptionalEndpoint `yaml:"endpoint" json:"endpoint"`
}
