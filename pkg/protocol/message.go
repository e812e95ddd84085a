// Package protocol defines the WebSocket messages exchanged between a face
// tracking sensor device and go-facecast.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Device → Service messages
	TypeHello   MessageType = "hello"   // Device identification
	TypeFaces   MessageType = "faces"   // Faces observed in one sensor update
	TypeRemoved MessageType = "removed" // Faces no longer observed

	// Service → Device messages
	TypeWelcome MessageType = "welcome" // Hello acknowledgement
	TypeStatus  MessageType = "status"  // Session status after an update
	TypeError   MessageType = "error"   // Rejected message

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Device → Service Message Types
// =============================================================================

// HelloData identifies a sensor device
type HelloData struct {
	Device string `json:"device"`          // Human readable device name
	Token  string `json:"token,omitempty"` // Shared secret, when the service requires one
}

// FacesData contains every face observed in one sensor update
type FacesData struct {
	Faces []FaceData `json:"faces"`
}

// FaceData is one tracked face as reported by the sensor
type FaceData struct {
	ID          string             `json:"id"`           // UUID
	Transform   [16]float32        `json:"transform"`    // Column-major 4x4
	BlendShapes map[string]float32 `json:"blend_shapes"` // Signal name → [0,1]
}

// RemovedData lists faces that disappeared
type RemovedData struct {
	IDs []string `json:"ids"`
}

// =============================================================================
// Service → Device Message Types
// =============================================================================

// WelcomeData acknowledges a hello
type WelcomeData struct {
	Device     string `json:"device"`
	Authorized bool   `json:"authorized"`
}

// StatusData summarizes the session after an update
type StatusData struct {
	TrackingActive       bool   `json:"tracking_active"`
	TrackedFaces         int    `json:"tracked_faces"`
	LeftEye              string `json:"left_eye,omitempty"`
	RightEye             string `json:"right_eye,omitempty"`
	TransportEnabled     bool   `json:"transport_enabled"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	TransportFailed      bool   `json:"transport_failed"`
}

// ErrorData describes a rejected message
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PongData contains pong response
type PongData struct {
	PingTS    int64 `json:"ping_ts"`
	PongTS    int64 `json:"pong_ts"`
	LatencyMs int64 `json:"latency_ms"`
}

// =============================================================================
// Typed accessors
// =============================================================================

// GetHelloData extracts hello data
func (m *Message) GetHelloData() (*HelloData, error) {
	var d HelloData
	if err := m.ParseData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetFacesData extracts faces data
func (m *Message) GetFacesData() (*FacesData, error) {
	var d FacesData
	if err := m.ParseData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetRemovedData extracts removed data
func (m *Message) GetRemovedData() (*RemovedData, error) {
	var d RemovedData
	if err := m.ParseData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetWelcomeData extracts welcome data
func (m *Message) GetWelcomeData() (*WelcomeData, error) {
	var d WelcomeData
	if err := m.ParseData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetStatusData extracts status data
func (m *Message) GetStatusData() (*StatusData, error) {
	var d StatusData
	if err := m.ParseData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetErrorData extracts error data
func (m *Message) GetErrorData() (*ErrorData, error) {
	var d ErrorData
	if err := m.ParseData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetPongData extracts pong data
func (m *Message) GetPongData() (*PongData, error) {
	var d PongData
	if err := m.ParseData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}
