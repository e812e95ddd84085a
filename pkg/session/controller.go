// Package session drives one facial tracking session: it receives sensor
// updates, classifies the tracked face's eyes, encodes every face into the
// telemetry buffer and flushes it through the transport once per update.
//
// The sensor session is a two-state machine (inactive, active). It becomes
// active only while face tracking is requested and the sensor is supported,
// authorized and the sensor offset is fully configured. Transport failures
// never escape the controller; they are folded into transport.Status.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/teslashibe/go-facecast/internal/log"
	"github.com/teslashibe/go-facecast/pkg/eyes"
	"github.com/teslashibe/go-facecast/pkg/face"
	"github.com/teslashibe/go-facecast/pkg/record"
	"github.com/teslashibe/go-facecast/pkg/telemetry"
	"github.com/teslashibe/go-facecast/pkg/transport"
)

// Handler receives sensor updates. Updates arrive serially.
type Handler interface {
	// HandleUpdate processes the faces observed in one sensor update.
	HandleUpdate(ctx context.Context, faces []face.TrackedFace) Snapshot

	// HandleRemoved processes faces that are no longer observed.
	HandleRemoved(ids []uuid.UUID) Snapshot
}

// Sensor is the facial tracking collaborator.
type Sensor interface {
	// Supported reports whether tracking hardware is present.
	Supported() bool

	// Authorized reports whether the sensor may be used.
	Authorized() bool

	// Start begins delivering updates to h.
	Start(h Handler) error

	// Stop ends the live session. Updates arriving after Stop returns are not
	// delivered; one already in delivery may still reach the handler.
	Stop() error
}

// Transmitter sends one outgoing message. transport.Sender implements it.
type Transmitter interface {
	Send(ctx context.Context, ep transport.Endpoint, payload []byte) error
}

// Controller is the session controller. It is safe for concurrent use; a
// sensor update is processed as one critical section, so settings changes
// take effect from the next update.
type Controller struct {
	sensor Sensor
	tx     Transmitter
	logger *slog.Logger
	buffer *telemetry.Buffer

	mu          sync.Mutex
	settings    Settings
	state       SensorState
	cycle       uint64
	faces       int
	trackingID  *uuid.UUID
	left        *eyes.State
	right       *eyes.State
	status      transport.Status
	lastPayload int

	cbMu     sync.RWMutex
	onChange []func(Snapshot)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a controller with everything disabled.
func New(sensor Sensor, tx Transmitter, opts ...Option) *Controller {
	c := &Controller{
		sensor: sensor,
		tx:     tx,
		buffer: telemetry.NewBuffer(record.Size, 4),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Component("session")
	}
	return c
}

// OnChange registers a callback invoked with a fresh Snapshot after every
// sensor update and every settings change. Callbacks run on the caller's
// goroutine, outside the controller lock.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.cbMu.Lock()
	c.onChange = append(c.onChange, fn)
	c.cbMu.Unlock()
}

func (c *Controller) notify(s Snapshot) {
	c.cbMu.RLock()
	callbacks := c.onChange
	c.cbMu.RUnlock()

	for _, fn := range callbacks {
		fn(s)
	}
}

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Settings returns the current settings.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Apply replaces all settings, e.g. after loading them from storage. Guard
// failures are returned joined; the remaining settings still apply.
func (c *Controller) Apply(s Settings) error {
	c.mu.Lock()

	var errs []error

	// An unchanged transport keeps its status. The endpoint may only change
	// while the transport is off.
	if !c.settings.Transport.Endpoint.Equal(s.Transport.Endpoint) {
		c.setTransportLocked(false)
		c.settings.Transport.Endpoint = s.Transport.Endpoint
	}
	if err := c.setTransportLocked(s.Transport.Enabled); err != nil {
		errs = append(errs, err)
	}

	c.settings.Offset = s.Offset
	c.setEyeTrackingLocked(s.EyeTracking)
	c.settings.FaceTracking = s.FaceTracking
	if err := c.reconcileLocked(); err != nil {
		errs = append(errs, err)
	}

	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return errors.Join(errs...)
}

// SetFaceTracking requests or releases the live sensor session. Enabling
// fails with a guard error if the sensor cannot be used yet; the request is
// remembered and honored by a later Reconcile.
func (c *Controller) SetFaceTracking(enabled bool) error {
	c.mu.Lock()
	c.settings.FaceTracking = enabled
	err := c.reconcileLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return err
}

// SetEyeTracking enables or disables eye classification.
func (c *Controller) SetEyeTracking(enabled bool) {
	c.mu.Lock()
	c.setEyeTrackingLocked(enabled)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// SetOffset replaces the sensor offset. An incomplete offset ends an active
// session and is reported as ErrIncompleteOffset while tracking is requested.
func (c *Controller) SetOffset(off face.Offset) error {
	c.mu.Lock()
	c.settings.Offset = off
	err := c.reconcileLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return err
}

// SetEndpoint replaces the transport destination. It is refused while the
// transport is enabled.
func (c *Controller) SetEndpoint(ep transport.OptionalEndpoint) error {
	c.mu.Lock()
	if c.settings.Transport.Enabled {
		c.mu.Unlock()
		return ErrTransportEnabled
	}
	c.settings.Transport.Endpoint = ep
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// SetTransport enables or disables sending. Enabling requires a complete
// endpoint. Every toggle resets the transport status.
func (c *Controller) SetTransport(enabled bool) error {
	c.mu.Lock()
	err := c.setTransportLocked(enabled)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return err
}

// Reconcile re-evaluates the sensor session guards, e.g. after the sensor's
// authorization changed.
func (c *Controller) Reconcile() error {
	c.mu.Lock()
	err := c.reconcileLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return err
}

// HandleUpdate processes one sensor update. It never blocks beyond the
// transmitter's single bounded send.
func (c *Controller) HandleUpdate(ctx context.Context, faces []face.TrackedFace) Snapshot {
	c.mu.Lock()
	if c.state != Active {
		// Late delivery from a session that has already been released.
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}

	c.cycle++
	c.faces = len(faces)

	if c.settings.EyeTracking {
		c.classifyLocked(faces)
	}

	for _, f := range faces {
		rec, err := record.Encode(f, c.settings.Offset)
		if err != nil {
			c.logger.Debug("face not encoded", "face", f.ID, "error", err)
			continue
		}
		c.buffer.Append(rec)
	}

	payload := c.buffer.Take()
	c.lastPayload = len(payload)
	if c.settings.Transport.Enabled && len(payload) > 0 {
		if ep, ok := c.settings.Transport.Endpoint.Endpoint(); ok {
			c.recordSendLocked(ep, c.tx.Send(ctx, ep, payload))
		}
	}

	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return snap
}

// HandleRemoved clears the tracking identity and eye state when the tracked
// face disappears.
func (c *Controller) HandleRemoved(ids []uuid.UUID) Snapshot {
	c.mu.Lock()
	changed := false
	if c.state == Active && c.trackingID != nil {
		for _, id := range ids {
			if id == *c.trackingID {
				c.logger.Info("tracked face lost", "face", id)
				c.clearEyesLocked()
				changed = true
				break
			}
		}
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.notify(snap)
	}
	return snap
}

func (c *Controller) guardLocked() error {
	switch {
	case c.sensor == nil || !c.sensor.Supported():
		return ErrSensorUnsupported
	case !c.sensor.Authorized():
		return ErrSensorNotAuthorized
	case !c.settings.Offset.Complete():
		return ErrIncompleteOffset
	}
	return nil
}

func (c *Controller) reconcileLocked() error {
	if !c.settings.FaceTracking {
		if c.state == Active {
			c.deactivateLocked("tracking disabled")
		}
		return nil
	}

	if err := c.guardLocked(); err != nil {
		if c.state == Active {
			c.deactivateLocked(err.Error())
		}
		return err
	}

	if c.state == Inactive {
		if err := c.sensor.Start(c); err != nil {
			return fmt.Errorf("session: start sensor: %w", err)
		}
		c.state = Active
		c.resetTrackingLocked()
		c.logger.Info("face tracking active")
	}
	return nil
}

func (c *Controller) deactivateLocked(reason string) {
	if err := c.sensor.Stop(); err != nil {
		c.logger.Warn("sensor stop failed", "error", err)
	}
	c.state = Inactive
	c.resetTrackingLocked()
	c.logger.Info("face tracking inactive", "reason", reason)
}

func (c *Controller) resetTrackingLocked() {
	c.faces = 0
	c.lastPayload = 0
	c.buffer.Reset()
	c.clearEyesLocked()
}

func (c *Controller) clearEyesLocked() {
	c.trackingID = nil
	c.left = nil
	c.right = nil
}

func (c *Controller) setEyeTrackingLocked(enabled bool) {
	if c.settings.EyeTracking == enabled {
		return
	}
	c.settings.EyeTracking = enabled
	if !enabled {
		c.clearEyesLocked()
	}
}

func (c *Controller) setTransportLocked(enabled bool) error {
	if enabled && !c.settings.Transport.Endpoint.Complete() {
		return ErrIncompleteEndpoint
	}
	if c.settings.Transport.Enabled != enabled {
		c.settings.Transport.Enabled = enabled
		c.status.Reset()
		if enabled {
			ep, _ := c.settings.Transport.Endpoint.Endpoint()
			c.logger.Info("transport enabled", "endpoint", ep.String())
		} else {
			c.logger.Info("transport disabled")
		}
	}
	return nil
}

// classifyLocked advances the eye state of the tracked face. The first face
// of an update is adopted when nothing is tracked; afterwards only the face
// with the tracked identity is classified, until it is removed.
func (c *Controller) classifyLocked(faces []face.TrackedFace) {
	var target *face.TrackedFace
	if c.trackingID != nil {
		for i := range faces {
			if faces[i].ID == *c.trackingID {
				target = &faces[i]
				break
			}
		}
	} else if len(faces) > 0 {
		target = &faces[0]
		id := target.ID
		c.trackingID = &id
		c.logger.Info("tracking face", "face", id)
	}
	if target == nil {
		return
	}

	prevLeft, prevRight := eyes.InitialState(), eyes.InitialState()
	if c.left != nil {
		prevLeft = *c.left
	}
	if c.right != nil {
		prevRight = *c.right
	}

	left := eyes.LeftEye.Next(prevLeft, target.BlendShapes)
	right := eyes.RightEye.Next(prevRight, target.BlendShapes)
	if c.left == nil || left != *c.left || c.right == nil || right != *c.right {
		c.logger.Debug("eye state", "left", left.String(), "right", right.String())
	}
	c.left = &left
	c.right = &right
}

func (c *Controller) recordSendLocked(ep transport.Endpoint, err error) {
	wasFailed := c.status.Failed
	c.status.Record(err)

	switch {
	case err != nil && !wasFailed:
		c.logger.Warn("transport failing", "endpoint", ep.String(), "error", err)
	case err == nil && wasFailed:
		c.logger.Info("transport recovered", "endpoint", ep.String())
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Cycle:             c.cycle,
		TrackingRequested: c.settings.FaceTracking,
		Sensor:            c.state,
		EyeTracking:       c.settings.EyeTracking,
		TrackedFaces:      c.faces,
		TransportEnabled:  c.settings.Transport.Enabled,
		Transport:         c.status,
		LastPayload:       c.lastPayload,
	}
	if c.trackingID != nil {
		id := *c.trackingID
		s.TrackingID = &id
	}
	if c.left != nil {
		l := *c.left
		s.LeftEye = &l
	}
	if c.right != nil {
		r := *c.right
		s.RightEye = &r
	}
	return s
}
