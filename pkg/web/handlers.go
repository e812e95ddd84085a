package web

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-facecast/pkg/hub"
	"github.com/teslashibe/go-facecast/pkg/session"
)

// ToggleRequest is the body of the enable/disable endpoints
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

// SettingsResponse is returned after a settings change. Error carries the
// guard failures of the parts that could not take effect yet.
type SettingsResponse struct {
	Settings session.Settings `json:"settings"`
	Snapshot session.Snapshot `json:"snapshot"`
	Error    string           `json:"error,omitempty"`
}

// handleStatus returns the current session snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Settings())
}

// handlePutSettings replaces all settings. Guard failures do not reject
// the request; the rest of the settings apply and the failure is reported.
func (s *Server) handlePutSettings(c *fiber.Ctx) error {
	var req session.Settings
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}

	resp := SettingsResponse{}
	if err := s.ctrl.Apply(req); err != nil {
		resp.Error = err.Error()
	}
	s.settingsChanged("settings replaced")

	resp.Settings = s.ctrl.Settings()
	resp.Snapshot = s.ctrl.Snapshot()
	return c.JSON(resp)
}

// handleTracking requests or releases face tracking. A refused request is
// still remembered and activates once its guard clears.
func (s *Server) handleTracking(c *fiber.Ctx) error {
	req, err := parseToggle(c)
	if err != nil {
		return err
	}

	err = s.ctrl.SetFaceTracking(req.Enabled)
	s.settingsChanged(fmt.Sprintf("face tracking requested: %v", req.Enabled))
	return s.toggleResult(c, err)
}

func (s *Server) handleEyes(c *fiber.Ctx) error {
	req, err := parseToggle(c)
	if err != nil {
		return err
	}

	s.ctrl.SetEyeTracking(req.Enabled)
	s.settingsChanged(fmt.Sprintf("eye tracking: %v", req.Enabled))
	return s.toggleResult(c, nil)
}

func (s *Server) handleTransport(c *fiber.Ctx) error {
	req, err := parseToggle(c)
	if err != nil {
		return err
	}

	if err := s.ctrl.SetTransport(req.Enabled); err != nil {
		return s.toggleResult(c, err)
	}
	s.settingsChanged(fmt.Sprintf("transport: %v", req.Enabled))
	return s.toggleResult(c, nil)
}

func parseToggle(c *fiber.Ctx) (ToggleRequest, error) {
	var req ToggleRequest
	if err := c.BodyParser(&req); err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	return req, nil
}

func (s *Server) toggleResult(c *fiber.Ctx, err error) error {
	if err != nil {
		s.AddLog("error", err.Error())
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":    err.Error(),
			"snapshot": s.ctrl.Snapshot(),
		})
	}
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) settingsChanged(what string) {
	s.AddLog("settings", what)
	if s.OnSettingsChanged != nil {
		s.OnSettingsChanged(s.ctrl.Settings())
	}
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	snap := s.ctrl.Snapshot()
	return c.JSON(fiber.Map{
		"status":          "ok",
		"version":         s.opts.Version,
		"tracking_active": snap.TrackingActive(),
		"dashboards":      s.statusHub.ClientCount(),
	})
}

// handleMetrics renders counters in the Prometheus text format
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	snap := s.ctrl.Snapshot()

	var b strings.Builder
	metric(&b, "facecast_cycles", "counter", "Sensor updates processed", snap.Cycle)
	metric(&b, "facecast_tracking_active", "gauge", "Whether a sensor session is live", boolGauge(snap.TrackingActive()))
	metric(&b, "facecast_tracked_faces", "gauge", "Faces in the latest update", snap.TrackedFaces)
	metric(&b, "facecast_transport_enabled", "gauge", "Whether the UDP transport is enabled", boolGauge(snap.TransportEnabled))
	metric(&b, "facecast_transport_consecutive_successes", "gauge", "Sends since the last failure", snap.Transport.ConsecutiveSuccesses)
	metric(&b, "facecast_transport_failed", "gauge", "Whether the latest send failed", boolGauge(snap.Transport.Failed))

	if s.opts.SenderStats != nil {
		st := s.opts.SenderStats()
		metric(&b, "facecast_datagrams_sent", "counter", "Datagrams written", st.Datagrams)
		metric(&b, "facecast_bytes_sent", "counter", "Payload bytes written", st.Bytes)
		metric(&b, "facecast_send_failures", "counter", "Failed sends", st.Failures)
	}
	if s.opts.SensorStats != nil {
		st := s.opts.SensorStats()
		metric(&b, "facecast_sensor_devices", "gauge", "Connected sensor devices", st.DeviceCount)
		metric(&b, "facecast_sensor_messages_received", "counter", "Messages received from devices", st.MessagesReceived)
		metric(&b, "facecast_sensor_updates_delivered", "counter", "Updates delivered to the session", st.UpdatesDelivered)
		metric(&b, "facecast_sensor_updates_dropped", "counter", "Updates received with no live session", st.UpdatesDropped)
		metric(&b, "facecast_sensor_faces_rejected", "counter", "Malformed faces skipped", st.FacesRejected)
		metric(&b, "facecast_sensor_messages_dropped", "counter", "Messages dropped for devices not keeping up", st.MessagesDropped)
	}

	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(b.String())
}

func metric(b *strings.Builder, name, kind, help string, value any) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
}

func boolGauge(v bool) int {
	if v {
		return 1
	}
	return 0
}

// handleHubWS subscribes a websocket to h until it disconnects.
func (s *Server) handleHubWS(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		hub.NewClient(h, c).Run()
	}
}
