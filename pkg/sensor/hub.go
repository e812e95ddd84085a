// Package sensor connects face tracking devices to the session controller.
//
// A device (for example a phone running a face tracking app) opens a
// WebSocket to /ws/sensor, introduces itself with a hello, then streams one
// faces message per sensor update and a removed message when faces leave.
// Hub implements session.Sensor: it is supported once its routes are
// registered and authorized while at least one device has been accepted.
package sensor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-facecast/internal/log"
	"github.com/teslashibe/go-facecast/pkg/protocol"
	"github.com/teslashibe/go-facecast/pkg/session"
)

// Config configures the ingest hub.
type Config struct {
	// Token, when set, must be presented in every device hello.
	Token string `yaml:"token" json:"-"`

	// Debug logs every connection and parse error.
	Debug bool `yaml:"debug" json:"debug"`
}

// DefaultConfig returns a Config that accepts any device.
func DefaultConfig() Config {
	return Config{}
}

const (
	// Time allowed to write a message to the device.
	writeWait = time.Second

	// Outbound messages queued per device before Send starts dropping.
	sendQueueSize = 16
)

// Device is a connected sensor device.
type Device struct {
	ID        string
	Name      string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	send      chan []byte
	done      chan struct{}
	pumpDone  chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	authorized bool
	faces      map[uuid.UUID]struct{}
	lastStatus *protocol.StatusData
}

func newDevice(id string, conn *websocket.Conn) *Device {
	now := time.Now()
	return &Device{
		ID:        id,
		Name:      id,
		Conn:      conn,
		Connected: now,
		LastSeen:  now,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		pumpDone:  make(chan struct{}),
		faces:     make(map[uuid.UUID]struct{}),
	}
}

// Send queues a message for the device. It never blocks: when the device
// is not draining its queue the message is dropped with ErrSendQueueFull.
func (d *Device) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	select {
	case <-d.done:
		return ErrDeviceNotConnected
	default:
	}

	select {
	case d.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// writePump writes queued messages to the connection until the device is
// closed or a write fails.
func (d *Device) writePump() {
	defer close(d.pumpDone)

	for {
		select {
		case <-d.done:
			return
		case data := <-d.send:
			d.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := d.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				d.Conn.Close()
				return
			}
		}
	}
}

func (d *Device) close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Device) isAuthorized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authorized
}

// Hub manages WebSocket connections from sensor devices
type Hub struct {
	config Config
	logger *slog.Logger

	mu      sync.RWMutex
	devices map[string]*Device
	handler session.Handler
	routed  bool

	// deliverMu serializes updates from all devices into the handler.
	deliverMu sync.Mutex

	cbMu               sync.RWMutex
	onAuthorizedChange func(authorized bool)

	// Stats
	messagesReceived atomic.Uint64
	updatesDelivered atomic.Uint64
	updatesDropped   atomic.Uint64
	facesRejected    atomic.Uint64
	messagesDropped  atomic.Uint64
}

// NewHub creates a new sensor hub
func NewHub(config Config) *Hub {
	return &Hub{
		config:  config,
		logger:  log.Component("sensor"),
		devices: make(map[string]*Device),
	}
}

// OnAuthorizedChange sets the callback fired when Authorized() flips.
func (h *Hub) OnAuthorizedChange(callback func(authorized bool)) {
	h.cbMu.Lock()
	h.onAuthorizedChange = callback
	h.cbMu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/sensor", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/sensor", websocket.New(h.handleDevice))
	app.Get("/ws/sensor/:id", websocket.New(h.handleDevice))

	h.mu.Lock()
	h.routed = true
	h.mu.Unlock()
}

// Supported reports whether devices can connect.
func (h *Hub) Supported() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.routed
}

// Authorized reports whether at least one accepted device is connected.
func (h *Hub) Authorized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.authorizedLocked()
}

func (h *Hub) authorizedLocked() bool {
	for _, d := range h.devices {
		if d.isAuthorized() {
			return true
		}
	}
	return false
}

// Start begins forwarding device updates to handler.
func (h *Hub) Start(handler session.Handler) error {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
	h.logger.Info("sensor session started")
	return nil
}

// Stop stops forwarding. Updates arriving afterwards are dropped; one
// already being delivered is not waited for.
func (h *Hub) Stop() error {
	h.mu.Lock()
	h.handler = nil
	h.mu.Unlock()
	h.logger.Info("sensor session stopped")
	return nil
}

func (h *Hub) currentHandler() session.Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// handleDevice handles a device WebSocket connection
func (h *Hub) handleDevice(c *websocket.Conn) {
	deviceID := c.Params("id")
	if deviceID == "" {
		deviceID = generateDeviceID()
	}

	device := newDevice(deviceID, c)

	// A reconnect under the same id replaces the previous connection.
	h.mu.Lock()
	wasAuthorized := h.authorizedLocked()
	old := h.devices[deviceID]
	if old != nil {
		old.close()
		old.Conn.Close()
	}
	h.devices[deviceID] = device
	nowAuthorized := h.authorizedLocked()
	count := len(h.devices)
	h.mu.Unlock()

	if h.config.Debug {
		h.logger.Info("device connected", "device", deviceID, "total", count, "replaced", old != nil)
	}
	if wasAuthorized != nowAuthorized {
		h.fireAuthorizedChange(nowAuthorized)
	}

	go device.writePump()
	defer h.disconnect(device)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if h.config.Debug {
				h.logger.Warn("device read error", "device", deviceID, "error", err)
			}
			return
		}

		device.mu.Lock()
		device.LastSeen = time.Now()
		device.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(device, data)
	}
}

func (h *Hub) disconnect(device *Device) {
	device.mu.Lock()
	ids := make([]uuid.UUID, 0, len(device.faces))
	for id := range device.faces {
		ids = append(ids, id)
	}
	device.faces = make(map[uuid.UUID]struct{})
	device.mu.Unlock()

	h.mu.Lock()
	wasAuthorized := h.authorizedLocked()
	successor := h.devices[device.ID]
	if successor == device {
		delete(h.devices, device.ID)
		successor = nil
	}
	if successor != nil {
		// The replacing connection carries on with these faces and reports
		// their removal itself.
		successor.mu.Lock()
		for _, id := range ids {
			successor.faces[id] = struct{}{}
		}
		successor.mu.Unlock()
	}
	nowAuthorized := h.authorizedLocked()
	count := len(h.devices)
	h.mu.Unlock()

	device.close()
	<-device.pumpDone

	if h.config.Debug {
		h.logger.Info("device disconnected", "device", device.ID, "total", count)
	}

	// Faces seen only through this device are gone with it.
	if successor == nil && len(ids) > 0 {
		h.deliverRemoved(ids)
	}

	if wasAuthorized != nowAuthorized {
		h.fireAuthorizedChange(nowAuthorized)
	}
}

// handleMessage processes an incoming message from a device
func (h *Hub) handleMessage(device *Device, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		if h.config.Debug {
			h.logger.Warn("parse error", "device", device.ID, "error", err)
		}
		h.replyError(device, err)
		return
	}

	switch msg.Type {
	case protocol.TypeHello:
		hello, err := msg.GetHelloData()
		if err != nil {
			h.replyError(device, err)
			return
		}
		h.handleHello(device, hello)

	case protocol.TypeFaces:
		if !device.isAuthorized() {
			h.replyError(device, ErrNotIntroduced)
			return
		}
		faces, err := msg.GetFacesData()
		if err != nil {
			h.replyError(device, err)
			return
		}
		h.handleFaces(device, faces)

	case protocol.TypeRemoved:
		if !device.isAuthorized() {
			h.replyError(device, ErrNotIntroduced)
			return
		}
		removed, err := msg.GetRemovedData()
		if err != nil {
			h.replyError(device, err)
			return
		}
		ids := removed.UUIDs()
		device.mu.Lock()
		for _, id := range ids {
			delete(device.faces, id)
		}
		device.mu.Unlock()
		h.deliverRemoved(ids)

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage(msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			device.Send(pong)
		}
	}
}

func (h *Hub) handleHello(device *Device, hello *protocol.HelloData) {
	accepted := h.config.Token == "" || hello.Token == h.config.Token

	h.mu.Lock()
	wasAuthorized := h.authorizedLocked()
	device.mu.Lock()
	device.authorized = accepted
	if hello.Device != "" {
		device.Name = hello.Device
	}
	device.mu.Unlock()
	nowAuthorized := h.authorizedLocked()
	h.mu.Unlock()

	if welcome, err := protocol.NewWelcomeMessage(device.Name, accepted); err == nil {
		device.Send(welcome)
	}
	if accepted {
		h.logger.Info("device accepted", "device", device.ID, "name", device.Name)
	} else {
		h.logger.Warn("device rejected", "device", device.ID, "name", device.Name)
	}

	if wasAuthorized != nowAuthorized {
		h.fireAuthorizedChange(nowAuthorized)
	}
}

func (h *Hub) handleFaces(device *Device, data *protocol.FacesData) {
	faces, skipped := data.TrackedFaces()
	if skipped > 0 {
		h.facesRejected.Add(uint64(skipped))
		if h.config.Debug {
			h.logger.Warn("faces rejected", "device", device.ID, "count", skipped)
		}
	}

	device.mu.Lock()
	for _, f := range faces {
		device.faces[f.ID] = struct{}{}
	}
	device.mu.Unlock()

	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	handler := h.currentHandler()
	if handler == nil {
		h.updatesDropped.Add(1)
		return
	}
	h.updatesDelivered.Add(1)
	handler.HandleUpdate(context.Background(), faces)
}

func (h *Hub) deliverRemoved(ids []uuid.UUID) {
	h.deliverMu.Lock()
	defer h.deliverMu.Unlock()

	if handler := h.currentHandler(); handler != nil {
		handler.HandleRemoved(ids)
	}
}

func (h *Hub) fireAuthorizedChange(authorized bool) {
	h.cbMu.RLock()
	cb := h.onAuthorizedChange
	h.cbMu.RUnlock()

	if cb != nil {
		cb(authorized)
	}
}

func (h *Hub) replyError(device *Device, err error) {
	if msg, merr := protocol.NewErrorMessage(err.Error()); merr == nil {
		device.Send(msg)
	}
}

// PublishStatus queues the session status for every accepted device. Devices
// only receive a status when it differs from the last one they were sent.
// A device with a full queue misses the status rather than blocking delivery.
func (h *Hub) PublishStatus(snap session.Snapshot) {
	status := StatusFromSnapshot(snap)

	h.mu.RLock()
	devices := make([]*Device, 0, len(h.devices))
	for _, d := range h.devices {
		devices = append(devices, d)
	}
	h.mu.RUnlock()

	for _, d := range devices {
		d.mu.Lock()
		send := d.authorized && (d.lastStatus == nil || *d.lastStatus != status)
		if send {
			s := status
			d.lastStatus = &s
		}
		d.mu.Unlock()

		if !send {
			continue
		}
		msg, err := protocol.NewStatusMessage(status)
		if err != nil {
			continue
		}
		if err := d.Send(msg); err != nil {
			// Not delivered, so the next publish sends it again.
			d.mu.Lock()
			d.lastStatus = nil
			d.mu.Unlock()
			h.messagesDropped.Add(1)
			if h.config.Debug {
				h.logger.Warn("status dropped", "device", d.ID, "error", err)
			}
		}
	}
}

// StatusFromSnapshot converts a session snapshot into the device status message.
func StatusFromSnapshot(snap session.Snapshot) protocol.StatusData {
	status := protocol.StatusData{
		TrackingActive:       snap.TrackingActive(),
		TrackedFaces:         snap.TrackedFaces,
		TransportEnabled:     snap.TransportEnabled,
		ConsecutiveSuccesses: snap.Transport.ConsecutiveSuccesses,
		TransportFailed:      snap.Transport.Failed,
	}
	if snap.LeftEye != nil {
		status.LeftEye = snap.LeftEye.String()
	}
	if snap.RightEye != nil {
		status.RightEye = snap.RightEye.String()
	}
	return status
}

// SendTo sends a message to a specific device
func (h *Hub) SendTo(deviceID string, msg *protocol.Message) error {
	h.mu.RLock()
	device, ok := h.devices[deviceID]
	h.mu.RUnlock()

	if !ok {
		return ErrDeviceNotConnected
	}
	return device.Send(msg)
}

// GetDevice returns a device connection by ID
func (h *Hub) GetDevice(deviceID string) *Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.devices[deviceID]
}

// DeviceCount returns the number of connected devices
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// Stats contains hub statistics
type Stats struct {
	DeviceCount      int    `json:"device_count"`
	MessagesReceived uint64 `json:"messages_received"`
	UpdatesDelivered uint64 `json:"updates_delivered"`
	UpdatesDropped   uint64 `json:"updates_dropped"`
	FacesRejected    uint64 `json:"faces_rejected"`
	MessagesDropped  uint64 `json:"messages_dropped"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		DeviceCount:      h.DeviceCount(),
		MessagesReceived: h.messagesReceived.Load(),
		UpdatesDelivered: h.updatesDelivered.Load(),
		UpdatesDropped:   h.updatesDropped.Load(),
		FacesRejected:    h.facesRejected.Load(),
		MessagesDropped:  h.messagesDropped.Load(),
	}
}

// DeviceInfo contains info about a connected device
type DeviceInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Authorized bool      `json:"authorized"`
	Connected  time.Time `json:"connected"`
	LastSeen   time.Time `json:"last_seen"`
}

// GetDeviceInfos returns info about all connected devices
func (h *Hub) GetDeviceInfos() []DeviceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]DeviceInfo, 0, len(h.devices))
	for _, d := range h.devices {
		d.mu.Lock()
		infos = append(infos, DeviceInfo{
			ID:         d.ID,
			Name:       d.Name,
			Authorized: d.authorized,
			Connected:  d.Connected,
			LastSeen:   d.LastSeen,
		})
		d.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for device inspection
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	devices := api.Group("/devices")

	devices.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"devices": h.GetDeviceInfos(),
			"count":   h.DeviceCount(),
		})
	})

	devices.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}

// generateDeviceID generates a unique device ID
func generateDeviceID() string {
	return uuid.NewString()
}
