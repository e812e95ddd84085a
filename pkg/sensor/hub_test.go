package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-facecast/pkg/eyes"
	"github.com/teslashibe/go-facecast/pkg/face"
	"github.com/teslashibe/go-facecast/pkg/protocol"
	"github.com/teslashibe/go-facecast/pkg/record"
	"github.com/teslashibe/go-facecast/pkg/session"
	"github.com/teslashibe/go-facecast/pkg/transport"
)

type recordingHandler struct {
	mu      sync.Mutex
	updates [][]face.TrackedFace
	removed [][]uuid.UUID
}

func (r *recordingHandler) HandleUpdate(ctx context.Context, faces []face.TrackedFace) session.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, faces)
	return session.Snapshot{}
}

func (r *recordingHandler) HandleRemoved(ids []uuid.UUID) session.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, ids)
	return session.Snapshot{}
}

func (r *recordingHandler) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates), len(r.removed)
}

func testFace() face.TrackedFace {
	bs := face.BlendShapes{}
	for _, b := range face.AllBlendShapes() {
		bs[b] = 0
	}
	return face.TrackedFace{ID: uuid.New(), Pose: face.IdentityPose(), BlendShapes: bs}
}

func startServer(t *testing.T, hub *Hub, addr string) {
	t.Helper()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterRoutes(app)
	hub.RegisterAPIRoutes(app.Group("/api"))

	go app.Listen(addr)
	t.Cleanup(func() { app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
}

func dialClient(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewHub(t *testing.T) {
	hub := NewHub(DefaultConfig())

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}
	if hub.DeviceCount() != 0 {
		t.Error("DeviceCount should be 0 initially")
	}
	if hub.Supported() {
		t.Error("hub without routes should not be supported")
	}
	if hub.Authorized() {
		t.Error("hub without devices should not be authorized")
	}
}

func TestRegisterRoutes(t *testing.T) {
	hub := NewHub(DefaultConfig())
	app := fiber.New()

	hub.RegisterRoutes(app)
	hub.RegisterAPIRoutes(app.Group("/api"))

	if !hub.Supported() {
		t.Error("hub should be supported once routes are registered")
	}
}

func TestGetStats(t *testing.T) {
	hub := NewHub(DefaultConfig())

	stats := hub.GetStats()
	if stats.DeviceCount != 0 || stats.MessagesReceived != 0 || stats.UpdatesDelivered != 0 {
		t.Errorf("fresh stats = %+v, want zero", stats)
	}
}

func TestGenerateDeviceID(t *testing.T) {
	id := generateDeviceID()
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("generateDeviceID() = %q, not a uuid: %v", id, err)
	}
}

func TestSendToNonexistentDevice(t *testing.T) {
	hub := NewHub(DefaultConfig())

	msg, _ := protocol.NewErrorMessage("x")
	if err := hub.SendTo("nonexistent", msg); !errors.Is(err, ErrDeviceNotConnected) {
		t.Errorf("SendTo error = %v, want ErrDeviceNotConnected", err)
	}
}

func TestHelloAuthorizes(t *testing.T) {
	hub := NewHub(DefaultConfig())
	var changes atomic.Int32
	var last atomic.Bool
	hub.OnAuthorizedChange(func(authorized bool) {
		changes.Add(1)
		last.Store(authorized)
	})
	startServer(t, hub, ":18180")

	c := dialClient(t, "ws://localhost:18180/ws/sensor/phone")
	welcome, err := c.Hello("test phone", "")
	if err != nil {
		t.Fatalf("Hello error: %v", err)
	}
	if !welcome.Authorized || welcome.Device != "test phone" {
		t.Errorf("welcome = %+v", welcome)
	}
	if !hub.Authorized() {
		t.Error("hub should be authorized after hello")
	}
	time.Sleep(50 * time.Millisecond)
	if changes.Load() != 1 || !last.Load() {
		t.Errorf("auth callback: changes=%d last=%v, want 1 true", changes.Load(), last.Load())
	}
	if hub.GetDevice("phone") == nil {
		t.Error("GetDevice should return the connected device")
	}

	c.Close()
	time.Sleep(100 * time.Millisecond)

	if hub.Authorized() {
		t.Error("hub should not be authorized after the device left")
	}
	if hub.DeviceCount() != 0 {
		t.Errorf("DeviceCount = %d, want 0 after disconnect", hub.DeviceCount())
	}
	if changes.Load() != 2 || last.Load() {
		t.Errorf("auth callback: changes=%d last=%v, want 2 false", changes.Load(), last.Load())
	}
}

func TestHelloBadToken(t *testing.T) {
	hub := NewHub(Config{Token: "secret"})
	startServer(t, hub, ":18181")

	c := dialClient(t, "ws://localhost:18181/ws/sensor")
	welcome, err := c.Hello("intruder", "nope")
	if !errors.Is(err, ErrBadToken) {
		t.Fatalf("Hello error = %v, want ErrBadToken", err)
	}
	if welcome == nil || welcome.Authorized {
		t.Errorf("welcome = %+v, want unauthorized", welcome)
	}
	if hub.Authorized() {
		t.Error("hub should not be authorized by a bad token")
	}

	good := dialClient(t, "ws://localhost:18181/ws/sensor")
	if _, err := good.Hello("phone", "secret"); err != nil {
		t.Fatalf("Hello with token: %v", err)
	}
	if !hub.Authorized() {
		t.Error("hub should be authorized by the right token")
	}
}

func TestFacesRequireHello(t *testing.T) {
	hub := NewHub(DefaultConfig())
	h := &recordingHandler{}
	hub.Start(h)
	startServer(t, hub, ":18182")

	c := dialClient(t, "ws://localhost:18182/ws/sensor")
	if err := c.SendFaces([]face.TrackedFace{testFace()}); err != nil {
		t.Fatalf("SendFaces error: %v", err)
	}

	msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage error: %v", err)
	}
	if msg.Type != protocol.TypeError {
		t.Errorf("Type = %s, want error", msg.Type)
	}
	if n, _ := h.counts(); n != 0 {
		t.Errorf("handler got %d updates, want 0", n)
	}
}

func TestFacesForwardedOnlyWhileStarted(t *testing.T) {
	hub := NewHub(DefaultConfig())
	h := &recordingHandler{}
	startServer(t, hub, ":18183")

	c := dialClient(t, "ws://localhost:18183/ws/sensor/phone")
	if _, err := c.Hello("phone", ""); err != nil {
		t.Fatalf("Hello error: %v", err)
	}

	f := testFace()
	c.SendFaces([]face.TrackedFace{f})
	time.Sleep(50 * time.Millisecond)
	if n, _ := h.counts(); n != 0 {
		t.Fatalf("handler got %d updates before Start", n)
	}
	if hub.GetStats().UpdatesDropped != 1 {
		t.Errorf("UpdatesDropped = %d, want 1", hub.GetStats().UpdatesDropped)
	}

	hub.Start(h)
	c.SendFaces([]face.TrackedFace{f})
	time.Sleep(50 * time.Millisecond)

	h.mu.Lock()
	if len(h.updates) != 1 || len(h.updates[0]) != 1 || h.updates[0][0].ID != f.ID {
		t.Errorf("updates = %+v, want one update with face %s", h.updates, f.ID)
	}
	h.mu.Unlock()

	hub.Stop()
	c.SendFaces([]face.TrackedFace{f})
	time.Sleep(50 * time.Millisecond)
	if n, _ := h.counts(); n != 1 {
		t.Errorf("handler got %d updates, want 1 after Stop", n)
	}
}

func TestRemovedForwarded(t *testing.T) {
	hub := NewHub(DefaultConfig())
	h := &recordingHandler{}
	hub.Start(h)
	startServer(t, hub, ":18184")

	c := dialClient(t, "ws://localhost:18184/ws/sensor/phone")
	if _, err := c.Hello("phone", ""); err != nil {
		t.Fatalf("Hello error: %v", err)
	}

	f := testFace()
	c.SendFaces([]face.TrackedFace{f})
	c.SendRemoved([]uuid.UUID{f.ID})
	time.Sleep(50 * time.Millisecond)

	h.mu.Lock()
	if len(h.removed) != 1 || h.removed[0][0] != f.ID {
		t.Errorf("removed = %v, want [[%s]]", h.removed, f.ID)
	}
	h.mu.Unlock()

	// Already removed, so leaving reports nothing more.
	c.Close()
	time.Sleep(100 * time.Millisecond)
	if _, n := h.counts(); n != 1 {
		t.Errorf("removals = %d, want 1", n)
	}
}

func TestDisconnectRemovesFaces(t *testing.T) {
	hub := NewHub(DefaultConfig())
	h := &recordingHandler{}
	hub.Start(h)
	startServer(t, hub, ":18185")

	c := dialClient(t, "ws://localhost:18185/ws/sensor/phone")
	if _, err := c.Hello("phone", ""); err != nil {
		t.Fatalf("Hello error: %v", err)
	}

	f := testFace()
	c.SendFaces([]face.TrackedFace{f})
	time.Sleep(50 * time.Millisecond)
	c.Close()
	time.Sleep(100 * time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.removed) != 1 || len(h.removed[0]) != 1 || h.removed[0][0] != f.ID {
		t.Errorf("removed = %v, want [[%s]]", h.removed, f.ID)
	}
}

func TestMalformedFacesSkipped(t *testing.T) {
	hub := NewHub(DefaultConfig())
	h := &recordingHandler{}
	hub.Start(h)
	startServer(t, hub, ":18186")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18186/ws/sensor/raw", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	hello, _ := protocol.NewHelloMessage("raw", "")
	data, _ := hello.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)
	ws.ReadMessage()

	good := protocol.FromTrackedFace(testFace())
	bad := good
	bad.ID = "not-a-uuid"
	msg, _ := protocol.NewMessage(protocol.TypeFaces, protocol.FacesData{Faces: []protocol.FaceData{good, bad}})
	data, _ = msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)
	time.Sleep(50 * time.Millisecond)

	h.mu.Lock()
	if len(h.updates) != 1 || len(h.updates[0]) != 1 {
		t.Errorf("updates = %d, want one update with one face", len(h.updates))
	}
	h.mu.Unlock()
	if hub.GetStats().FacesRejected != 1 {
		t.Errorf("FacesRejected = %d, want 1", hub.GetStats().FacesRejected)
	}
}

func TestPing(t *testing.T) {
	hub := NewHub(DefaultConfig())
	startServer(t, hub, ":18187")

	c := dialClient(t, "ws://localhost:18187/ws/sensor")
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping error: %v", err)
	}

	msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage error: %v", err)
	}
	if msg.Type != protocol.TypePong {
		t.Errorf("Type = %s, want pong", msg.Type)
	}
}

func TestPublishStatus(t *testing.T) {
	hub := NewHub(DefaultConfig())
	startServer(t, hub, ":18188")

	c := dialClient(t, "ws://localhost:18188/ws/sensor/phone")
	if _, err := c.Hello("phone", ""); err != nil {
		t.Fatalf("Hello error: %v", err)
	}

	snap := session.Snapshot{Sensor: session.Active, TrackedFaces: 1}
	hub.PublishStatus(snap)

	msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage error: %v", err)
	}
	if msg.Type != protocol.TypeStatus {
		t.Fatalf("Type = %s, want status", msg.Type)
	}
	status, _ := msg.GetStatusData()
	if !status.TrackingActive || status.TrackedFaces != 1 {
		t.Errorf("status = %+v", status)
	}

	// Unchanged status is not resent; the next message is the changed one.
	hub.PublishStatus(snap)
	snap.TrackedFaces = 2
	hub.PublishStatus(snap)

	msg, err = c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage error: %v", err)
	}
	status, _ = msg.GetStatusData()
	if status.TrackedFaces != 2 {
		t.Errorf("TrackedFaces = %d, want 2", status.TrackedFaces)
	}
}

func TestPublishStatusDropsForStalledDevice(t *testing.T) {
	hub := NewHub(DefaultConfig())

	// No writer drains this device's queue.
	d := newDevice("stalled", nil)
	d.authorized = true
	hub.mu.Lock()
	hub.devices[d.ID] = d
	hub.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= sendQueueSize+4; i++ {
			hub.PublishStatus(session.Snapshot{TrackedFaces: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishStatus blocked on a stalled device")
	}

	if got := hub.GetStats().MessagesDropped; got != 4 {
		t.Errorf("MessagesDropped = %d, want 4", got)
	}
	if len(d.send) != sendQueueSize {
		t.Errorf("queued = %d, want %d", len(d.send), sendQueueSize)
	}

	// A dropped status goes out on the next publish once there is room.
	<-d.send
	hub.PublishStatus(session.Snapshot{TrackedFaces: sendQueueSize + 4})
	if len(d.send) != sendQueueSize {
		t.Errorf("queued = %d, want %d after retry", len(d.send), sendQueueSize)
	}
	if got := hub.GetStats().MessagesDropped; got != 4 {
		t.Errorf("MessagesDropped = %d, want 4 after retry", got)
	}
}

func TestDeviceSendAfterClose(t *testing.T) {
	d := newDevice("gone", nil)
	d.close()

	msg, _ := protocol.NewErrorMessage("x")
	if err := d.Send(msg); !errors.Is(err, ErrDeviceNotConnected) {
		t.Errorf("Send error = %v, want ErrDeviceNotConnected", err)
	}
}

func TestSameIDReconnect(t *testing.T) {
	hub := NewHub(DefaultConfig())
	var mu sync.Mutex
	var changes []bool
	hub.OnAuthorizedChange(func(authorized bool) {
		mu.Lock()
		changes = append(changes, authorized)
		mu.Unlock()
	})
	recorded := func() []bool {
		mu.Lock()
		defer mu.Unlock()
		return append([]bool(nil), changes...)
	}

	h := &recordingHandler{}
	hub.Start(h)
	startServer(t, hub, ":18190")

	first := dialClient(t, "ws://localhost:18190/ws/sensor/phone")
	if _, err := first.Hello("phone", ""); err != nil {
		t.Fatalf("Hello error: %v", err)
	}
	f := testFace()
	first.SendFaces([]face.TrackedFace{f})
	time.Sleep(50 * time.Millisecond)

	second := dialClient(t, "ws://localhost:18190/ws/sensor/phone")
	time.Sleep(100 * time.Millisecond)

	if hub.Authorized() {
		t.Error("hub should not be authorized before the new connection says hello")
	}
	if got := recorded(); len(got) != 2 || !got[0] || got[1] {
		t.Errorf("auth changes = %v, want [true false]", got)
	}
	if hub.DeviceCount() != 1 {
		t.Errorf("DeviceCount = %d, want 1", hub.DeviceCount())
	}
	if _, n := h.counts(); n != 0 {
		t.Errorf("removals = %d, want 0 while the face is still reported", n)
	}

	if _, err := second.Hello("phone", ""); err != nil {
		t.Fatalf("Hello error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := recorded(); len(got) != 3 || !got[2] {
		t.Errorf("auth changes = %v, want [true false true]", got)
	}

	// The face carried over to the new connection leaves with it.
	second.Close()
	time.Sleep(100 * time.Millisecond)

	h.mu.Lock()
	if len(h.removed) != 1 || len(h.removed[0]) != 1 || h.removed[0][0] != f.ID {
		t.Errorf("removed = %v, want [[%s]]", h.removed, f.ID)
	}
	h.mu.Unlock()
	if got := recorded(); len(got) != 4 || got[3] {
		t.Errorf("auth changes = %v, want [true false true false]", got)
	}
}

type blockingHandler struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingHandler) HandleUpdate(ctx context.Context, faces []face.TrackedFace) session.Snapshot {
	b.entered <- struct{}{}
	<-b.release
	return session.Snapshot{}
}

func (b *blockingHandler) HandleRemoved(ids []uuid.UUID) session.Snapshot {
	return session.Snapshot{}
}

func TestStopDoesNotWaitForDelivery(t *testing.T) {
	hub := NewHub(DefaultConfig())
	bh := &blockingHandler{entered: make(chan struct{}, 1), release: make(chan struct{})}
	hub.Start(bh)
	startServer(t, hub, ":18191")

	c := dialClient(t, "ws://localhost:18191/ws/sensor/phone")
	if _, err := c.Hello("phone", ""); err != nil {
		t.Fatalf("Hello error: %v", err)
	}
	c.SendFaces([]face.TrackedFace{testFace()})

	select {
	case <-bh.entered:
	case <-time.After(time.Second):
		t.Fatal("update was not delivered")
	}

	stopped := make(chan struct{})
	go func() {
		hub.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop waited for the update in flight")
	}
	close(bh.release)

	c.SendFaces([]face.TrackedFace{testFace()})
	time.Sleep(50 * time.Millisecond)
	if got := hub.GetStats().UpdatesDropped; got != 1 {
		t.Errorf("UpdatesDropped = %d, want 1 after Stop", got)
	}
}

func TestStatusFromSnapshot(t *testing.T) {
	left := eyes.State{Position: eyes.Left, Shape: eyes.Open}
	snap := session.Snapshot{
		Sensor:           session.Active,
		TrackedFaces:     3,
		LeftEye:          &left,
		TransportEnabled: true,
		Transport:        transport.Status{ConsecutiveSuccesses: 7},
	}

	got := StatusFromSnapshot(snap)
	want := protocol.StatusData{
		TrackingActive:       true,
		TrackedFaces:         3,
		LeftEye:              left.String(),
		TransportEnabled:     true,
		ConsecutiveSuccesses: 7,
	}
	if got != want {
		t.Errorf("StatusFromSnapshot() = %+v, want %+v", got, want)
	}
}

func TestAPIListDevices(t *testing.T) {
	hub := NewHub(DefaultConfig())
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterAPIRoutes(app.Group("/api"))

	req := httptest.NewRequest("GET", "/api/devices/", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"count":0`) {
		t.Errorf("Body = %s, want count 0", body)
	}

	req = httptest.NewRequest("GET", "/api/devices/stats", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	var stats Stats
	json.NewDecoder(resp.Body).Decode(&stats)
	if stats.DeviceCount != 0 {
		t.Errorf("DeviceCount = %d, want 0", stats.DeviceCount)
	}
}

type captureTransmitter struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *captureTransmitter) Send(ctx context.Context, ep transport.Endpoint, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, append([]byte(nil), payload...))
	return nil
}

func (c *captureTransmitter) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloads
}

func TestHubDrivesController(t *testing.T) {
	hub := NewHub(DefaultConfig())
	tx := &captureTransmitter{}
	ctrl := session.New(hub, tx)
	hub.OnAuthorizedChange(func(bool) { ctrl.Reconcile() })
	startServer(t, hub, ":18189")

	port := uint16(9999)
	a, b, cc, d := uint8(127), uint8(0), uint8(0), uint8(1)
	settings := session.Settings{
		FaceTracking: true,
		EyeTracking:  true,
		Offset:       face.NewOffset(0, 0, 0),
		Transport: session.TransportSettings{
			Enabled:  true,
			Endpoint: transport.OptionalEndpoint{A: &a, B: &b, C: &cc, D: &d, Port: &port},
		},
	}
	if err := ctrl.Apply(settings); !errors.Is(err, session.ErrSensorNotAuthorized) {
		t.Fatalf("Apply error = %v, want ErrSensorNotAuthorized", err)
	}

	c := dialClient(t, "ws://localhost:18189/ws/sensor/phone")
	if _, err := c.Hello("phone", ""); err != nil {
		t.Fatalf("Hello error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if !ctrl.Snapshot().TrackingActive() {
		t.Fatal("remembered tracking request should activate once the device is accepted")
	}

	c.SendFaces([]face.TrackedFace{testFace()})
	time.Sleep(50 * time.Millisecond)

	payloads := tx.sent()
	if len(payloads) != 1 || len(payloads[0]) != record.Size {
		t.Fatalf("sent %d payloads, want one %d byte record", len(payloads), record.Size)
	}
	snap := ctrl.Snapshot()
	if snap.Transport.ConsecutiveSuccesses != 1 || snap.TrackedFaces != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	c.Close()
	time.Sleep(100 * time.Millisecond)
	if ctrl.Snapshot().TrackingActive() {
		t.Error("tracking should end when the last device leaves")
	}
}
