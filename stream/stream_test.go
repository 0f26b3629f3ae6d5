package stream

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/darkroomengineering/satus-sub000/fluid"
	"github.com/darkroomengineering/satus-sub000/software"
	"github.com/darkroomengineering/satus-sub000/telemetry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestDownsampleBoxFilter(t *testing.T) {
	// 4×2 source: left half R=1, right half R=3; G equals the row index.
	w, h := 4, 2
	rgba := make([]float32, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			if x < 2 {
				rgba[i] = 1
			} else {
				rgba[i] = 3
			}
			rgba[i+1] = float32(y)
		}
	}

	f := Downsample(rgba, w, h, 8)
	if f.Width != 2 || f.Height != 2 {
		t.Fatalf("size %dx%d, want clamp to 2x2", f.Width, f.Height)
	}
	want := []float32{1, 0, 3, 0, 1, 1, 3, 1}
	for i, v := range want {
		if f.Flow[i] != v {
			t.Errorf("Flow[%d] = %v, want %v", i, f.Flow[i], v)
		}
	}

	f = Downsample(rgba, w, h, 1)
	if f.Flow[0] != 2 || f.Flow[1] != 0.5 {
		t.Errorf("1x1 average = (%v, %v), want (2, 0.5)", f.Flow[0], f.Flow[1])
	}

	if f := Downsample(nil, w, h, 2); f.Width != 0 {
		t.Error("short input should produce an empty frame")
	}
}

func TestFrameEncodeDecode(t *testing.T) {
	f := Frame{Step: 42, Width: 2, Height: 1, Flow: []float32{0.5, -0.25, 1e-3, 3}}
	got, err := DecodeFrame(f.Encode())
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if got.Step != 42 || got.Width != 2 || got.Height != 1 {
		t.Fatalf("header = %+v", got)
	}
	for i, v := range f.Flow {
		if math.Abs(float64(got.Flow[i]-v)) > 1e-3*math.Max(1, math.Abs(float64(v))) {
			t.Errorf("Flow[%d] = %v, want ≈ %v", i, got.Flow[i], v)
		}
	}
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	good := Frame{Width: 1, Height: 1, Flow: []float32{1, 2}}.Encode()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte{0, 0, 0, 0}, good[4:]...)},
		{"truncated", good[:len(good)-1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFrame(tt.data); !errors.Is(err, ErrBadFrame) {
				t.Errorf("err = %v, want ErrBadFrame", err)
			}
		})
	}
}

// dial connects a client to hub and consumes its hello.
func dial(t *testing.T, srv *httptest.Server, hub *Hub, query string) *websocket.Conn {
	t.Helper()
	before := hub.Clients()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	var hello Hello
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != "hello" {
		t.Fatalf("first message type %q", hello.Type)
	}
	waitFor(t, func() bool { return hub.Clients() > before })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubPointerMessagesBecomeSplats(t *testing.T) {
	hub := NewHub(HubOptions{FrameResolution: 16, Device: "software", Logger: quiet})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv, hub, "?width=200&height=100")
	for _, m := range []ClientMessage{
		{Type: MsgMove, X: 100, Y: 50},
		{Type: MsgMove, X: 110, Y: 40},
		{Type: MsgLeave},
		{Type: MsgMove, X: 10, Y: 10},
		{Type: MsgMove, X: 10, Y: 10},
		{Type: "unknown"},
		{Type: MsgMove, X: 20, Y: 10},
	} {
		if err := conn.WriteJSON(m); err != nil {
			t.Fatalf("WriteJSON: %v", err)
		}
	}

	var splats []fluid.Splat
	waitFor(t, func() bool {
		splats = append(splats, hub.DrainPendingSplats()...)
		return len(splats) >= 2
	})
	if len(splats) != 2 {
		t.Fatalf("got %d splats, want 2", len(splats))
	}
	first := splats[0]
	if !near(first.X, 0.55) || !near(first.Y, 0.6) {
		t.Errorf("first splat at (%v, %v), want (0.55, 0.6)", first.X, first.Y)
	}
	if first.DX != 50 || first.DY != 50 {
		t.Errorf("first splat impulse (%v, %v), want (50, 50)", first.DX, first.DY)
	}
	if second := splats[1]; second.DX != 50 || second.DY != 0 {
		t.Errorf("second splat impulse (%v, %v), want (50, 0)", second.DX, second.DY)
	}
}

func TestHubClientsHaveSeparateBaselines(t *testing.T) {
	hub := NewHub(HubOptions{Logger: quiet})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	a := dial(t, srv, hub, "?width=100&height=100")
	b := dial(t, srv, hub, "?width=100&height=100")

	// Each client's first move is only a baseline, so interleaving does
	// not create a stroke between the two pointers.
	_ = a.WriteJSON(ClientMessage{Type: MsgMove, X: 10, Y: 10})
	_ = b.WriteJSON(ClientMessage{Type: MsgMove, X: 90, Y: 90})
	_ = a.WriteJSON(ClientMessage{Type: MsgMove, X: 11, Y: 10})
	_ = b.WriteJSON(ClientMessage{Type: MsgMove, X: 89, Y: 90})

	var splats []fluid.Splat
	waitFor(t, func() bool {
		splats = append(splats, hub.DrainPendingSplats()...)
		return len(splats) >= 2
	})
	for _, sp := range splats {
		if math.Abs(float64(sp.DX)) != 5 || sp.DY != 0 {
			t.Errorf("splat impulse (%v, %v), want (±5, 0)", sp.DX, sp.DY)
		}
	}
}

func TestHubBroadcastAndDisconnect(t *testing.T) {
	hub := NewHub(HubOptions{Logger: quiet})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv, hub, "")
	frame := Frame{Step: 7, Width: 1, Height: 1, Flow: []float32{0.5, 0.25}}
	if n := hub.Broadcast(frame.Encode()); n != 1 {
		t.Fatalf("Broadcast reached %d clients, want 1", n)
	}

	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("message type %d, want binary", mt)
	}
	got, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if got.Step != 7 || got.Flow[0] != 0.5 || got.Flow[1] != 0.25 {
		t.Errorf("frame = %+v", got)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.Clients() == 0 })
}

func TestStreamerBroadcastsSimulatedFlow(t *testing.T) {
	dev := software.New(software.Options{Logger: quiet})
	hub := NewHub(HubOptions{Logger: quiet})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	sim, err := fluid.New(dev, fluid.Options{SimResolution: 16, DyeResolution: 16, Source: hub, Logger: quiet})
	if err != nil {
		t.Fatalf("fluid.New: %v", err)
	}
	defer sim.Dispose()

	dir := t.TempDir()
	out, err := telemetry.NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	st := NewStreamer(sim, hub, StreamerOptions{
		Interval:      time.Millisecond,
		DT:            1.0 / 60,
		Resolution:    4,
		StatsInterval: 2,
		Output:        out,
		Logger:        quiet,
	})

	// No clients: the step still runs but nothing is broadcast.
	if err := st.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if st.Frames() != 0 {
		t.Fatalf("Frames() = %d with no clients", st.Frames())
	}

	conn := dial(t, srv, hub, "?width=16&height=16")
	_ = conn.WriteJSON(ClientMessage{Type: MsgMove, X: 4, Y: 8})
	_ = conn.WriteJSON(ClientMessage{Type: MsgMove, X: 12, Y: 8})
	waitFor(t, func() bool { return hubPending(hub) })

	if err := st.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if st.Frames() != 1 {
		t.Fatalf("Frames() = %d, want 1", st.Frames())
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	frame, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if frame.Step != 2 || frame.Width != 4 {
		t.Fatalf("frame step %d width %d", frame.Step, frame.Width)
	}
	var maxX float32
	for i := 0; i < len(frame.Flow); i += 2 {
		maxX = max(maxX, frame.Flow[i])
	}
	if maxX <= 0 {
		t.Error("rightward stroke should leave positive x flow in the frame")
	}

	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	recs, err := telemetry.ReadSteps(dir + "/steps.csv")
	if err != nil {
		t.Fatalf("ReadSteps: %v", err)
	}
	if len(recs) != 1 || recs[0].Step != 2 || recs[0].Splats != 1 {
		t.Errorf("step records = %+v", recs)
	}
}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-6
}

// hubPending reports whether any client has queued splats without draining.
func hubPending(h *Hub) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.capture.Pending() > 0 {
			return true
		}
	}
	return false
}
