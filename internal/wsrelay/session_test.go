package wsrelay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rtsp2ws/internal/metrics"
	"rtsp2ws/pkg/models"
)

func newTestServer(t *testing.T, stream *models.StreamDefinition) (*httptest.Server, string) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	m := metrics.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		New(conn, stream, m).Serve(r.Context())
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestSessionForwardsFrameAsTextThenBinary(t *testing.T) {
	stream := models.NewStreamDefinition("/cam", "rtsp://example.invalid/cam")
	srv, url := newTestServer(t, stream)
	defer srv.Close()

	conn := dial(t, url)
	defer conn.Close()

	waitForCount(t, stream, 1)

	stream.Publish(models.DataFrame{
		Metadata: models.Metadata{TS: 42, Media: "video", Codec: "avc1.42001E"},
		Payload:  []byte{0xAA, 0xBB},
	})

	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read text frame: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("expected text message first, got type %d", mt)
	}
	var meta models.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if meta.TS != 42 || meta.Codec != "avc1.42001E" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	mt, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read binary frame: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("expected binary message second, got type %d", mt)
	}
	if len(data) != 2 || data[0] != 0xAA || data[1] != 0xBB {
		t.Fatalf("unexpected payload: % x", data)
	}
}

func TestSessionBumpsCountOnStartAndStop(t *testing.T) {
	stream := models.NewStreamDefinition("/cam", "rtsp://example.invalid/cam")
	srv, url := newTestServer(t, stream)
	defer srv.Close()

	conn := dial(t, url)
	waitForCount(t, stream, 1)

	conn.Close()
	waitForCount(t, stream, 0)
}

func TestSessionRespondsToPingWithPong(t *testing.T) {
	stream := models.NewStreamDefinition("/cam", "rtsp://example.invalid/cam")
	srv, url := newTestServer(t, stream)
	defer srv.Close()

	conn := dial(t, url)
	defer conn.Close()
	waitForCount(t, stream, 1)

	pongReceived := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongReceived <- struct{}{}:
		default:
		}
		return nil
	})

	if err := conn.WriteMessage(websocket.PingMessage, []byte("hi")); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("waiting for pong: %v", err)
		}
		select {
		case <-pongReceived:
			return
		default:
		}
	}
}

func waitForCount(t *testing.T, stream *models.StreamDefinition, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if stream.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stream count never reached %d, got %d", want, stream.Count())
}

func TestSessionStopsOnContextCancellation(t *testing.T) {
	stream := models.NewStreamDefinition("/cam", "rtsp://example.invalid/cam")
	m := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		New(conn, stream, m).Serve(ctx)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn := dial(t, wsURL)
	defer conn.Close()
	waitForCount(t, stream, 1)

	cancel()
	waitForCount(t, stream, 0)
}
