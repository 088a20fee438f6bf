package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// startHub runs a hub behind a test server that takes the user from ?user=.
func startHub(t *testing.T, origins ...string) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	if len(origins) > 0 {
		hub.AllowOrigins(origins...)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(server.Close)
	t.Cleanup(cancel)
	return hub, server, cancel
}

func dial(t *testing.T, server *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[4:]+"?user="+user, nil)
	if err != nil {
		t.Fatalf("failed to connect %s: %v", user, err)
	}
	return conn
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub, server, _ := startHub(t)

	conn := dial(t, server, "STU-00000001")
	time.Sleep(100 * time.Millisecond)

	if got := hub.Connected("STU-00000001"); got != 1 {
		t.Fatalf("expected 1 connection, got %d", got)
	}

	conn.Close()
	time.Sleep(100 * time.Millisecond)

	if got := hub.Connected("STU-00000001"); got != 0 {
		t.Fatalf("expected connection to be unregistered, still have %d", got)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub, server, _ := startHub(t)

	conn := dial(t, server, "STU-00000001")
	defer conn.Close()
	time.Sleep(100 * time.Millisecond)

	hub.Broadcast("STU-00000001", &Message{
		Type:    "payment_recorded",
		Channel: "payments#STU-00000001",
		Data:    map[string]interface{}{"paymentId": "123456789012"},
	})

	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var received Message
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read message: %v", err)
	}

	if received.Type != "payment_recorded" {
		t.Errorf("expected type payment_recorded, got %q", received.Type)
	}
	if received.UserID != "STU-00000001" {
		t.Errorf("expected user STU-00000001, got %q", received.UserID)
	}
}

func TestHub_MultipleConnections(t *testing.T) {
	hub, server, _ := startHub(t)

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		c := dial(t, server, "ADMIN-0001")
		defer c.Close()
		conns = append(conns, c)
	}
	time.Sleep(100 * time.Millisecond)

	if got := hub.Connected("ADMIN-0001"); got != 3 {
		t.Fatalf("expected 3 connections, got %d", got)
	}

	hub.Broadcast("ADMIN-0001", &Message{Type: "broadcast"})

	var wg sync.WaitGroup
	for i, conn := range conns {
		wg.Add(1)
		go func(idx int, c *websocket.Conn) {
			defer wg.Done()
			c.SetReadDeadline(time.Now().Add(1 * time.Second))
			var received Message
			if err := c.ReadJSON(&received); err != nil {
				t.Errorf("connection %d failed to read: %v", idx, err)
				return
			}
			if received.Type != "broadcast" {
				t.Errorf("connection %d: expected broadcast, got %q", idx, received.Type)
			}
		}(i, conn)
	}
	wg.Wait()
}

func TestHub_DifferentUsers(t *testing.T) {
	hub, server, _ := startHub(t)

	conn1 := dial(t, server, "STU-1")
	defer conn1.Close()
	conn2 := dial(t, server, "STU-2")
	defer conn2.Close()
	time.Sleep(100 * time.Millisecond)

	hub.Broadcast("STU-1", &Message{Type: "private"})

	conn1.SetReadDeadline(time.Now().Add(1 * time.Second))
	var received1 Message
	if err := conn1.ReadJSON(&received1); err != nil {
		t.Fatalf("STU-1 failed to read: %v", err)
	}

	conn2.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var received2 Message
	if err := conn2.ReadJSON(&received2); err == nil {
		t.Error("STU-2 must not receive messages addressed to STU-1")
	}
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	hub := NewHub()
	hub.broadcast = make(chan *Message, 1)

	// no Run loop: the buffer stays full
	hub.broadcast <- &Message{Type: "fill"}
	hub.Broadcast("STU-1", &Message{Type: "dropped"})

	msg := <-hub.broadcast
	if msg.Type != "fill" {
		t.Fatalf("expected the queued message, got %q", msg.Type)
	}
	select {
	case extra := <-hub.broadcast:
		t.Fatalf("message should have been dropped, got %q", extra.Type)
	default:
	}
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	_, server, cancel := startHub(t)

	conn := dial(t, server, "STU-1")
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	cancel()
	time.Sleep(100 * time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed after hub shutdown")
	}
}

func TestHub_RejectsForeignOrigins(t *testing.T) {
	_, server, _ := startHub(t, "http://app.example.com/")
	url := "ws" + server.URL[4:] + "?user=STU-1"

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected upgrade from a foreign origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %+v", resp)
	}

	header.Set("Origin", "http://app.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("expected allowed origin to connect: %v", err)
	}
	conn.Close()

	conn, _, err = websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("expected client without Origin to connect: %v", err)
	}
	conn.Close()
}

func TestHub_SameHostByDefault(t *testing.T) {
	_, server, _ := startHub(t)
	url := "ws" + server.URL[4:] + "?user=STU-1"

	header := http.Header{}
	header.Set("Origin", "http://other.example.com")
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected cross-host upgrade to fail without configured origins")
	}

	header.Set("Origin", server.URL)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("expected same-host origin to connect: %v", err)
	}
	conn.Close()
}
