package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ws "dhronas-fees/internal/transport/websocket"

	"github.com/gorilla/websocket"
)

func connect(t *testing.T, userID string) (*ws.Hub, *websocket.Conn) {
	t.Helper()
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, userID)
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+server.URL[4:], nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// give the hub time to register
	time.Sleep(100 * time.Millisecond)
	return hub, conn
}

func readData(t *testing.T, conn *websocket.Conn) (ws.Message, map[string]interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var received ws.Message
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	raw, err := json.Marshal(received.Data)
	if err != nil {
		t.Fatalf("failed to marshal data: %v", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("failed to unmarshal data: %v", err)
	}
	return received, data
}

func TestWebSocketClient_NotifyPaymentRecorded(t *testing.T) {
	hub, conn := connect(t, "STU-0000AAAA")
	client := NewWebSocketClient(hub)

	err := client.NotifyPaymentRecorded(context.Background(), "STU-0000AAAA", PaymentEvent{
		PaymentID:   "482910375562",
		Amount:      "150",
		FeesPaid:    "150",
		DueAmount:   "150",
		Updated:     2,
		Unallocated: "0",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	msg, data := readData(t, conn)
	if msg.Type != "payment_recorded" {
		t.Errorf("expected type payment_recorded, got %q", msg.Type)
	}
	if msg.Channel != "notify_student_of_payment#STU-0000AAAA" {
		t.Errorf("unexpected channel %q", msg.Channel)
	}
	if data["paymentId"] != "482910375562" {
		t.Errorf("expected paymentId 482910375562, got %v", data["paymentId"])
	}
	if data["installmentsUpdated"].(float64) != 2 {
		t.Errorf("expected 2 installments updated, got %v", data["installmentsUpdated"])
	}
}

func TestWebSocketClient_ExportLifecycle(t *testing.T) {
	hub, conn := connect(t, "ADMIN-0001")
	client := NewWebSocketClient(hub)
	ctx := context.Background()

	for _, progress := range []float64{10, 50, 95} {
		if err := client.NotifyExportProgress(ctx, "ADMIN-0001", "exports:1", progress, "generating"); err != nil {
			t.Fatalf("progress: %v", err)
		}
		msg, data := readData(t, conn)
		if msg.Type != "export_progress" || data["progress"].(float64) != progress {
			t.Fatalf("expected progress %.0f, got %s %v", progress, msg.Type, data["progress"])
		}
	}

	if err := client.NotifyExportComplete(ctx, "ADMIN-0001", "exports:1", "/files/x_payments.xlsx", "payments.xlsx"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	msg, data := readData(t, conn)
	if msg.Type != "export_complete" || data["url"] != "/files/x_payments.xlsx" {
		t.Fatalf("unexpected completion message %s %v", msg.Type, data)
	}

	if err := client.NotifyExportFailed(ctx, "ADMIN-0001", "exports:2", "upload failed"); err != nil {
		t.Fatalf("failed: %v", err)
	}
	msg, data = readData(t, conn)
	if msg.Channel != "notify_user_when_export_failed#ADMIN-0001" || data["message"] != "upload failed" {
		t.Fatalf("unexpected failure message %s %v", msg.Channel, data)
	}
}

func TestWebSocketClient_NilHub(t *testing.T) {
	client := NewWebSocketClient(nil)

	if err := client.NotifyExportProgress(context.Background(), "STU-1", "exports:1", 50, ""); err != nil {
		t.Errorf("nil hub must be a no-op, got: %v", err)
	}
	if err := client.NotifyPaymentRecorded(context.Background(), "STU-1", PaymentEvent{}); err != nil {
		t.Errorf("nil hub must be a no-op, got: %v", err)
	}

	var nilClient *WebSocketClient
	if err := nilClient.NotifyExportFailed(context.Background(), "STU-1", "exports:1", "x"); err != nil {
		t.Errorf("nil client must be a no-op, got: %v", err)
	}
}
