package clients

import (
	"context"

	ws "dhronas-fees/internal/transport/websocket"
)

// WebSocketClient pushes ledger events to connected users through the hub.
// A nil hub turns every notification into a no-op.
type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

// PaymentEvent is what a student sees when a payment is posted to their account.
type PaymentEvent struct {
	PaymentID   string `json:"paymentId"`
	Amount      string `json:"amount"`
	FeesPaid    string `json:"feesPaid"`
	DueAmount   string `json:"dueAmount"`
	Updated     int    `json:"installmentsUpdated"`
	Unallocated string `json:"unallocated"`
}

func (c *WebSocketClient) send(userID, kind, channel string, data interface{}) error {
	if c == nil || c.hub == nil {
		return nil
	}
	c.hub.Broadcast(userID, &ws.Message{
		Type:    kind,
		Channel: channel + "#" + userID,
		Data:    data,
	})
	return nil
}

func (c *WebSocketClient) NotifyPaymentRecorded(ctx context.Context, studentID string, ev PaymentEvent) error {
	return c.send(studentID, "payment_recorded", "notify_student_of_payment", ev)
}

func (c *WebSocketClient) NotifyExportProgress(
	ctx context.Context,
	userID string,
	exportID string,
	progress float64,
	stage string,
) error {
	data := map[string]interface{}{
		"id":       exportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}
	return c.send(userID, "export_progress", "notify_user_of_progress_export", data)
}

func (c *WebSocketClient) NotifyExportComplete(
	ctx context.Context,
	userID string,
	exportID string,
	url string,
	filename string,
) error {
	return c.send(userID, "export_complete", "notify_user_when_export_complete", map[string]interface{}{
		"id":       exportID,
		"url":      url,
		"filename": filename,
	})
}

func (c *WebSocketClient) NotifyExportFailed(ctx context.Context, userID string, exportID string, errMsg string) error {
	return c.send(userID, "export_failed", "notify_user_when_export_failed", map[string]interface{}{
		"id":      exportID,
		"message": errMsg,
	})
}
