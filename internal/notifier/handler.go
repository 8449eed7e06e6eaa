// Package notifier turns order events into customer emails. It is the only
// consumer of the order topics; the api service never talks to the email
// service directly.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopflow/shopflow/internal/domain"
)

type Handler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

// HandleOrderCreated mails the order confirmation. The recipient comes from
// the user snapshot frozen into the event at checkout.
func (h *Handler) HandleOrderCreated(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order created event: %w", err)
	}

	h.logger.Info("processing order created event", "order_id", event.OrderID, "user_id", event.UserID)

	err := h.sendEmail(ctx, event.CustomerEmail,
		"Order received: "+event.OrderID,
		fmt.Sprintf("We received your order for %s. We will confirm it shortly.", event.ProductName),
	)
	if err != nil {
		return fmt.Errorf("send order received email: %w", err)
	}

	return nil
}

// HandleStatusChanged mails the customer about confirmations, shipments,
// deliveries and cancellations. Reverts to pending carry no mail.
func (h *Handler) HandleStatusChanged(ctx context.Context, payload []byte) error {
	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order status changed event: %w", err)
	}

	h.logger.Info("processing order status changed event",
		"order_id", event.OrderID, "old_status", event.OldStatus, "new_status", event.NewStatus)

	var subject, body string
	switch event.NewStatus {
	case domain.OrderStatusConfirmed:
		subject = "Order confirmed: " + event.OrderID
		body = fmt.Sprintf("Your order %s has been confirmed.", event.OrderID)
	case domain.OrderStatusShipped:
		subject = "Order shipped: " + event.OrderID
		body = fmt.Sprintf("Your order %s is on its way.", event.OrderID)
		if event.TrackingNumber != "" {
			body += " Tracking number: " + event.TrackingNumber
		}
	case domain.OrderStatusDelivered:
		subject = "Order delivered: " + event.OrderID
		body = fmt.Sprintf("Your order %s has been delivered. Enjoy!", event.OrderID)
	case domain.OrderStatusCancelled:
		subject = "Order cancelled: " + event.OrderID
		body = fmt.Sprintf("Your order %s has been cancelled. Any payment will be reimbursed.", event.OrderID)
	default:
		return nil
	}

	if err := h.sendEmail(ctx, event.CustomerEmail, subject, body); err != nil {
		return fmt.Errorf("send status email: %w", err)
	}

	return nil
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	payload := map[string]string{
		"to":      to,
		"subject": subject,
		"body":    body,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	h.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}
