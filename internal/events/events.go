// Package events publishes order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"rigshop-api/pkg/uid"
)

// Event types.
const (
	EventOrderPlaced         = "OrderPlaced"
	EventReservationRejected = "ReservationRejected"
	EventStockCompensated    = "StockCompensated"
)

// Envelope wraps every event published by the service.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// ComponentQty is a component and the number of units involved.
type ComponentQty struct {
	ComponentID string `json:"component_id"`
	Qty         int    `json:"qty"`
}

type OrderPlacedPayload struct {
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	ConfigID   string          `json:"config_id"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Components []ComponentQty  `json:"components"`
}

type ReservationRejectedPayload struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	ConfigID    string `json:"config_id"`
	Reason      string `json:"reason"`
	ComponentID string `json:"component_id,omitempty"`
	Required    int    `json:"required,omitempty"`
	Available   int    `json:"available,omitempty"`
}

type StockCompensatedPayload struct {
	OrderID     string `json:"order_id"`
	ComponentID string `json:"component_id"`
	Qty         int    `json:"qty"`
	Applied     bool   `json:"applied"` // false when the restock was queued for retry
}

// New builds an envelope for payload. The correlation id is the order id.
func New(producer, eventType, correlationID string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uid.New(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// Publisher delivers envelopes to a downstream sink.
type Publisher interface {
	// Publish hands the envelope to the sink. It must not block on network I/O.
	Publish(ctx context.Context, env Envelope) error

	// Close flushes buffered events and releases resources.
	Close() error
}
