package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"rigshop-api/internal/model"
	"rigshop-api/internal/store"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDecimal(item store.Item, attr string) (decimal.Decimal, error) {
	raw := item.String(attr)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s on %s: %w", attr, item.Key(), err)
	}
	return d, nil
}

func componentToItem(c *model.Component) (store.Item, error) {
	attrs := map[string]interface{}{
		"componentId": c.ComponentID,
		"name":        c.Name,
		"stock":       int64(c.Stock),
		"price":       c.Price.String(),
		"createdAt":   formatTime(c.CreatedAt),
		"updatedAt":   formatTime(c.UpdatedAt),
	}
	if len(c.Specs) > 0 {
		specs, err := json.Marshal(c.Specs)
		if err != nil {
			return store.Item{}, fmt.Errorf("failed to encode specs: %w", err)
		}
		attrs["specs"] = string(specs)
	}

	key := ComponentKey(c.ComponentID)
	return store.Item{PK: key.PK, SK: key.SK, Type: TypeComponent, Attrs: attrs}, nil
}

func itemToComponent(item store.Item) (*model.Component, error) {
	price, err := parseDecimal(item, "price")
	if err != nil {
		return nil, err
	}

	c := &model.Component{
		ComponentID: trimID(item.PK, prefixComponent),
		Name:        item.String("name"),
		Stock:       int(item.Int("stock")),
		Price:       price,
		CreatedAt:   parseTime(item.String("createdAt")),
		UpdatedAt:   parseTime(item.String("updatedAt")),
	}
	if raw := item.String("specs"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Specs); err != nil {
			return nil, fmt.Errorf("invalid specs on %s: %w", item.Key(), err)
		}
	}
	return c, nil
}

func configToItem(c *model.Configuration) store.Item {
	attrs := map[string]interface{}{
		"configId":  c.ConfigID,
		"name":      c.Name,
		"price":     c.Price.String(),
		"createdAt": formatTime(c.CreatedAt),
	}
	if c.Description != "" {
		attrs["description"] = c.Description
	}

	key := configKey(c.ConfigID)
	return store.Item{PK: key.PK, SK: key.SK, Type: TypeConfig, Attrs: attrs}
}

func itemToConfig(item store.Item) (*model.Configuration, error) {
	price, err := parseDecimal(item, "price")
	if err != nil {
		return nil, err
	}
	return &model.Configuration{
		ConfigID:    trimID(item.PK, prefixConfig),
		Name:        item.String("name"),
		Price:       price,
		Description: item.String("description"),
		CreatedAt:   parseTime(item.String("createdAt")),
	}, nil
}

func compositionToItem(configID string, e model.CompositionEntry) store.Item {
	key := compositionKey(configID, e.ComponentID)
	return store.Item{
		PK:   key.PK,
		SK:   key.SK,
		Type: TypeComposition,
		Attrs: map[string]interface{}{
			"componentId": e.ComponentID,
			"quantity":    int64(e.QuantityPerUnit),
		},
	}
}

func itemToComposition(item store.Item) model.CompositionEntry {
	return model.CompositionEntry{
		ComponentID:     trimID(item.SK, prefixComponent),
		QuantityPerUnit: int(item.Int("quantity")),
	}
}

func orderToItem(o *model.Order) store.Item {
	key := orderKey(o.UserID, o.OrderID)
	return store.Item{
		PK:   key.PK,
		SK:   key.SK,
		Type: TypeOrder,
		Attrs: map[string]interface{}{
			"orderId":    o.OrderID,
			"userId":     o.UserID,
			"configId":   o.ConfigID,
			"configName": o.ConfigName,
			"quantity":   int64(o.Quantity),
			"totalPrice": o.TotalPrice.String(),
			"status":     string(o.Status),
			"createdAt":  formatTime(o.CreatedAt),
		},
	}
}

func itemToOrder(item store.Item) (*model.Order, error) {
	total, err := parseDecimal(item, "totalPrice")
	if err != nil {
		return nil, err
	}
	return &model.Order{
		OrderID:    item.String("orderId"),
		UserID:     item.String("userId"),
		ConfigID:   item.String("configId"),
		ConfigName: item.String("configName"),
		Quantity:   int(item.Int("quantity")),
		TotalPrice: total,
		Status:     model.OrderStatus(item.String("status")),
		CreatedAt:  parseTime(item.String("createdAt")),
	}, nil
}

func ledgerToItem(l *model.LedgerEntry) (store.Item, error) {
	components, err := json.Marshal(l.Components)
	if err != nil {
		return store.Item{}, fmt.Errorf("failed to encode ledger components: %w", err)
	}

	key := ledgerKey(l.UserID, l.OrderID)
	return store.Item{
		PK:   key.PK,
		SK:   key.SK,
		Type: TypeLedger,
		Attrs: map[string]interface{}{
			"orderId":    l.OrderID,
			"userId":     l.UserID,
			"components": string(components),
			"createdAt":  formatTime(l.CreatedAt),
		},
	}, nil
}

func itemToLedger(item store.Item) (*model.LedgerEntry, error) {
	l := &model.LedgerEntry{
		OrderID:   item.String("orderId"),
		UserID:    item.String("userId"),
		CreatedAt: parseTime(item.String("createdAt")),
	}
	if err := json.Unmarshal([]byte(item.String("components")), &l.Components); err != nil {
		return nil, fmt.Errorf("invalid ledger components on %s: %w", item.Key(), err)
	}
	return l, nil
}

func orderOwnerToItem(o *model.Order) store.Item {
	key := orderOwnerKey(o.OrderID)
	return store.Item{
		PK:    key.PK,
		SK:    key.SK,
		Type:  TypeOrderOwner,
		Attrs: map[string]interface{}{"userId": o.UserID},
	}
}

func restockToItem(p *model.PendingRestock) store.Item {
	key := restockKey(p.AttemptID, p.ComponentID)
	return store.Item{
		PK:   key.PK,
		SK:   key.SK,
		Type: TypeRestock,
		Attrs: map[string]interface{}{
			"componentId": p.ComponentID,
			"quantity":    int64(p.Quantity),
			"reason":      p.Reason,
			"claim":       int64(1),
			"createdAt":   formatTime(p.CreatedAt),
		},
	}
}

func itemToRestock(item store.Item) model.PendingRestock {
	return model.PendingRestock{
		AttemptID:   trimID(item.PK, prefixRestock),
		ComponentID: trimID(item.SK, prefixComponent),
		Quantity:    int(item.Int("quantity")),
		Reason:      item.String("reason"),
		Claimed:     item.Int("claim") < 1,
		CreatedAt:   parseTime(item.String("createdAt")),
	}
}
