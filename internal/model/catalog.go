package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Component is a stock-keeping unit that configurations are built from.
type Component struct {
	ComponentID string            `json:"componentId"`
	Name        string            `json:"name"`
	Stock       int               `json:"stock"`
	Price       decimal.Decimal   `json:"price"`
	Specs       map[string]string `json:"specs,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Configuration is a sellable product composed of components.
type Configuration struct {
	ConfigID    string          `json:"configId"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// CompositionEntry states how many units of a component one configuration unit needs.
type CompositionEntry struct {
	ComponentID     string `json:"componentId"`
	QuantityPerUnit int    `json:"quantity"`
}

// ConfigurationSummary is a configuration with the number of distinct components it uses.
type ConfigurationSummary struct {
	Configuration
	ComponentCount int `json:"componentCount"`
}

// ConfigurationPart is one composition entry joined with its component.
type ConfigurationPart struct {
	ComponentID     string          `json:"componentId"`
	Name            string          `json:"name"`
	QuantityPerUnit int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Stock           int             `json:"stock"`
}

// ConfigurationDetail is a configuration together with its resolved parts.
type ConfigurationDetail struct {
	Configuration
	Components []ConfigurationPart `json:"components"`
}
