package repository

import (
	"strings"

	"rigshop-api/internal/store"
)

// Item types stored in the table.
const (
	TypeComponent   = "component"
	TypeConfig      = "config"
	TypeComposition = "composition"
	TypeOrder       = "order"
	TypeLedger      = "order_components"
	TypeOrderOwner  = "order_owner"
	TypeRestock     = "restock"
)

const (
	prefixComponent = "COMPONENT#"
	prefixConfig    = "CONFIG#"
	prefixUser      = "USER#"
	prefixOrder     = "ORDER#"
	prefixRestock   = "RESTOCK#"

	skMetadata       = "METADATA"
	skOwner          = "OWNER"
	suffixComponents = "#COMPONENTS"
)

// ComponentKey returns the table key of a component item.
func ComponentKey(componentID string) store.Key {
	return store.Key{PK: prefixComponent + componentID, SK: skMetadata}
}

func configKey(configID string) store.Key {
	return store.Key{PK: prefixConfig + configID, SK: skMetadata}
}

func compositionKey(configID, componentID string) store.Key {
	return store.Key{PK: prefixConfig + configID, SK: prefixComponent + componentID}
}

func orderKey(userID, orderID string) store.Key {
	return store.Key{PK: prefixUser + userID, SK: prefixOrder + orderID}
}

// orderOwnerKey addresses the item that maps an order id to its user partition.
func orderOwnerKey(orderID string) store.Key {
	return store.Key{PK: prefixOrder + orderID, SK: skOwner}
}

func ledgerKey(userID, orderID string) store.Key {
	return store.Key{PK: prefixUser + userID, SK: prefixOrder + orderID + suffixComponents}
}

func restockKey(attemptID, componentID string) store.Key {
	return store.Key{PK: prefixRestock + attemptID, SK: prefixComponent + componentID}
}

// trimID strips a key prefix, returning the bare identifier.
func trimID(key, prefix string) string {
	return strings.TrimPrefix(key, prefix)
}
