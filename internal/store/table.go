// Package store implements the single logical table every entity lives in.
//
// Items are addressed by a (PK, SK) string pair and tagged with a Type. Attribute
// values are restricted to strings and int64 so that every backend can round-trip
// them without type drift; structured values are stored as JSON strings by the
// repository layer.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned when no item exists for a key.
	ErrNotFound = errors.New("item not found")

	// ErrConditionFailed is returned when a conditional update predicate does not hold.
	ErrConditionFailed = errors.New("condition failed")
)

// Key addresses one item.
type Key struct {
	PK string
	SK string
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return k.PK + "|" + k.SK
}

// Item is one row of the table.
type Item struct {
	PK    string
	SK    string
	Type  string
	Attrs map[string]interface{}
}

// Key returns the item's primary key.
func (i Item) Key() Key {
	return Key{PK: i.PK, SK: i.SK}
}

// String returns a string attribute or "" when absent.
func (i Item) String(name string) string {
	switch v := i.Attrs[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns an integer attribute, normalising the numeric types backends decode into.
func (i Item) Int(name string) int64 {
	n, _ := toInt64(i.Attrs[name])
	return n
}

// Has reports whether the attribute is present.
func (i Item) Has(name string) bool {
	_, ok := i.Attrs[name]
	return ok
}

// Clone returns a deep copy of the item.
func (i Item) Clone() Item {
	out := Item{PK: i.PK, SK: i.SK, Type: i.Type, Attrs: make(map[string]interface{}, len(i.Attrs))}
	for k, v := range i.Attrs {
		out.Attrs[k] = v
	}
	return out
}

// Filter selects items during a scan. Empty fields match everything.
type Filter struct {
	Type     string
	SK       string
	SKPrefix string
}

// Match reports whether the item satisfies the filter.
func (f Filter) Match(item Item) bool {
	if f.Type != "" && item.Type != f.Type {
		return false
	}
	if f.SK != "" && item.SK != f.SK {
		return false
	}
	if f.SKPrefix != "" && !strings.HasPrefix(item.SK, f.SKPrefix) {
		return false
	}
	return true
}

// CounterUpdate describes an atomic adjustment of a numeric attribute.
// When Min is set the update applies only if the stored value is >= *Min,
// evaluated by the backend against the latest stored value.
type CounterUpdate struct {
	Attr  string
	Delta int64
	Min   *int64
}

// AtLeast is a helper for CounterUpdate.Min.
func AtLeast(n int64) *int64 {
	return &n
}

var attrNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Validate checks the update before it reaches a backend.
func (u CounterUpdate) Validate() error {
	if !attrNamePattern.MatchString(u.Attr) {
		return fmt.Errorf("invalid counter attribute %q", u.Attr)
	}
	if u.Delta == 0 {
		return errors.New("counter delta must be non-zero")
	}
	return nil
}

// Table is the key-value store contract shared by every backend.
type Table interface {
	// Get returns the item stored at key or ErrNotFound.
	Get(ctx context.Context, key Key) (*Item, error)

	// Query returns the items of one partition whose SK starts with skPrefix, ordered by SK.
	Query(ctx context.Context, pk, skPrefix string) ([]Item, error)

	// Scan returns every item matching the filter. Order is unspecified.
	Scan(ctx context.Context, filter Filter) ([]Item, error)

	// Put writes the item, replacing any previous version.
	Put(ctx context.Context, item Item) error

	// Delete removes the item. Deleting a missing item is not an error.
	Delete(ctx context.Context, key Key) error

	// UpdateCounter atomically adds Delta to a numeric attribute of an existing item
	// and returns the item as stored afterwards. A missing item yields ErrNotFound.
	// When the Min predicate fails it returns ErrConditionFailed together with the
	// item as it was stored when the predicate was evaluated. The SQL backends read
	// it under the same lock as the update and DynamoDB returns ALL_OLD. MongoDB
	// re-reads after the failed update and retries while the re-read satisfies the
	// predicate, so its item is a state that fails the predicate but may be newer
	// than the one the update saw.
	UpdateCounter(ctx context.Context, key Key, upd CounterUpdate) (*Item, error)

	// Stats returns backend statistics for the admin dashboard.
	Stats(ctx context.Context) (map[string]interface{}, error)

	// Close releases the backend connection.
	Close() error
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// normalizeAttrs converts decoded attribute values to string or int64.
func normalizeAttrs(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			if n, ok := toInt64(val); ok {
				out[k] = n
			} else {
				out[k] = fmt.Sprint(val)
			}
		}
	}
	return out
}

func encodeAttrs(attrs map[string]interface{}) (string, error) {
	if attrs == nil {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to encode attributes: %w", err)
	}
	return string(b), nil
}

func decodeAttrs(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var attrs map[string]interface{}
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("failed to decode attributes: %w", err)
	}
	return normalizeAttrs(attrs), nil
}

func sortBySK(items []Item) {
	sort.Slice(items, func(a, b int) bool { return items[a].SK < items[b].SK })
}

// likePrefix escapes a prefix for use in a SQL LIKE pattern with ESCAPE '\'.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
