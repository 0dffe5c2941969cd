// Package provider implements the data provider client: fetch, add, update,
// and delete against remote collections with retry, bounded concurrency,
// cache-first reads, stale fallback, and built-in mock data for offline use.
package provider

import (
	"fmt"

	"github.com/sheetsync/sheetsync/pkg/errors"
)

// Row is the canonical internal row representation. Every accepted wire
// shape normalizes to it before reaching the cache.
type Row map[string]interface{}

// Actions holds the remote action names for one collection's operations.
// They are declared per collection rather than built by string
// concatenation at call time.
type Actions struct {
	Get    string
	Add    string
	Update string
	Delete string
}

// Schema describes one collection: its positional field order for
// array-shaped rows and its remote action names.
type Schema struct {
	Name    string
	Fields  []string
	Actions Actions
}

// builtinSchemas lists the collections the remote store serves. New
// collections are added here, not in the cache layer.
var builtinSchemas = map[string]Schema{
	"products": {
		Name: "products",
		Fields: []string{
			"id", "product_id", "category_id", "product_name",
			"quantity_per_pack", "price", "image_url", "status", "description",
		},
		Actions: Actions{
			Get:    "getProducts",
			Add:    "addProducts",
			Update: "updateProducts",
			Delete: "deleteProducts",
		},
	},
	"orders": {
		Name: "orders",
		Fields: []string{
			"id", "order_id", "customer_id", "customer_name", "phone",
			"address", "total_price", "order_status", "order_date", "items",
		},
		Actions: Actions{
			Get:    "getOrders",
			Add:    "addOrders",
			Update: "updateOrders",
			Delete: "deleteOrders",
		},
	},
	"categories": {
		Name: "categories",
		Fields: []string{
			"id", "category_id", "category_name", "description", "status",
		},
		Actions: Actions{
			Get:    "getCategories",
			Add:    "addCategories",
			Update: "updateCategories",
			Delete: "deleteCategories",
		},
	},
	"customers": {
		Name: "customers",
		Fields: []string{
			"id", "customer_id", "customer_name", "phone", "address", "status",
		},
		Actions: Actions{
			Get:    "getCustomers",
			Add:    "addCustomers",
			Update: "updateCustomers",
			Delete: "deleteCustomers",
		},
	},
	"order_items": {
		Name: "order_items",
		Fields: []string{
			"id", "order_id", "product_id", "quantity", "unit_price", "subtotal",
		},
		Actions: Actions{
			Get:    "getOrderItems",
			Add:    "addOrderItems",
			Update: "updateOrderItems",
			Delete: "deleteOrderItems",
		},
	},
	"promotions": {
		Name: "promotions",
		Fields: []string{
			"id", "promo_id", "promo_name", "discount_percent",
			"start_date", "end_date", "status",
		},
		Actions: Actions{
			Get:    "getPromotions",
			Add:    "addPromotions",
			Update: "updatePromotions",
			Delete: "deletePromotions",
		},
	},
}

// Registry holds the validated schemas for the collections a client tracks.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry validates the requested collection names against the
// supported set at startup and returns their schemas.
func NewRegistry(collections []string) (*Registry, error) {
	if len(collections) == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "no collections configured")
	}

	schemas := make(map[string]Schema, len(collections))
	for _, name := range collections {
		schema, ok := builtinSchemas[name]
		if !ok {
			return nil, errors.NewError(errors.ErrCodeUnknownCollection,
				fmt.Sprintf("unsupported collection %q", name)).WithCollection(name)
		}
		schemas[name] = schema
	}

	return &Registry{schemas: schemas}, nil
}

// Lookup returns the schema for a collection name.
func (r *Registry) Lookup(collection string) (Schema, error) {
	schema, ok := r.schemas[collection]
	if !ok {
		return Schema{}, errors.NewError(errors.ErrCodeUnknownCollection,
			fmt.Sprintf("collection %q is not tracked", collection)).WithCollection(collection)
	}
	return schema, nil
}

// Collections returns the tracked collection names.
func (r *Registry) Collections() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	return names
}
