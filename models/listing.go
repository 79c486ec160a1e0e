// Package models defines data structures for the capture run.
package models

import "time"

// ListingRecord is one normalized marketplace listing. Every field is
// independently nullable: a missing nested object in the captured payload
// leaves only the fields under it nil.
type ListingRecord struct {
	ExtractionDate        *string  `csv:"extraction_date" json:"extraction_date"`
	Title                 *string  `csv:"title" json:"title"`
	CreationTime          *int64   `csv:"creation_time" json:"creation_time"`
	DeliveryType          *string  `csv:"delivery_type" json:"delivery_type"`
	Description           *string  `csv:"description" json:"description"`
	IsLive                *bool    `csv:"is_live" json:"is_live"`
	IsSold                *bool    `csv:"is_sold" json:"is_sold"`
	SellerJoinTime        *string  `csv:"seller_join_time" json:"seller_join_time"`
	InventoryQuantity     *string  `csv:"inventory_quantity" json:"inventory_quantity"`
	PriceAmount           *float64 `csv:"price_amount" json:"price_amount"`
	PriceCurrency         *string  `csv:"price_currency" json:"price_currency"`
	PriceAmountWithOffset *float64 `csv:"price_amount_with_offset" json:"price_amount_with_offset"`
	Latitude              *float64 `csv:"latitude" json:"latitude"`
	Longitude             *float64 `csv:"longitude" json:"longitude"`
	LocationText          *string  `csv:"location_text" json:"location_text"`
	LocationID            *string  `csv:"location_id" json:"location_id"`
	SellerName            *string  `csv:"seller_name" json:"seller_name"`
	SellerType            *string  `csv:"seller_type" json:"seller_type"`
	SellerID              *string  `csv:"seller_id" json:"seller_id"`
	ListingURL            *string  `csv:"listing_url" json:"listing_url"`
}

// ListingColumns is the output column order for listing tables.
var ListingColumns = []string{
	"extraction_date",
	"title",
	"creation_time",
	"delivery_type",
	"description",
	"is_live",
	"is_sold",
	"seller_join_time",
	"inventory_quantity",
	"price_amount",
	"price_currency",
	"price_amount_with_offset",
	"latitude",
	"longitude",
	"location_text",
	"location_id",
	"seller_name",
	"seller_type",
	"seller_id",
	"listing_url",
}

// Values returns the record's cells in ListingColumns order. Nil fields are
// returned as untyped nil so writers can render them as empty cells.
func (r *ListingRecord) Values() []any {
	return []any{
		deref(r.ExtractionDate),
		deref(r.Title),
		deref(r.CreationTime),
		deref(r.DeliveryType),
		deref(r.Description),
		deref(r.IsLive),
		deref(r.IsSold),
		deref(r.SellerJoinTime),
		deref(r.InventoryQuantity),
		deref(r.PriceAmount),
		deref(r.PriceCurrency),
		deref(r.PriceAmountWithOffset),
		deref(r.Latitude),
		deref(r.Longitude),
		deref(r.LocationText),
		deref(r.LocationID),
		deref(r.SellerName),
		deref(r.SellerType),
		deref(r.SellerID),
		deref(r.ListingURL),
	}
}

// ErrorRecord is one row of the error ledger.
type ErrorRecord struct {
	Kind           string    `csv:"error_kind" json:"error_kind"`
	Message        string    `csv:"message" json:"message"`
	SourceLocation string    `csv:"source_location" json:"source_location"`
	SourceSnippet  string    `csv:"source_snippet" json:"source_snippet"`
	ListingURL     *string   `csv:"listing_url" json:"listing_url"`
	RecordedAt     time.Time `csv:"-" json:"recorded_at"`
}

// ErrorColumns is the output column order for the error ledger.
var ErrorColumns = []string{"error_kind", "message", "source_location", "source_snippet", "listing_url"}

// Values returns the ledger row in ErrorColumns order.
func (e *ErrorRecord) Values() []any {
	return []any{e.Kind, e.Message, e.SourceLocation, e.SourceSnippet, deref(e.ListingURL)}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
