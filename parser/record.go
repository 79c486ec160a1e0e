package parser

import (
	"strings"

	"github.com/aluiziolira/marketplace-capture/models"
)

// CreationTime returns the payload's creation_time in epoch seconds.
func CreationTime(payload map[string]any) (int64, bool) {
	ct := Int(payload, "creation_time")
	if ct == nil {
		return 0, false
	}
	return *ct, true
}

// BuildRecord maps a listing payload onto a ListingRecord. Each field is
// resolved on its own; an unresolvable path yields nil for that field only.
func BuildRecord(payload map[string]any, extractionDate, listingURL string) models.ListingRecord {
	rec := models.ListingRecord{
		Title:                 String(payload, "marketplace_listing_title"),
		CreationTime:          Int(payload, "creation_time"),
		DeliveryType:          String(payload, "delivery_types", 0),
		Description:           String(payload, "redacted_description", "text"),
		IsLive:                Bool(payload, "is_live"),
		IsSold:                Bool(payload, "is_sold"),
		SellerJoinTime:        String(payload, "marketplace_listing_seller", "join_time"),
		InventoryQuantity:     String(payload, "listing_inventory_type"),
		PriceAmount:           Float(payload, "listing_price", "amount"),
		PriceCurrency:         String(payload, "listing_price", "currency"),
		PriceAmountWithOffset: Float(payload, "listing_price", "amount_with_offset_in_currency"),
		Latitude:              Float(payload, "location", "latitude"),
		Longitude:             Float(payload, "location", "longitude"),
		LocationText:          String(payload, "location_text", "text"),
		LocationID:            String(payload, "location_vanity_or_id"),
		SellerName:            String(payload, "story", "actors", 0, "name"),
		SellerType:            String(payload, "story", "actors", 0, "__typename"),
		SellerID:              String(payload, "story", "actors", 0, "id"),
	}
	if extractionDate != "" {
		rec.ExtractionDate = &extractionDate
	}
	if u := strings.TrimSpace(listingURL); u != "" {
		rec.ListingURL = &u
	}
	return rec
}
