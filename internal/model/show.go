package model

import "time"

// Show represents a concert for which a limited number of discounts
// may be granted.  MaxDiscounts caps the quota and GrantedCount is the
// authoritative ledger of slots already consumed.  The invariant
// 0 <= GrantedCount <= MaxDiscounts holds at all times; it is enforced
// by the repository's atomic reserve/release statements, never in
// application code.
//
// Fields:
//  ID              – primary key identifier.
//  Code            – unique internal show code (embedded in discount codes).
//  Title           – show title.
//  Artist          – performing artist.
//  Venue           – venue name.
//  ShowDate        – when the show takes place.
//  MaxDiscounts    – maximum discounts available for this show.
//  GrantedCount    – discounts already reserved (the quota ledger).
//  Active          – whether the show is open for discount requests.
//  TicketingLink   – optional ticketing platform URL.
//  DiscountDetails – optional redemption instructions shown in emails.
//  PriceCents      – optional ticket price in cents.
//  Genre           – optional music genre.
//  OtherData       – opaque extension map for unforeseen metadata.
//  CreatedAt       – creation timestamp.
type Show struct {
	ID              uint64            // shows.id
	Code            string            // shows.code
	Title           string            // shows.title
	Artist          string            // shows.artist
	Venue           string            // shows.venue
	ShowDate        time.Time         // shows.show_date
	MaxDiscounts    uint32            // shows.max_discounts
	GrantedCount    uint32            // shows.granted_count
	Active          bool              // shows.active
	TicketingLink   *string           // shows.ticketing_link (nullable)
	DiscountDetails *string           // shows.discount_details (nullable)
	PriceCents      *uint32           // shows.price_cents (nullable)
	Genre           *string           // shows.genre (nullable)
	OtherData       map[string]string // shows.other_data (JSON, nullable)
	CreatedAt       time.Time         // shows.created_at
}

// Remaining returns how many discount slots the show still has.
func (s *Show) Remaining() uint32 {
	if s.GrantedCount >= s.MaxDiscounts {
		return 0
	}
	return s.MaxDiscounts - s.GrantedCount
}
