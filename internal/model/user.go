package model

import "time"

// User represents a community member who may request show discounts.
// Members are managed by the external membership system; this service
// only ever reads them.  The subscription flags drive the eligibility
// prefilter and are assumed to be kept current by the billing system.
//
// Fields:
//  ID                 – primary key identifier.
//  Name               – display name used in outgoing emails.
//  Email              – unique email address (lower-cased).
//  City               – optional home city.
//  FavoriteGenre      – optional preferred music genre.
//  SubscriptionActive – whether the membership is currently active.
//  MonthlyFeeCurrent  – whether the member is up to date with the fee.
//  CreatedAt          – timestamp of creation.
//  UpdatedAt          – timestamp of last update.
type User struct {
	ID                 uint64    // users.id
	Name               string    // users.name
	Email              string    // users.email
	City               *string   // users.city (nullable)
	FavoriteGenre      *string   // users.favorite_genre (nullable)
	SubscriptionActive bool      // users.subscription_active
	MonthlyFeeCurrent  bool      // users.monthly_fee_current
	CreatedAt          time.Time // users.created_at
	UpdatedAt          time.Time // users.updated_at
}
