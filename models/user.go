package models

import "time"

// Platform is the client family derived from device info.
type Platform string

const (
	PlatformIOS     Platform = "iOS"
	PlatformAndroid Platform = "Android"
	PlatformWeb     Platform = "Web"
)

// IdentityFirstSeen pairs an identity with the timestamp of its first-ever event.
type IdentityFirstSeen struct {
	IdentifyID string
	FirstSeen  time.Time
}

// ProfileRow is the store's view of an identity's most recent activity.
// IdentifyProperties comes from the latest identify event and is empty when
// the identity never sent one.
type ProfileRow struct {
	IdentifyID         string
	UserID             *string
	Info               DeviceInfo
	IdentifyProperties Properties
	LastSeen           time.Time
}

// ProfileSummary is the display profile of an end user of a tenant's app.
type ProfileSummary struct {
	IdentifyID string    `json:"identifyId"`
	UserID     *string   `json:"userId"`
	Identified bool      `json:"identified"`
	Name       *string   `json:"name"`
	Email      *string   `json:"email"`
	Avatar     *string   `json:"avatar"`
	Platform   Platform  `json:"platform"`
	FirstSeen  time.Time `json:"firstSeen"`
	LastSeen   time.Time `json:"lastSeen"`
}

// ErrorCountRow is one (day, message) group of error events.
type ErrorCountRow struct {
	Day     time.Time
	Message string
	Count   uint64
}

// Overview holds the headline user counts for a tenant.
type Overview struct {
	TotalUsers uint64  `json:"totalUsers"`
	MAU        uint64  `json:"mau"`
	MAUChange  float64 `json:"mauChange"`
	DAU        uint64  `json:"dau"`
	DAUChange  float64 `json:"dauChange"`
}
