// api/models/event.go
package models

import (
	"encoding/json"
	"time"
)

// EventType is the closed set of event kinds a client can record.
type EventType string

const (
	EventNavigation EventType = "navigation"
	EventAction     EventType = "action"
	EventIdentify   EventType = "identify"
	EventState      EventType = "state"
	EventError      EventType = "error"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventNavigation, EventAction, EventIdentify, EventState, EventError:
		return true
	default:
		return false
	}
}

// AnalyticsEvent represents a single analytics event as stored for one tenant partition.
type AnalyticsEvent struct {
	ID         string     `json:"id"`
	TenantKey  string     `json:"-"`
	IdentifyID string     `json:"identifyId"`
	UserID     *string    `json:"userId"`
	Type       EventType  `json:"type"`
	Properties Properties `json:"properties"`
	Date       time.Time  `json:"date"`
	Info       DeviceInfo `json:"info"`
	AppVersion *string    `json:"appVersion"`
}

// Before orders events by date, falling back to the store id so that
// events sharing a timestamp always sort the same way.
func (e AnalyticsEvent) Before(other AnalyticsEvent) bool {
	if !e.Date.Equal(other.Date) {
		return e.Date.Before(other.Date)
	}
	return e.ID < other.ID
}

// DeviceInfo is the request metadata captured when the event was written.
type DeviceInfo struct {
	Platform  string `json:"platform,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Country   string `json:"country,omitempty"`
}

// DecodeDeviceInfo parses the stored info column. Malformed payloads yield
// an empty DeviceInfo.
func DecodeDeviceInfo(raw string) DeviceInfo {
	var info DeviceInfo
	if raw == "" {
		return info
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return DeviceInfo{}
	}
	return info
}
