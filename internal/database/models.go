package database

import (
	"database/sql"
	"time"
)

// Event is one provisioning event: a state transition, a configuration
// outcome, or a discovery result for a device within a poll cycle.
type Event struct {
	ID        int            `json:"id"`
	CycleID   string         `json:"cycle_id"`
	DeviceMAC sql.NullString `json:"device_mac"`
	DeviceIP  sql.NullString `json:"device_ip"`
	EventType string         `json:"event_type"`
	Detail    sql.NullString `json:"detail"`
	Success   bool           `json:"success"`
	CreatedAt time.Time      `json:"created_at"`
}

// SnapshotRow is a persisted point-in-time inventory view
type SnapshotRow struct {
	ID          int       `json:"id"`
	Snapshot    string    `json:"snapshot"`
	SwitchCount int       `json:"switch_count"`
	APCount     int       `json:"ap_count"`
	TakenAt     time.Time `json:"taken_at"`
}
