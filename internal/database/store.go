package database

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNoSnapshot is returned before the first inventory snapshot lands
var ErrNoSnapshot = errors.New("no snapshot recorded")

// Store is the provisioning history layer over the database. The in-memory
// inventory stays authoritative; this store is observational, feeding the
// events API and surviving restarts.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore creates an event store
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// RecordEvent persists one provisioning event. Failures are logged, not
// returned: history must never block provisioning.
func (s *Store) RecordEvent(cycleID, deviceMAC, deviceIP, eventType, detail string, success bool) {
	query := `INSERT INTO provisioning_events (cycle_id, device_mac, device_ip, event_type, detail, success)
			  VALUES (?, ?, ?, ?, ?, ?)`

	if _, err := s.db.Exec(query, cycleID, deviceMAC, deviceIP, eventType, detail, success); err != nil {
		s.logger.Error("Failed to record provisioning event",
			zap.String("event_type", eventType),
			zap.String("device_mac", deviceMAC),
			zap.Error(err))
	}
}

// RecentEvents returns the newest events, newest first
func (s *Store) RecentEvents(limit int) ([]*Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, cycle_id, device_mac, device_ip, event_type, detail, success, created_at
			  FROM provisioning_events ORDER BY id DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID, &event.CycleID, &event.DeviceMAC, &event.DeviceIP,
			&event.EventType, &event.Detail, &event.Success, &event.CreatedAt,
		)
		if err != nil {
			s.logger.Error("Failed to scan event row", zap.Error(err))
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// DeviceEvents returns events for one device MAC, newest first
func (s *Store) DeviceEvents(mac string, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, cycle_id, device_mac, device_ip, event_type, detail, success, created_at
			  FROM provisioning_events WHERE device_mac = ? ORDER BY id DESC LIMIT ?`

	rows, err := s.db.Query(query, mac, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query device events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID, &event.CycleID, &event.DeviceMAC, &event.DeviceIP,
			&event.EventType, &event.Detail, &event.Success, &event.CreatedAt,
		)
		if err != nil {
			s.logger.Error("Failed to scan event row", zap.Error(err))
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// SaveSnapshot persists a serialized inventory view
func (s *Store) SaveSnapshot(snapshotJSON string, switchCount, apCount int) error {
	query := `INSERT INTO inventory_snapshots (snapshot, switch_count, ap_count) VALUES (?, ?, ?)`
	if _, err := s.db.Exec(query, snapshotJSON, switchCount, apCount); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent persisted inventory view
func (s *Store) LatestSnapshot() (*SnapshotRow, error) {
	query := `SELECT id, snapshot, switch_count, ap_count, taken_at
			  FROM inventory_snapshots ORDER BY id DESC LIMIT 1`

	row := &SnapshotRow{}
	err := s.db.QueryRow(query).Scan(&row.ID, &row.Snapshot, &row.SwitchCount, &row.APCount, &row.TakenAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return row, nil
}
