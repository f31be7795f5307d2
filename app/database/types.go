package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// sqliteTimeLayout is fixed width so that timestamps stored as TEXT sort and
// compare in chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// AdditionalInfo is the free-form metadata stored as a single JSON column.
type AdditionalInfo struct {
	Creator string   `json:"creator"`
	Tags    []string `json:"tags"`
	WebName []string `json:"web_name"`
}

func (a AdditionalInfo) Value() (driver.Value, error) {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.WebName == nil {
		a.WebName = []string{}
	}

	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal additional info: %w", err)
	}
	return string(data), nil
}

func (a *AdditionalInfo) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = AdditionalInfo{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into AdditionalInfo", src)
	}

	if err := json.Unmarshal(data, a); err != nil {
		return fmt.Errorf("failed to unmarshal additional info: %w", err)
	}
	return nil
}

// Timestamp scans both native timestamps (Postgres) and the fixed-width TEXT
// representation used by SQLite.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
}

func (t *Timestamp) parse(s string) error {
	parsed, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

type NullTimestamp struct {
	Time  time.Time
	Valid bool
}

func (n *NullTimestamp) Scan(src any) error {
	if src == nil {
		n.Time, n.Valid = time.Time{}, false
		return nil
	}

	var ts Timestamp
	if err := ts.Scan(src); err != nil {
		return err
	}
	n.Time, n.Valid = ts.Time, true
	return nil
}

func (n NullTimestamp) Ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
