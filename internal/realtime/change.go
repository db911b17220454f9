// Package realtime carries row-change notifications for the clinic tables and
// turns them into coarse refresh signals.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Table string

const (
	TableAppointments  Table = "appointments"
	TablePatients      Table = "patients"
	TablePayments      Table = "payments"
	TableDentalRecords Table = "dental_records"
)

// WatchedTables are the tables whose changes invalidate client data.
var WatchedTables = []Table{TableAppointments, TablePatients, TablePayments, TableDentalRecords}

func (t Table) Valid() bool {
	for _, w := range WatchedTables {
		if t == w {
			return true
		}
	}
	return false
}

type Event string

const (
	EventAll    Event = "*"
	EventInsert Event = "INSERT"
	EventUpdate Event = "UPDATE"
	EventDelete Event = "DELETE"
)

func (e Event) Valid() bool {
	switch e {
	case EventAll, EventInsert, EventUpdate, EventDelete:
		return true
	}
	return false
}

// Change says that a row of a watched table changed. Consumers are not
// expected to read more than the table.
type Change struct {
	Table           Table     `json:"table"`
	Event           Event     `json:"event"`
	ClinicID        uuid.UUID `json:"clinic_id"`
	RecordID        uuid.UUID `json:"record_id"`
	CommitTimestamp time.Time `json:"commit_timestamp"`
}

// DecodeChange parses the JSON payload produced by the notify trigger.
func DecodeChange(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	if !c.Table.Valid() {
		return Change{}, fmt.Errorf("decode change: %w: %q", ErrUnknownTable, c.Table)
	}
	return c, nil
}

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrInvalidEvent  = errors.New("invalid event")
)

const filterPrefix = "clinic_id=eq."

// Subscription describes one change stream: a table scoped to one clinic.
type Subscription struct {
	Table    Table     `json:"table"`
	ClinicID uuid.UUID `json:"clinic_id"`
	Event    Event     `json:"event"`
}

// Filter renders the row filter in the wire format clinic_id=eq.<id>.
func (s Subscription) Filter() string {
	return filterPrefix + s.ClinicID.String()
}

// ParseFilter reads the clinic id back out of a rendered filter.
func ParseFilter(filter string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(filter, filterPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidFilter, filter)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidFilter, filter)
	}
	return id, nil
}

func (s Subscription) Validate() error {
	if !s.Table.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTable, s.Table)
	}
	if s.ClinicID == uuid.Nil {
		return fmt.Errorf("%w: clinic id is required", ErrInvalidFilter)
	}
	if s.Event != "" && !s.Event.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEvent, s.Event)
	}
	return nil
}

// Matches reports whether c belongs to this stream.
func (s Subscription) Matches(c Change) bool {
	if c.Table != s.Table || c.ClinicID != s.ClinicID {
		return false
	}
	return s.Event == "" || s.Event == EventAll || s.Event == c.Event
}

func (s Subscription) String() string {
	return "public:" + string(s.Table) + ":" + s.Filter()
}
