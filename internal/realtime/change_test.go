package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscription_FilterRoundTrip(t *testing.T) {
	clinic := uuid.New()
	sub := Subscription{Table: TablePayments, ClinicID: clinic, Event: EventAll}

	assert.Equal(t, "clinic_id=eq."+clinic.String(), sub.Filter())

	parsed, err := ParseFilter(sub.Filter())
	require.NoError(t, err)
	assert.Equal(t, clinic, parsed)
}

func TestParseFilter_Rejects(t *testing.T) {
	for _, f := range []string{"", "clinic_id=eq.", "clinic_id=neq." + uuid.NewString(), "patient_id=eq." + uuid.NewString(), "clinic_id=eq.not-a-uuid"} {
		_, err := ParseFilter(f)
		assert.ErrorIs(t, err, ErrInvalidFilter, f)
	}
}

func TestSubscription_Validate(t *testing.T) {
	clinic := uuid.New()

	assert.NoError(t, Subscription{Table: TablePatients, ClinicID: clinic}.Validate())
	assert.ErrorIs(t, Subscription{Table: "profiles", ClinicID: clinic}.Validate(), ErrUnknownTable)
	assert.ErrorIs(t, Subscription{Table: TablePatients}.Validate(), ErrInvalidFilter)
	assert.ErrorIs(t, Subscription{Table: TablePatients, ClinicID: clinic, Event: "TRUNCATE"}.Validate(), ErrInvalidEvent)
}

func TestSubscription_Matches(t *testing.T) {
	clinic := uuid.New()
	change := Change{Table: TableAppointments, Event: EventUpdate, ClinicID: clinic}

	assert.True(t, Subscription{Table: TableAppointments, ClinicID: clinic, Event: EventAll}.Matches(change))
	assert.True(t, Subscription{Table: TableAppointments, ClinicID: clinic, Event: EventUpdate}.Matches(change))
	assert.False(t, Subscription{Table: TableAppointments, ClinicID: clinic, Event: EventInsert}.Matches(change))
	assert.False(t, Subscription{Table: TableAppointments, ClinicID: uuid.New(), Event: EventAll}.Matches(change))
	assert.False(t, Subscription{Table: TablePatients, ClinicID: clinic, Event: EventAll}.Matches(change))
}

func TestDecodeChange(t *testing.T) {
	clinic := uuid.New()
	record := uuid.New()
	payload := `{"table":"dental_records","event":"INSERT","clinic_id":"` + clinic.String() +
		`","record_id":"` + record.String() + `","commit_timestamp":"2025-03-01T10:15:00.123456+00:00"}`

	c, err := DecodeChange([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, TableDentalRecords, c.Table)
	assert.Equal(t, EventInsert, c.Event)
	assert.Equal(t, clinic, c.ClinicID)
	assert.Equal(t, record, c.RecordID)
	assert.Equal(t, 2025, c.CommitTimestamp.Year())

	_, err = DecodeChange([]byte(`{"table":"profiles"}`))
	assert.ErrorIs(t, err, ErrUnknownTable)

	_, err = DecodeChange([]byte(`not json`))
	assert.Error(t, err)
}
