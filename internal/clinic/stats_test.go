package clinic_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xclinic/dental-clinic/internal/clinic"
	"github.com/xclinic/dental-clinic/internal/config"
)

func TestBuildMonthlySeries(t *testing.T) {
	loc := mustLoad(t, "America/Managua")

	created := []time.Time{
		time.Date(2025, 2, 1, 3, 0, 0, 0, time.UTC),  // Jan 31 21:00 local
		time.Date(2025, 2, 1, 18, 0, 0, 0, time.UTC), // Feb 1 local
		time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC),
	}
	appts := []time.Time{
		time.Date(2025, 2, 3, 9, 0, 0, 0, loc),
		time.Date(2025, 2, 3, 23, 30, 0, 0, loc),
		time.Date(2025, 3, 1, 0, 0, 0, 0, loc),
	}
	payments := []clinic.Payment{
		{Amount: decimal.RequireFromString("100.25"), PaymentDate: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)},
		{Amount: decimal.RequireFromString("50.75"), PaymentDate: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)},
		{Amount: decimal.RequireFromString("10"), PaymentDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)},
	}

	s := clinic.BuildMonthlySeries(2025, time.February, loc, created, appts, payments)

	require.Len(t, s.Days, 28)
	assert.Equal(t, 1, s.Days[0].NewPatients)
	assert.Equal(t, 1, s.Days[27].NewPatients)
	assert.Equal(t, 2, s.Days[2].Appointments)
	assert.True(t, s.Days[2].Revenue.Equal(decimal.NewFromInt(151)))
	assert.True(t, s.Days[1].Revenue.IsZero())

	total := 0
	for _, d := range s.Days {
		total += d.Appointments
	}
	assert.Equal(t, 2, total, "March appointment ignored")
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, config.PhotoModeStorage)
	ctx := context.Background()
	p := f.patient(t, "Ana")
	f.patient(t, "Beto")

	_, err := f.svc.CreateAppointment(ctx, f.clinicID, clinic.AppointmentInput{PatientID: p.ID, Date: f.now.Add(2 * time.Hour)})
	require.NoError(t, err)
	_, err = f.svc.CreateAppointment(ctx, f.clinicID, clinic.AppointmentInput{PatientID: p.ID, Date: f.now.Add(-2 * time.Hour)})
	require.NoError(t, err)

	feb, _ := clinic.ParseDate("2025-02-20")
	for _, in := range []clinic.PaymentInput{
		{PatientID: p.ID, Amount: decimal.NewFromInt(300), Method: clinic.MethodCash},
		{PatientID: p.ID, Amount: decimal.NewFromInt(20), Currency: clinic.CurrencyUSD, Method: clinic.MethodCreditCard},
		{PatientID: p.ID, Amount: decimal.NewFromInt(999), Method: clinic.MethodCash, PaymentDate: feb},
	} {
		_, err := f.svc.CreatePayment(ctx, f.clinicID, in)
		require.NoError(t, err)
	}

	stats, err := f.svc.Dashboard(ctx, f.clinicID)
	require.NoError(t, err)

	assert.Equal(t, "Clínica Sonrisa", stats.ClinicName)
	assert.Equal(t, 2, stats.Patients)
	assert.Equal(t, 1, stats.UpcomingAppointments)
	assert.True(t, stats.MonthRevenue.Equal(decimal.NewFromInt(320)))
	assert.True(t, stats.RevenueByCurrency[clinic.CurrencyUSD].Equal(decimal.NewFromInt(20)))
	require.Len(t, stats.NextAppointments, 1)
	assert.Equal(t, "Ana", stats.NextAppointments[0].PatientName)
}

func TestMonthlySeries_RejectsBadMonth(t *testing.T) {
	f := newFixture(t, config.PhotoModeStorage)
	_, err := f.svc.MonthlySeries(context.Background(), f.clinicID, 2025, 13)
	assert.ErrorIs(t, err, clinic.ErrValidation)

	s, err := f.svc.MonthlySeries(context.Background(), f.clinicID, 2025, time.March)
	require.NoError(t, err)
	assert.Len(t, s.Days, 31)
}
