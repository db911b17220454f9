package clinic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DashboardStats struct {
	ClinicName           string
	Patients             int
	UpcomingAppointments int
	MonthRevenue         decimal.Decimal
	RevenueByCurrency    map[Currency]decimal.Decimal
	NextAppointments     []AppointmentDetail
}

type DayStats struct {
	Date         time.Time
	NewPatients  int
	Appointments int
	Revenue      decimal.Decimal
}

type MonthlySeries struct {
	Year  int
	Month time.Month
	Days  []DayStats
}

// Dashboard gathers the home screen figures. Revenue counts payments dated in
// the current month.
func (s *Service) Dashboard(ctx context.Context, clinicID uuid.UUID) (*DashboardStats, error) {
	now := s.now().In(s.loc)

	profile, err := s.repo.GetProfile(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	patients, err := s.repo.CountPatients(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}

	upcoming, err := s.repo.CountAppointmentsFrom(ctx, clinicID, now)
	if err != nil {
		return nil, fmt.Errorf("count upcoming appointments: %w", err)
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)
	payments, err := s.repo.ListPaymentsBetween(ctx, clinicID, DateRange{From: monthStart, To: monthEnd})
	if err != nil {
		return nil, fmt.Errorf("list month payments: %w", err)
	}

	next, err := s.UpcomingAppointments(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		ClinicName:           profile.FullName,
		Patients:             patients,
		UpcomingAppointments: upcoming,
		MonthRevenue:         decimal.Zero,
		RevenueByCurrency:    make(map[Currency]decimal.Decimal),
		NextAppointments:     next,
	}
	for _, p := range payments {
		stats.MonthRevenue = stats.MonthRevenue.Add(p.Amount)
		stats.RevenueByCurrency[p.Currency] = stats.RevenueByCurrency[p.Currency].Add(p.Amount)
	}
	return stats, nil
}

// MonthlySeries loads one month of activity and buckets it per day.
func (s *Service) MonthlySeries(ctx context.Context, clinicID uuid.UUID, year int, month time.Month) (*MonthlySeries, error) {
	if month < time.January || month > time.December {
		return nil, invalid("month", "must be between 1 and 12")
	}
	if year < 1900 || year > 9999 {
		return nil, invalid("year", "is out of range")
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)

	created, err := s.repo.PatientCreationTimes(ctx, clinicID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list new patients: %w", err)
	}

	appts, err := s.repo.ListAppointmentsBetween(ctx, clinicID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list month appointments: %w", err)
	}
	dates := make([]time.Time, len(appts))
	for i, a := range appts {
		dates[i] = a.Date
	}

	details, err := s.repo.ListPaymentsBetween(ctx, clinicID, DateRange{From: DateOf(start), To: DateOf(end)})
	if err != nil {
		return nil, fmt.Errorf("list month payments: %w", err)
	}
	payments := make([]Payment, len(details))
	for i, d := range details {
		payments[i] = d.Payment
	}

	series := BuildMonthlySeries(year, month, s.loc, created, dates, payments)
	return &series, nil
}

// BuildMonthlySeries buckets patient creation instants, appointment
// wall-clock dates and payment dates into the days of one month. Values
// outside the month are ignored.
func BuildMonthlySeries(year int, month time.Month, loc *time.Location, patientsCreated, appointments []time.Time, payments []Payment) MonthlySeries {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()

	series := MonthlySeries{Year: year, Month: month, Days: make([]DayStats, days)}
	for i := range series.Days {
		series.Days[i] = DayStats{Date: first.AddDate(0, 0, i), Revenue: decimal.Zero}
	}

	bucket := func(t time.Time) (int, bool) {
		if t.Year() != year || t.Month() != month {
			return 0, false
		}
		return t.Day() - 1, true
	}

	for _, t := range patientsCreated {
		if i, ok := bucket(t.In(loc)); ok {
			series.Days[i].NewPatients++
		}
	}
	for _, t := range appointments {
		if i, ok := bucket(t); ok {
			series.Days[i].Appointments++
		}
	}
	for _, p := range payments {
		if i, ok := bucket(p.PaymentDate); ok {
			series.Days[i].Revenue = series.Days[i].Revenue.Add(p.Amount)
		}
	}
	return series
}
