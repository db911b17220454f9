package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/xclinic/dental-clinic/internal/auth"
	"github.com/xclinic/dental-clinic/internal/clinic"
	"github.com/xclinic/dental-clinic/internal/config"
	"github.com/xclinic/dental-clinic/internal/db"
	"github.com/xclinic/dental-clinic/internal/logging"
	"github.com/xclinic/dental-clinic/internal/odontogram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}
	log := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "seed").Logger()
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg, "seed")
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	gofakeit.Seed(time.Now().UnixNano())

	authSvc := auth.NewService(auth.NewPgStore(pool), auth.NewLogMailer(log), cfg, log)
	clinicID, err := ensureClinic(context.Background(), authSvc,
		getEnv("SEED_EMAIL", "admin@clinica.local"),
		getEnv("SEED_PASSWORD", "admin123"))
	if err != nil {
		log.Fatal().Err(err).Msg("seed clinic owner")
	}

	svc := clinic.NewService(clinic.NewPgRepository(pool, cfg.ClinicLocation), cfg, log)
	s := seeder{svc: svc, clinicID: clinicID, log: log}

	count, _ := strconv.Atoi(getEnv("SEED_PATIENTS", "40"))
	if err := s.run(context.Background(), count); err != nil {
		log.Fatal().Err(err).Msg("seed clinic data")
	}

	log.Info().Str("clinic_id", clinicID.String()).Int("patients", count).Msg("seed complete")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ensureClinic creates the admin account or signs in to an existing one.
func ensureClinic(ctx context.Context, svc *auth.Service, email, password string) (uuid.UUID, error) {
	user, err := svc.CreateUser(ctx, email, password, "Clínica "+gofakeit.LastName(), auth.RoleAdmin)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, auth.ErrEmailTaken) {
		return uuid.Nil, err
	}
	sess, err := svc.SignInWithPassword(ctx, email, password)
	if err != nil {
		return uuid.Nil, err
	}
	return sess.User.ID, nil
}

type seeder struct {
	svc      *clinic.Service
	clinicID uuid.UUID
	log      zerolog.Logger
}

var (
	reasons  = []string{"Limpieza", "Revisión", "Dolor de muela", "Control de ortodoncia", "Blanqueamiento", "Extracción"}
	genders  = []clinic.Gender{clinic.GenderFemale, clinic.GenderMale, clinic.GenderOther}
	methods  = []clinic.PaymentMethod{clinic.MethodCash, clinic.MethodCreditCard, clinic.MethodDebitCard, clinic.MethodTransfer}
	statuses = []clinic.AppointmentStatus{clinic.StatusScheduled, clinic.StatusCompleted, clinic.StatusCanceled}
)

func (s seeder) run(ctx context.Context, patients int) error {
	loc := s.svc.Location()
	today := s.svc.Today()

	for i := 0; i < patients; i++ {
		p, err := s.patient(ctx)
		if err != nil {
			return err
		}

		for j := 0; j < gofakeit.Number(1, 4); j++ {
			day := today.AddDate(0, 0, gofakeit.Number(-60, 14))
			at := time.Date(day.Year(), day.Month(), day.Day(), gofakeit.Number(8, 17), 30*gofakeit.Number(0, 1), 0, 0, loc)
			reason := reasons[gofakeit.Number(0, len(reasons)-1)]
			appt, err := s.svc.CreateAppointment(ctx, s.clinicID, clinic.AppointmentInput{
				PatientID: p.ID,
				Date:      at,
				Duration:  clinic.DefaultAppointmentDuration,
				Status:    statuses[gofakeit.Number(0, len(statuses)-1)],
				Reason:    &reason,
			})
			if err != nil {
				return err
			}

			if appt.Status == clinic.StatusCompleted {
				if err := s.payment(ctx, p.ID, appt.ID, day); err != nil {
					return err
				}
			}
		}

		if err := s.records(ctx, p.ID, today); err != nil {
			return err
		}
		s.log.Debug().Str("patient", p.FullName).Msg("seeded patient")
	}
	return nil
}

func (s seeder) patient(ctx context.Context) (*clinic.Patient, error) {
	birth := gofakeit.DateRange(time.Now().AddDate(-80, 0, 0), time.Now().AddDate(-5, 0, 0))
	gender := genders[gofakeit.Number(0, len(genders)-1)]
	phone := gofakeit.Numerify("8###-####")
	email := gofakeit.Email()
	address := gofakeit.Street() + ", " + gofakeit.City()

	return s.svc.CreatePatient(ctx, s.clinicID, clinic.PatientInput{
		FullName:  gofakeit.Name(),
		BirthDate: &birth,
		Gender:    &gender,
		Phone:     &phone,
		Address:   &address,
		Email:     &email,
	})
}

func (s seeder) payment(ctx context.Context, patientID, appointmentID uuid.UUID, day time.Time) error {
	currency := clinic.CurrencyNIO
	amount := decimal.NewFromInt(int64(gofakeit.Number(5, 80) * 100))
	if gofakeit.Bool() {
		currency = clinic.CurrencyUSD
		amount = decimal.NewFromFloat(gofakeit.Price(20, 300)).Round(2)
	}
	_, err := s.svc.CreatePayment(ctx, s.clinicID, clinic.PaymentInput{
		PatientID:     patientID,
		AppointmentID: &appointmentID,
		Amount:        amount,
		Currency:      currency,
		Method:        methods[gofakeit.Number(0, len(methods)-1)],
		PaymentDate:   day,
	})
	return err
}

func (s seeder) records(ctx context.Context, patientID uuid.UUID, today time.Time) error {
	conditions := odontogram.Conditions()
	for k := 0; k < gofakeit.Number(0, 5); k++ {
		tooth := 10*gofakeit.Number(1, 4) + gofakeit.Number(1, 8)
		_, err := s.svc.CreateDentalRecords(ctx, s.clinicID, clinic.DentalRecordInput{
			PatientID:     patientID,
			Teeth:         []int{tooth},
			Condition:     conditions[gofakeit.Number(1, len(conditions)-1)],
			TreatmentDate: today.AddDate(0, 0, -gofakeit.Number(0, 365)),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
