package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xclinic/dental-clinic/internal/clinic"
	"github.com/xclinic/dental-clinic/internal/odontogram"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// Auth

type TokenRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RecoverRequest struct {
	Email string `json:"email"`
}

type RecoverConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Role      string    `json:"role"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type PushTokenRequest struct {
	Token string `json:"token"`
}

// Patients

type PatientRequest struct {
	FullName  string  `json:"full_name"`
	BirthDate *string `json:"birth_date"`
	Gender    *string `json:"gender"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	Email     *string `json:"email"`
	Notes     *string `json:"notes"`
}

func (req PatientRequest) input() (clinic.PatientInput, error) {
	birth, err := optionalDate("birth_date", req.BirthDate)
	if err != nil {
		return clinic.PatientInput{}, err
	}
	in := clinic.PatientInput{
		FullName:  req.FullName,
		BirthDate: birth,
		Phone:     req.Phone,
		Address:   req.Address,
		Email:     req.Email,
		Notes:     req.Notes,
	}
	if req.Gender != nil && *req.Gender != "" {
		g := clinic.Gender(*req.Gender)
		in.Gender = &g
	}
	return in, nil
}

type PatientResponse struct {
	ID        uuid.UUID `json:"id"`
	ClinicID  uuid.UUID `json:"clinic_id"`
	FullName  string    `json:"full_name"`
	BirthDate *string   `json:"birth_date"`
	Gender    *string   `json:"gender"`
	Phone     *string   `json:"phone"`
	Address   *string   `json:"address"`
	Email     *string   `json:"email"`
	Notes     *string   `json:"notes"`
	PhotoURL  *string   `json:"photo_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toPatientResponse(p clinic.Patient) PatientResponse {
	resp := PatientResponse{
		ID:        p.ID,
		ClinicID:  p.ClinicID,
		FullName:  p.FullName,
		Phone:     p.Phone,
		Address:   p.Address,
		Email:     p.Email,
		Notes:     p.Notes,
		PhotoURL:  p.PhotoURL,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.BirthDate != nil {
		s := clinic.FormatDate(*p.BirthDate)
		resp.BirthDate = &s
	}
	if p.Gender != nil {
		s := string(*p.Gender)
		resp.Gender = &s
	}
	return resp
}

func toPatientResponses(ps []clinic.Patient) []PatientResponse {
	out := make([]PatientResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPatientResponse(p))
	}
	return out
}

// Appointments

// AppointmentRequest.Date is clinic wall-clock, YYYY-MM-DDTHH:mm[:ss].
type AppointmentRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	Date      string    `json:"date"`
	Duration  int       `json:"duration"`
	Status    string    `json:"status"`
	Reason    *string   `json:"reason"`
	Notes     *string   `json:"notes"`
}

func (req AppointmentRequest) input(loc *time.Location) (clinic.AppointmentInput, error) {
	in := clinic.AppointmentInput{
		PatientID: req.PatientID,
		Duration:  req.Duration,
		Status:    clinic.AppointmentStatus(req.Status),
		Reason:    req.Reason,
		Notes:     req.Notes,
	}
	if req.Date != "" {
		d, err := clinic.ParseWallClock(req.Date, loc)
		if err != nil {
			return in, err
		}
		in.Date = d
	}
	return in, nil
}

type StatusRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patient_id"`
	ClinicID     uuid.UUID `json:"clinic_id"`
	Date         string    `json:"date"`
	Duration     int       `json:"duration"`
	Status       string    `json:"status"`
	Reason       *string   `json:"reason"`
	Notes        *string   `json:"notes"`
	PatientName  string    `json:"patient_name,omitempty"`
	PatientPhone *string   `json:"patient_phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toAppointmentResponse(a clinic.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		ClinicID:  a.ClinicID,
		Date:      clinic.FormatWallClock(a.Date),
		Duration:  a.Duration,
		Status:    string(a.Status),
		Reason:    a.Reason,
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAppointmentDetailResponse(a clinic.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(a.Appointment)
	resp.PatientName = a.PatientName
	resp.PatientPhone = a.PatientPhone
	return resp
}

func toAppointmentResponses(as []clinic.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(as))
	for _, a := range as {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func toAppointmentDetailResponses(as []clinic.AppointmentDetail) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(as))
	for _, a := range as {
		out = append(out, toAppointmentDetailResponse(a))
	}
	return out
}

// Payments

type PaymentRequest struct {
	PatientID     uuid.UUID       `json:"patient_id"`
	AppointmentID *uuid.UUID      `json:"appointment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	PaymentDate   *string         `json:"payment_date"`
	Notes         *string         `json:"notes"`
}

func (req PaymentRequest) input() (clinic.PaymentInput, error) {
	in := clinic.PaymentInput{
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		Amount:        req.Amount,
		Currency:      clinic.Currency(req.Currency),
		Method:        clinic.PaymentMethod(req.PaymentMethod),
		Notes:         req.Notes,
	}
	date, err := optionalDate("payment_date", req.PaymentDate)
	if err != nil {
		return in, err
	}
	if date != nil {
		in.PaymentDate = *date
	}
	return in, nil
}

type PaymentResponse struct {
	ID            uuid.UUID       `json:"id"`
	PatientID     uuid.UUID       `json:"patient_id"`
	ClinicID      uuid.UUID       `json:"clinic_id"`
	AppointmentID *uuid.UUID      `json:"appointment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	PaymentDate   string          `json:"payment_date"`
	Notes         *string         `json:"notes"`
	ReceiptURL    *string         `json:"receipt_url"`
	PatientName   string          `json:"patient_name,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toPaymentResponse(p clinic.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		PatientID:     p.PatientID,
		ClinicID:      p.ClinicID,
		AppointmentID: p.AppointmentID,
		Amount:        p.Amount,
		Currency:      string(p.Currency),
		PaymentMethod: string(p.Method),
		PaymentDate:   clinic.FormatDate(p.PaymentDate),
		Notes:         p.Notes,
		ReceiptURL:    p.ReceiptURL,
		CreatedAt:     p.CreatedAt,
	}
}

func toPaymentDetailResponse(p clinic.PaymentDetail) PaymentResponse {
	resp := toPaymentResponse(p.Payment)
	resp.PatientName = p.PatientName
	return resp
}

func toPaymentResponses(ps []clinic.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPaymentResponse(p))
	}
	return out
}

func toPaymentDetailResponses(ps []clinic.PaymentDetail) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPaymentDetailResponse(p))
	}
	return out
}

// Dental records

type DentalRecordRequest struct {
	PatientID       uuid.UUID `json:"patient_id"`
	Teeth           []int     `json:"teeth"`
	ToothNumber     int       `json:"tooth_number"`
	Condition       string    `json:"condition"`
	Notes           *string   `json:"notes"`
	Images          []string  `json:"images"`
	TreatmentDate   *string   `json:"treatment_date"`
	NextAppointment *string   `json:"next_appointment"`
	ForceFollowUp   bool      `json:"force_follow_up"`
}

func (req DentalRecordRequest) input(loc *time.Location) (clinic.DentalRecordInput, error) {
	in := clinic.DentalRecordInput{
		PatientID:     req.PatientID,
		Teeth:         req.Teeth,
		Condition:     odontogram.Condition(req.Condition),
		Notes:         req.Notes,
		Images:        req.Images,
		ForceFollowUp: req.ForceFollowUp,
	}
	if len(in.Teeth) == 0 && req.ToothNumber != 0 {
		in.Teeth = []int{req.ToothNumber}
	}
	date, err := optionalDate("treatment_date", req.TreatmentDate)
	if err != nil {
		return in, err
	}
	if date != nil {
		in.TreatmentDate = *date
	}
	if req.NextAppointment != nil && *req.NextAppointment != "" {
		next, err := clinic.ParseWallClock(*req.NextAppointment, loc)
		if err != nil {
			return in, err
		}
		in.NextAppointment = &next
	}
	return in, nil
}

type DentalRecordResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	ClinicID        uuid.UUID `json:"clinic_id"`
	ToothNumber     int       `json:"tooth_number"`
	Condition       string    `json:"condition"`
	ConditionLabel  string    `json:"condition_label"`
	ConditionColor  string    `json:"condition_color"`
	Notes           *string   `json:"notes"`
	Images          []string  `json:"images"`
	TreatmentDate   string    `json:"treatment_date"`
	NextAppointment *string   `json:"next_appointment"`
	CreatedAt       time.Time `json:"created_at"`
}

func toDentalRecordResponse(r clinic.DentalRecord) DentalRecordResponse {
	resp := DentalRecordResponse{
		ID:             r.ID,
		PatientID:      r.PatientID,
		ClinicID:       r.ClinicID,
		ToothNumber:    r.ToothNumber,
		Condition:      string(r.Condition),
		ConditionLabel: r.Condition.Label(),
		ConditionColor: r.Condition.Color(),
		Notes:          r.Notes,
		Images:         r.Images,
		TreatmentDate:  clinic.FormatDate(r.TreatmentDate),
		CreatedAt:      r.CreatedAt,
	}
	if resp.Images == nil {
		resp.Images = []string{}
	}
	if r.NextAppointment != nil {
		s := clinic.FormatWallClock(*r.NextAppointment)
		resp.NextAppointment = &s
	}
	return resp
}

func toDentalRecordResponses(rs []clinic.DentalRecord) []DentalRecordResponse {
	out := make([]DentalRecordResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toDentalRecordResponse(r))
	}
	return out
}

type DentalRecordsCreatedResponse struct {
	Records          []DentalRecordResponse `json:"records"`
	FollowUp         *AppointmentResponse   `json:"follow_up,omitempty"`
	FollowUpConflict bool                   `json:"follow_up_conflict"`
}

type OdontogramResponse struct {
	PatientID uuid.UUID `json:"patient_id"`
	odontogram.Chart
}

// Dashboard

type DashboardResponse struct {
	ClinicName           string                     `json:"clinic_name"`
	Patients             int                        `json:"patients"`
	UpcomingAppointments int                        `json:"upcoming_appointments"`
	MonthRevenue         decimal.Decimal            `json:"month_revenue"`
	RevenueByCurrency    map[string]decimal.Decimal `json:"revenue_by_currency"`
	NextAppointments     []AppointmentResponse      `json:"next_appointments"`
}

func toDashboardResponse(d clinic.DashboardStats) DashboardResponse {
	byCurrency := make(map[string]decimal.Decimal, len(d.RevenueByCurrency))
	for c, v := range d.RevenueByCurrency {
		byCurrency[string(c)] = v
	}
	return DashboardResponse{
		ClinicName:           d.ClinicName,
		Patients:             d.Patients,
		UpcomingAppointments: d.UpcomingAppointments,
		MonthRevenue:         d.MonthRevenue,
		RevenueByCurrency:    byCurrency,
		NextAppointments:     toAppointmentDetailResponses(d.NextAppointments),
	}
}

type DayStatsResponse struct {
	Date         string          `json:"date"`
	NewPatients  int             `json:"new_patients"`
	Appointments int             `json:"appointments"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type MonthlySeriesResponse struct {
	Year  int                `json:"year"`
	Month int                `json:"month"`
	Days  []DayStatsResponse `json:"days"`
}

func toMonthlySeriesResponse(m clinic.MonthlySeries) MonthlySeriesResponse {
	resp := MonthlySeriesResponse{Year: m.Year, Month: int(m.Month), Days: make([]DayStatsResponse, 0, len(m.Days))}
	for _, d := range m.Days {
		resp.Days = append(resp.Days, DayStatsResponse{
			Date:         clinic.FormatDate(d.Date),
			NewPatients:  d.NewPatients,
			Appointments: d.Appointments,
			Revenue:      d.Revenue,
		})
	}
	return resp
}

func optionalDate(field string, raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	d, err := clinic.ParseDate(*raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &d, nil
}
