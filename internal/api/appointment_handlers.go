package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/clinic"
)

// listAppointmentsHandler serves the day view (?date=YYYY-MM-DD, today by
// default) or a patient's history (?patient_id=).
func listAppointmentsHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := queryUUID(w, r, "patient_id")
		if !ok {
			return
		}
		if patientID != uuid.Nil {
			appts, err := svc.ListAppointmentsByPatient(r.Context(), clinicID(r), patientID)
			if err != nil {
				handleServiceError(w, r, log, err)
				return
			}
			writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
			return
		}

		if r.URL.Query().Get("upcoming") == "true" {
			appts, err := svc.UpcomingAppointments(r.Context(), clinicID(r))
			if err != nil {
				handleServiceError(w, r, log, err)
				return
			}
			writeJSON(w, http.StatusOK, toAppointmentDetailResponses(appts))
			return
		}

		day := svc.Today()
		if raw := r.URL.Query().Get("date"); raw != "" {
			d, err := clinic.ParseDate(raw)
			if err != nil {
				handleServiceError(w, r, log, err)
				return
			}
			day = d
		}
		appts, err := svc.ListAppointmentsForDay(r.Context(), clinicID(r), day)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentDetailResponses(appts))
	}
}

func getAppointmentHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		appt, err := svc.GetAppointment(r.Context(), clinicID(r), id)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentDetailResponse(*appt))
	}
}

func createAppointmentHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.input(svc.Location())
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		appt, err := svc.CreateAppointment(r.Context(), clinicID(r), in)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func updateAppointmentHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req AppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.input(svc.Location())
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		appt, err := svc.UpdateAppointment(r.Context(), clinicID(r), id, in)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateAppointmentStatusHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req StatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		appt, err := svc.UpdateAppointmentStatus(r.Context(), clinicID(r), id, clinic.AppointmentStatus(req.Status))
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}
