package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/clinic"
)

// listPaymentsHandler serves a date range (?from=&to=, last month by default)
// or a patient's payments (?patient_id=).
func listPaymentsHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := queryUUID(w, r, "patient_id")
		if !ok {
			return
		}
		if patientID != uuid.Nil {
			payments, err := svc.ListPaymentsByPatient(r.Context(), clinicID(r), patientID)
			if err != nil {
				handleServiceError(w, r, log, err)
				return
			}
			writeJSON(w, http.StatusOK, toPaymentResponses(payments))
			return
		}

		q := r.URL.Query()
		from, err := optionalDate("from", stringParam(q.Get("from")))
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		to, err := optionalDate("to", stringParam(q.Get("to")))
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		var rng clinic.DateRange
		if from != nil {
			rng.From = *from
		}
		if to != nil {
			rng.To = *to
		}

		payments, err := svc.ListPayments(r.Context(), clinicID(r), rng)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toPaymentDetailResponses(payments))
	}
}

func stringParam(s string) *string {
	return &s
}

func getPaymentHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		p, err := svc.GetPayment(r.Context(), clinicID(r), id)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toPaymentDetailResponse(*p))
	}
}

func createPaymentHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.input()
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		p, err := svc.CreatePayment(r.Context(), clinicID(r), in)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPaymentResponse(*p))
	}
}

func updatePaymentHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req PaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.input()
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		p, err := svc.UpdatePayment(r.Context(), clinicID(r), id, in)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toPaymentResponse(*p))
	}
}

func attachReceiptHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		data, ok := readBody(w, r, clinic.MaxReceiptBytes)
		if !ok {
			return
		}
		p, err := svc.AttachReceipt(r.Context(), clinicID(r), id, data)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toPaymentResponse(*p))
	}
}
