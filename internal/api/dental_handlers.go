package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/clinic"
)

// listDentalRecordsHandler requires ?patient_id= and narrows to one tooth
// with ?tooth=.
func listDentalRecordsHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := queryUUID(w, r, "patient_id")
		if !ok {
			return
		}
		if patientID == uuid.Nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id is required")
			return
		}
		tooth, hasTooth, ok := queryInt(w, r, "tooth")
		if !ok {
			return
		}

		var (
			records []clinic.DentalRecord
			err     error
		)
		if hasTooth {
			records, err = svc.ToothHistory(r.Context(), clinicID(r), patientID, tooth)
		} else {
			records, err = svc.ListDentalRecords(r.Context(), clinicID(r), patientID)
		}
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toDentalRecordResponses(records))
	}
}

func getDentalRecordHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		rec, err := svc.GetDentalRecord(r.Context(), clinicID(r), id)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toDentalRecordResponse(*rec))
	}
}

func createDentalRecordsHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DentalRecordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.input(svc.Location())
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		res, err := svc.CreateDentalRecords(r.Context(), clinicID(r), in)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		resp := DentalRecordsCreatedResponse{
			Records:          toDentalRecordResponses(res.Records),
			FollowUpConflict: res.FollowUpConflict,
		}
		if res.FollowUp != nil {
			a := toAppointmentResponse(*res.FollowUp)
			resp.FollowUp = &a
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func updateDentalRecordHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req DentalRecordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.input(svc.Location())
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		rec, err := svc.UpdateDentalRecord(r.Context(), clinicID(r), id, in)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toDentalRecordResponse(*rec))
	}
}

func deleteDentalRecordHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := svc.DeleteDentalRecord(r.Context(), clinicID(r), id); err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
