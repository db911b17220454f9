package api

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/clinic"
)

func listPatientsHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patients, err := svc.SearchPatients(r.Context(), clinicID(r), r.URL.Query().Get("q"))
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientResponses(patients))
	}
}

func getPatientHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		p, err := svc.GetPatient(r.Context(), clinicID(r), id)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientResponse(*p))
	}
}

func createPatientHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PatientRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.input()
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		p, err := svc.CreatePatient(r.Context(), clinicID(r), in)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPatientResponse(*p))
	}
}

func updatePatientHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req PatientRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.input()
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		p, err := svc.UpdatePatient(r.Context(), clinicID(r), id, in)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientResponse(*p))
	}
}

// uploadPhotoHandler takes the raw image as the request body.
func uploadPhotoHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		contentType, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
		data, ok := readBody(w, r, clinic.MaxPhotoBytes)
		if !ok {
			return
		}
		p, err := svc.UploadPatientPhoto(r.Context(), clinicID(r), id, strings.TrimSpace(contentType), data)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientResponse(*p))
	}
}

func odontogramHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		chart, err := svc.Odontogram(r.Context(), clinicID(r), id)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, OdontogramResponse{PatientID: id, Chart: chart})
	}
}
