package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/clinic"
)

func dashboardHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Dashboard(r.Context(), clinicID(r))
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toDashboardResponse(*stats))
	}
}

// monthlySeriesHandler defaults to the current clinic month.
func monthlySeriesHandler(svc *clinic.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		today := svc.Today()
		year, hasYear, ok := queryInt(w, r, "year")
		if !ok {
			return
		}
		month, hasMonth, ok := queryInt(w, r, "month")
		if !ok {
			return
		}
		if !hasYear {
			year = today.Year()
		}
		if !hasMonth {
			month = int(today.Month())
		}

		series, err := svc.MonthlySeries(r.Context(), clinicID(r), year, time.Month(month))
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toMonthlySeriesResponse(*series))
	}
}
