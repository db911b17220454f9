package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/auth"
	"github.com/xclinic/dental-clinic/internal/notify"
)

func tokenHandler(svc *auth.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var (
			sess *auth.Session
			err  error
		)
		switch grant := r.URL.Query().Get("grant_type"); grant {
		case "password":
			sess, err = svc.SignInWithPassword(r.Context(), req.Email, req.Password)
		case "refresh_token":
			sess, err = svc.RefreshSession(r.Context(), req.RefreshToken)
		default:
			writeError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be password or refresh_token")
			return
		}
		if err != nil {
			handleAuthError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func logoutHandler(svc *auth.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LogoutRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.SignOut(r.Context(), req.RefreshToken); err != nil {
			handleAuthError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func recoverHandler(svc *auth.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecoverRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.ResetPasswordForEmail(r.Context(), req.Email); err != nil {
			handleAuthError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	}
}

func recoverConfirmHandler(svc *auth.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecoverConfirmRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
			handleAuthError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func currentUserHandler(svc *auth.Service, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := svc.User(r.Context(), clinicID(r))
		if err != nil {
			handleAuthError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, UserResponse{
			ID:        u.ID,
			Email:     u.Email,
			FullName:  u.FullName,
			Role:      u.Role,
			IsAdmin:   u.IsAdmin(),
			CreatedAt: u.CreatedAt,
		})
	}
}

// PushTokenRegistrar stores a device push token for a user.
type PushTokenRegistrar interface {
	RegisterPushToken(ctx context.Context, userID uuid.UUID, token string) error
}

func pushTokenHandler(reg PushTokenRegistrar, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PushTokenRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := reg.RegisterPushToken(r.Context(), clinicID(r), req.Token); err != nil {
			if errors.Is(err, notify.ErrInvalidPushToken) {
				writeError(w, http.StatusBadRequest, "invalid_push_token", err.Error())
				return
			}
			handleServiceError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
