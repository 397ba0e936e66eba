package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/tim-admin/internal/errs"
	"github.com/and161185/tim-admin/internal/model"
)

const maxJSONBody = 1 << 20

// decodeJSON reads a strict JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: malformed JSON body", errs.ErrValidation)
	}
	return nil
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var in model.Credentials
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	resp, err := h.auth.Login(r.Context(), in.Username, in.Password, clientIP(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var in model.RefreshRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	access, err := h.auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, model.RefreshResponse{Success: true, AccessToken: access})
}

// changePassword answers a wrong old password with 400: the client treats
// every 401 as a rejected access token.
func (h *handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r.Context())
	if !ok {
		writeError(w, r, h.log, errs.ErrUnauthorized)
		return
	}
	var in model.ChangePasswordRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	err := h.auth.ChangePassword(r.Context(), claims.ID, in.OldPassword, in.NewPassword)
	if errors.Is(err, errs.ErrInvalidCredentials) {
		err = fmt.Errorf("%w: current password is incorrect", errs.ErrValidation)
	}
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
