package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/warp/quota-engine/generic"
)

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code generic.Code, message string, err error) {
	resp := ErrorResponse{Code: string(code), Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps an error category to its HTTP status.
func statusFor(code generic.Code) int {
	switch code {
	case generic.CodeNotFound:
		return http.StatusNotFound
	case generic.CodeBadRequest:
		return http.StatusBadRequest
	case generic.CodeConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeDomainError writes an engine error. Client errors carry their own
// message; internal ones are logged and hidden behind a generic message.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := generic.CodeOf(err)
	if code == generic.CodeInternal {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, code, "Internal server error", nil)
		return
	}
	writeError(w, statusFor(code), code, err.Error(), nil)
}

// decodeAndValidate reads a JSON body into req and runs its validate tags.
// It writes the 400 response itself and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, generic.CodeBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, generic.CodeBadRequest, "Validation failed", describeValidation(verrs))
			return false
		}
		writeError(w, http.StatusBadRequest, generic.CodeBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func describeValidation(verrs validator.ValidationErrors) error {
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Errorf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("%s failed %s", fe.Field(), fe.Tag())
}
