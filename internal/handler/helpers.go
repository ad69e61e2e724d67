package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/casaluna/order-service/internal/apperr"
	"github.com/casaluna/order-service/internal/auth"
)

// envelope is the uniform response body: data on success, message on failure.
type envelope struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Timestamp  time.Time   `json:"timestamp"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func newPagination(page, limit, total int) *pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return &pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	respondWithEnvelope(w, code, envelope{
		Success:   code < http.StatusBadRequest,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	})
}

func respondWithList(w http.ResponseWriter, code int, payload interface{}, p *pagination) {
	respondWithEnvelope(w, code, envelope{
		Success:    code < http.StatusBadRequest,
		Data:       payload,
		Timestamp:  time.Now().UTC(),
		Pagination: p,
	})
}

func respondWithError(w http.ResponseWriter, err error) {
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	respondWithEnvelope(w, code, envelope{
		Success:   false,
		Message:   apperr.ClientMessage(err),
		Timestamp: time.Now().UTC(),
	})
}

func respondWithMessage(w http.ResponseWriter, code int, message string) {
	respondWithEnvelope(w, code, envelope{
		Success:   code < http.StatusBadRequest,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func respondWithEnvelope(w http.ResponseWriter, code int, env envelope) {
	response, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"failed to encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

// decodeJSON decodes the request body strictly, rejecting unknown fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperr.Validation("invalid request payload: %v", err)
	}
	return nil
}

func validateStruct(validate *validator.Validate, payload interface{}) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		return apperr.Validation("validation failed: %s", formatValidationErrors(validationErrors))
	}
	return fmt.Errorf("handler: unexpected validation error: %w", err)
}

func formatValidationErrors(errs validator.ValidationErrors) string {
	msg := ""
	for i, fe := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("field %s failed on the %q rule", fe.Field(), fe.Tag())
	}
	return msg
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return uuid.Nil, apperr.Validation("%s is required", name)
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("%s is not a valid UUID", name)
	}
	return id, nil
}

func tokenFrom(r *http.Request) string {
	return auth.Token(r.Context())
}

// callerID resolves the authenticated customer, required on customer-facing
// routes.
func callerID(r *http.Request) (uuid.UUID, error) {
	id, ok := auth.UserID(r.Context())
	if !ok {
		return uuid.Nil, apperr.Forbidden("caller identity is missing")
	}
	return id, nil
}
