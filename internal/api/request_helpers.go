package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// requestValidator is shared across handlers; validator.Validate is
// concurrency-safe.
var requestValidator = validator.New()

// DecodeAndValidate decodes the request body into dst and runs struct
// validation. Returns a client-safe error message on failure.
func DecodeAndValidate(r *http.Request, dst interface{}) (string, error) {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return "Invalid request body", fmt.Errorf("decoding request body: %w", err)
	}

	if err := requestValidator.Struct(dst); err != nil {
		return SanitizeValidationError(err), err
	}

	return "", nil
}

// URLParamUUID parses a UUID path parameter from the chi route context.
func URLParamUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}
