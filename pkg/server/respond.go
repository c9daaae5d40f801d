package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-go-golems/forkchat/pkg/chat"
	"github.com/go-go-golems/forkchat/pkg/conversation"
	"github.com/go-go-golems/forkchat/pkg/prompts"
	"github.com/go-go-golems/forkchat/pkg/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("could not write response")
	}
}

// writeError maps err to a status code. Unexpected errors are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := http.StatusInternalServerError, "Internal server error"
	switch {
	case errors.Is(err, store.ErrChatNotFound):
		status, message = http.StatusNotFound, "Chat not found"
	case errors.Is(err, prompts.ErrPromptNotFound):
		status, message = http.StatusNotFound, "Prompt not found"
	case errors.Is(err, conversation.ErrLookup):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, conversation.ErrValidation),
		errors.Is(err, prompts.ErrInvalidPrompt),
		errors.Is(err, store.ErrInvalidChatID),
		errors.Is(err, errBadRequest):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, chat.ErrInferenceInProgress):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, context.Canceled):
		status, message = http.StatusServiceUnavailable, "Request cancelled"
	}

	logger := log.With().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Logger()
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
	} else {
		logger.Debug().Err(err).Msg("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: message})
}

var errBadRequest = errors.New("bad request")

// decodeBody reads a JSON body of at most MaxBodyBytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrapf(errBadRequest, "invalid JSON: %s", err)
	}
	return nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, errors.Wrapf(errBadRequest, "could not read body: %s", err)
	}
	return body, nil
}
