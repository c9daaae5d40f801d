package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrProvider      = errors.New("provider error")
	ErrNotConfigured = errors.New("provider is not configured")
)

type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindAPI       ErrorKind = "api"
	KindStream    ErrorKind = "stream"
	KindConfig    ErrorKind = "config"
	KindCanceled  ErrorKind = "canceled"
)

// ProviderError is any failure of an inference call.
type ProviderError struct {
	Provider   Name
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ErrProvider.Error()
	}
	msg := "unknown error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed (%d): %s", e.Provider.DisplayName(), e.StatusCode, msg)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider.DisplayName(), msg)
}

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimit
	}
	return KindAPI
}

func NewStatusError(name Name, status int, err error) *ProviderError {
	return &ProviderError{Provider: name, Kind: KindForStatus(status), StatusCode: status, Err: err}
}

func NotConfiguredError(name Name) *ProviderError {
	return &ProviderError{
		Provider: name,
		Kind:     KindConfig,
		Err:      fmt.Errorf("%w: no API key found for %s", ErrNotConfigured, name.DisplayName()),
	}
}

// WrapError turns err into a *ProviderError, classifying it when it isn't one
// already.
func WrapError(name Name, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	kind := KindStream
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = KindCanceled
	case errors.As(err, &netErr):
		kind = KindNetwork
	}
	return &ProviderError{Provider: name, Kind: kind, Err: err}
}
