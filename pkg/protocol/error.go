// Package protocol defines the errors returned by the owner API client.
//
// Every failed request yields exactly one of three kinds of error:
//
//   - *TransportError: the HTTP exchange itself failed (DNS, connection reset, timeout, truncated
//     body). A command may or may not have reached the vehicle.
//   - *DecodeError: a response arrived but could not be interpreted (not JSON, no "response"
//     field, vehicle index out of range, oversized body).
//   - *APIError: the server answered with an envelope describing an error.
//
// All three implement Error, so callers can classify failures without type switches.
package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// MayHaveSucceeded returns true if the Error was triggered by a command that might have been
	// executed. For example, if a client times out while waiting for a response, then the client
	// cannot tell if the command was received.
	MayHaveSucceeded() bool

	// Temporary returns true if the Error might be the result of a transient condition, such as a
	// vehicle that is still waking up.
	Temporary() bool
}

var (
	// ErrNotImplemented is returned by operations the client exposes but does not support, such as
	// remote token invalidation.
	ErrNotImplemented = NewError("not implemented", false, false)
	// ErrMissingResponse indicates a JSON body without a "response" field.
	ErrMissingResponse = errors.New("response field missing from body")
	// ErrNoVehicle indicates the requested vehicle index is not present in the account's list.
	ErrNoVehicle = errors.New("vehicle index out of range")
	// ErrResponseTooLarge indicates the server sent more than the client is willing to buffer.
	ErrResponseTooLarge = errors.New("response exceeds maximum length")
)

type CommandError struct {
	Err               error
	PossibleSuccess   bool
	PossibleTemporary bool
}

func NewError(message string, mayHaveSucceeded bool, temporary bool) error {
	return &CommandError{Err: errors.New(message), PossibleSuccess: mayHaveSucceeded, PossibleTemporary: temporary}
}

func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) MayHaveSucceeded() bool {
	return e.PossibleSuccess
}

func (e *CommandError) Temporary() bool {
	return e.PossibleTemporary
}

// TransportError wraps a failure of the underlying HTTP exchange.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MayHaveSucceeded is always true: the request may have been delivered before the failure.
func (e *TransportError) MayHaveSucceeded() bool {
	return true
}

func (e *TransportError) Temporary() bool {
	return true
}

// DecodeError indicates a response body that could not be interpreted.
type DecodeError struct {
	Err        error
	StatusCode int
	// Body holds at most the first maxErrorBody bytes of the response.
	Body []byte
}

const maxErrorBody = 512

// NewDecodeError truncates body before storing it.
func NewDecodeError(err error, statusCode int, body []byte) *DecodeError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &DecodeError{Err: err, StatusCode: statusCode, Body: body}
}

func (e *DecodeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("could not decode response (HTTP %d): %s", e.StatusCode, e.Err)
	}
	return "could not decode response: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) MayHaveSucceeded() bool {
	return false
}

func (e *DecodeError) Temporary() bool {
	return false
}

// APIError is an error reported by the server in the response envelope, e.g.
//
//	{"response": null, "error": "vehicle unavailable", "error_description": ""}
type APIError struct {
	StatusCode  int
	Message     string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("server error (HTTP %d): %s: %s", e.StatusCode, e.Message, e.Description)
	}
	return fmt.Sprintf("server error (HTTP %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) MayHaveSucceeded() bool {
	return false
}

func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// MayHaveSucceeded returns true if err indicates the command may have been executed but the
// client did not receive a confirmation.
func MayHaveSucceeded(err error) bool {
	var commErr Error
	return errors.As(err, &commErr) && commErr.MayHaveSucceeded()
}

// Temporary returns true if err indicates the command failed due to possibly transient
// conditions that do not require user action to resolve.
func Temporary(err error) bool {
	var commErr Error
	return errors.As(err, &commErr) && commErr.Temporary()
}

// ShouldRetry returns true if the client could safely reissue the command that triggered err.
// The client itself never retries.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if MayHaveSucceeded(err) {
		return false
	}
	return Temporary(err)
}

func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

func IsDecodeError(err error) bool {
	var dErr *DecodeError
	return errors.As(err, &dErr)
}

func IsAPIError(err error) bool {
	var aErr *APIError
	return errors.As(err, &aErr)
}

// NominalError indicates the request was well-formed and delivered, but the vehicle or the
// client refused to act on it (for example, an invalid parameter).
type NominalError struct {
	Details error
}

func (e *NominalError) Error() string {
	return e.Details.Error()
}

func (e *NominalError) Unwrap() error {
	return e.Details
}

func (e *NominalError) MayHaveSucceeded() bool {
	return MayHaveSucceeded(e.Details)
}

func (e *NominalError) Temporary() bool {
	return Temporary(e.Details)
}

func IsNominalError(err error) bool {
	if err == nil {
		return false
	}
	var nErr *NominalError
	return errors.As(err, &nErr)
}
