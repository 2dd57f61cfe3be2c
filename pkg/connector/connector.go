// Package connector defines the contract between the command catalog and the transport that
// carries commands to the owner API.
package connector

import (
	"context"
	"encoding/json"
)

const (
	// DefaultBaseURL is the owner API portal used when no override is configured.
	DefaultBaseURL = "https://owner-api.teslamotors.com"

	// DefaultStreamingURL is the telemetry streaming portal. Vehicle IDs are appended directly.
	DefaultStreamingURL = "https://streaming.vn.teslamotors.com/stream/"
)

// MaxResponseLength caps the maximum byte-length of responses that connectors must support.
const MaxResponseLength = 1000000

// Session identifies the caller and the target vehicle for a request.
//
// A Session is created by the caller and passed by pointer. Dispatchers never modify it;
// account.Vehicles writes the resolved vehicle ID into VehicleID.
type Session struct {
	// AuthToken is the OAuth bearer token returned by a successful login.
	AuthToken string `json:"-"`
	// VehicleID is the opaque string identifier used in command URLs.
	VehicleID string `json:"vehicle_id,omitempty"`
	// CarIndex selects an entry from the account's vehicle list. Zero selects the first.
	CarIndex int `json:"car_index,omitempty"`
}

// Dispatcher sends a single request to {base}/api/1/vehicles/{VehicleID}/{command} and returns
// the "response" member of the JSON envelope.
//
// Implementations return exactly one result per call. On failure the error implements
// protocol.Error. The returned data is not necessarily nil if the error is set: a transport
// failure that still produced a decodable partial body returns both.
//
// Implementations must be thread safe.
type Dispatcher interface {
	Get(ctx context.Context, session *Session, command string) (json.RawMessage, error)
	Post(ctx context.Context, session *Session, command string, body interface{}) (json.RawMessage, error)
}
