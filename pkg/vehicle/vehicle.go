// Package vehicle exposes the owner API command catalog. Each Vehicle method issues exactly one
// request through a connector.Dispatcher: a GET for state queries and a POST for commands.
package vehicle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cscashby/TeslaJS/pkg/connector"
	"github.com/cscashby/TeslaJS/pkg/protocol"
)

// ErrCommandFailed is wrapped by errors returned when the vehicle reports result=false.
var ErrCommandFailed = errors.New("vehicle rejected command")

// CommandResult is the payload returned by POST commands.
type CommandResult struct {
	Result bool   `json:"result"`
	Reason string `json:"reason"`
}

// A Vehicle binds the command catalog to a session.
type Vehicle struct {
	conn    connector.Dispatcher
	session *connector.Session
}

// NewVehicle creates a Vehicle. The session is read on every call, so later updates to
// session.VehicleID take effect immediately.
func NewVehicle(conn connector.Dispatcher, session *connector.Session) *Vehicle {
	return &Vehicle{conn: conn, session: session}
}

// ID returns the vehicle identifier used in request URLs, or "" without a session.
func (v *Vehicle) ID() string {
	if v.session == nil {
		return ""
	}
	return v.session.VehicleID
}

func (v *Vehicle) Session() *connector.Session {
	return v.session
}

// Get issues a GET for an arbitrary path relative to the vehicle. Unrecognized paths are
// forwarded unchanged.
func (v *Vehicle) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return v.conn.Get(ctx, v.session, path)
}

// Post issues a POST for an arbitrary path relative to the vehicle.
func (v *Vehicle) Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return v.conn.Post(ctx, v.session, path, body)
}

func (v *Vehicle) getState(ctx context.Context, path string, state interface{}) error {
	data, err := v.conn.Get(ctx, v.session, path)
	if err != nil {
		return err
	}
	return v.decodeState(path, data, state)
}

func (v *Vehicle) decodeState(path string, data json.RawMessage, state interface{}) error {
	if err := json.Unmarshal(data, state); err != nil {
		return protocol.NewDecodeError(fmt.Errorf("%s: %w", path, err), 0, data)
	}
	return nil
}

// command posts body to path and decodes the CommandResult. The decoded result is returned even
// when the dispatcher reports an error alongside data.
func (v *Vehicle) command(ctx context.Context, path string, body interface{}) (*CommandResult, error) {
	data, err := v.conn.Post(ctx, v.session, path, body)
	var result *CommandResult
	if len(data) > 0 && string(data) != "null" {
		var r CommandResult
		if decodeErr := json.Unmarshal(data, &r); decodeErr != nil {
			if err == nil {
				err = protocol.NewDecodeError(fmt.Errorf("%s: %w", path, decodeErr), 0, data)
			}
		} else {
			result = &r
		}
	}
	return result, err
}

// Err converts a result=false reply into an error wrapping ErrCommandFailed.
func (r *CommandResult) Err() error {
	if r == nil || r.Result {
		return nil
	}
	if r.Reason == "" {
		return &protocol.NominalError{Details: ErrCommandFailed}
	}
	return &protocol.NominalError{Details: fmt.Errorf("%w: %s", ErrCommandFailed, r.Reason)}
}
