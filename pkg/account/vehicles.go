package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cscashby/TeslaJS/pkg/connector"
	"github.com/cscashby/TeslaJS/pkg/connector/inet"
	"github.com/cscashby/TeslaJS/pkg/protocol"
	"github.com/cscashby/TeslaJS/pkg/vehicle"
)

// ErrNilSession is returned by Vehicles, which must write the resolved ID into its session.
var ErrNilSession = errors.New("session is nil")

func (a *Account) listVehicles(ctx context.Context, session *connector.Session) ([]vehicle.Record, error) {
	if session == nil {
		session = &connector.Session{}
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+session.AuthToken)
	header.Set("Content-Type", inet.ContentType)
	endpoint := strings.TrimRight(a.BaseURL(), "/") + "/api/1/vehicles"

	status, body, err := a.conn.Exchange(ctx, http.MethodGet, endpoint, header, nil)
	if err != nil {
		return nil, err
	}
	data, err := inet.DecodeEnvelope(status, body)
	if err != nil {
		return nil, err
	}
	var records []vehicle.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, protocol.NewDecodeError(fmt.Errorf("vehicle list: %w", err), status, body)
	}
	return records, nil
}

// Vehicles fetches the vehicle list and returns the entry at session.CarIndex. The record's ID is
// copied from its id_s field and written into session.VehicleID.
//
// An out-of-range index, including an empty list, yields a *protocol.DecodeError wrapping
// protocol.ErrNoVehicle and leaves the session untouched. A nil session yields a
// *protocol.NominalError wrapping ErrNilSession without contacting the server.
func (a *Account) Vehicles(ctx context.Context, session *connector.Session) (*vehicle.Record, error) {
	logger := a.Logger()
	if session == nil {
		logger.Error("vehicles failed: %s", ErrNilSession)
		return nil, &protocol.NominalError{Details: ErrNilSession}
	}
	logger.Call("vehicles(index=%d)", session.CarIndex)
	records, err := a.listVehicles(ctx, session)
	if err != nil {
		logger.Error("vehicles failed: %s", err)
		return nil, err
	}
	if session.CarIndex < 0 || session.CarIndex >= len(records) {
		err := protocol.NewDecodeError(
			fmt.Errorf("%w: index %d, %d vehicles", protocol.ErrNoVehicle, session.CarIndex, len(records)), 0, nil)
		logger.Error("vehicles failed: %s", err)
		return nil, err
	}
	record := records[session.CarIndex]
	record.ID = record.IDS
	session.VehicleID = record.ID
	logger.Return("vehicles() selected %s (%s)", record.ID, record.DisplayName)
	return &record, nil
}

// AllVehicles returns the account's full vehicle list as sent by the server. Records are not
// normalized and the session is not modified.
func (a *Account) AllVehicles(ctx context.Context, session *connector.Session) ([]vehicle.Record, error) {
	logger := a.Logger()
	logger.Call("allVehicles()")
	records, err := a.listVehicles(ctx, session)
	if err != nil {
		logger.Error("allVehicles failed: %s", err)
		return nil, err
	}
	logger.Return("allVehicles() returned %d vehicles", len(records))
	return records, nil
}
