package vehicle

import (
	"context"
)

// Trunk selectors for OpenTrunk.
const (
	Frunk = "frunk"
	Trunk = "trunk"
)

// Sunroof states accepted by SunroofControl.
const (
	SunroofOpen    = "open"
	SunroofVent    = "vent"
	SunroofClose   = "close"
	SunroofComfort = "comfort"
	sunroofMove    = "move"
)

func (v *Vehicle) HonkHorn(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/honk_horn", nil)
}

func (v *Vehicle) FlashLights(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/flash_lights", nil)
}

type trunkRequest struct {
	WhichTrunk string `json:"which_trunk"`
}

// OpenTrunk opens the front (Frunk) or rear (Trunk) trunk. Other values are forwarded unchanged.
func (v *Vehicle) OpenTrunk(ctx context.Context, which string) (*CommandResult, error) {
	return v.command(ctx, "command/trunk_open", trunkRequest{WhichTrunk: which})
}

type sunroofRequest struct {
	State   string `json:"state"`
	Percent *int   `json:"percent,omitempty"`
}

// SunroofControl moves the sunroof to one of the named states.
func (v *Vehicle) SunroofControl(ctx context.Context, state string) (*CommandResult, error) {
	return v.command(ctx, "command/sun_roof_control", sunroofRequest{State: state})
}

// SunroofMove opens the sunroof to percent. The value is not range checked.
func (v *Vehicle) SunroofMove(ctx context.Context, percent int) (*CommandResult, error) {
	return v.command(ctx, "command/sun_roof_control", sunroofRequest{State: sunroofMove, Percent: &percent})
}

// WakeResult is the payload returned by wake_up.
type WakeResult struct {
	ID        int64  `json:"id"`
	IDS       string `json:"id_s"`
	VehicleID int64  `json:"vehicle_id"`
	State     string `json:"state"`
}

// WakeUp asks the vehicle to come online. The call returns as soon as the server replies; it
// does not wait for State to become "online".
func (v *Vehicle) WakeUp(ctx context.Context) (*WakeResult, error) {
	data, err := v.conn.Post(ctx, v.session, "wake_up", nil)
	if err != nil {
		return nil, err
	}
	var result WakeResult
	if err := v.decodeState("wake_up", data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type homelinkRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"long"`
	Token     string  `json:"token"`
}

// TriggerHomelink activates the nearby Homelink device. token is the vehicle's tokens[0].
func (v *Vehicle) TriggerHomelink(ctx context.Context, latitude, longitude float64, token string) (*CommandResult, error) {
	return v.command(ctx, "command/trigger_homelink", homelinkRequest{Latitude: latitude, Longitude: longitude, Token: token})
}
