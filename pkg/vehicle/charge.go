// File implements commands related to vehicle charging.

package vehicle

import (
	"context"
)

// Charge limit presets, in percent of battery capacity.
const (
	ChargeLimitStorage  = 50
	ChargeLimitDaily    = 70
	ChargeLimitStandard = 90
	ChargeLimitMaxRange = 100
)

// ClampChargeLimit restricts percent to [ChargeLimitStandard, ChargeLimitMaxRange].
func ClampChargeLimit(percent int) int {
	if percent < ChargeLimitStandard {
		return ChargeLimitStandard
	}
	if percent > ChargeLimitMaxRange {
		return ChargeLimitMaxRange
	}
	return percent
}

type chargeLimitRequest struct {
	Percent int `json:"percent"`
}

func (v *Vehicle) ChargeStart(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/charge_start", nil)
}

func (v *Vehicle) ChargeStop(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/charge_stop", nil)
}

func (v *Vehicle) OpenChargePort(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/charge_port_door_open", nil)
}

func (v *Vehicle) CloseChargePort(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/charge_port_door_close", nil)
}

// ChargeStandard sets the charge limit to the vehicle's standard level.
func (v *Vehicle) ChargeStandard(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/charge_standard", nil)
}

// ChargeMaxRange sets the charge limit to its maximum.
func (v *Vehicle) ChargeMaxRange(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/charge_max_range", nil)
}

// SetChargeLimit sets the charge limit. Values outside [ChargeLimitStandard, ChargeLimitMaxRange]
// are clamped before sending.
func (v *Vehicle) SetChargeLimit(ctx context.Context, percent int) (*CommandResult, error) {
	return v.command(ctx, "command/set_charge_limit", chargeLimitRequest{Percent: ClampChargeLimit(percent)})
}

// SetStorageChargeLimit sends the long-term storage preset. Presets bypass clamping.
func (v *Vehicle) SetStorageChargeLimit(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/set_charge_limit", chargeLimitRequest{Percent: ChargeLimitStorage})
}

// SetDailyChargeLimit sends the daily-driving preset. Presets bypass clamping.
func (v *Vehicle) SetDailyChargeLimit(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/set_charge_limit", chargeLimitRequest{Percent: ChargeLimitDaily})
}
