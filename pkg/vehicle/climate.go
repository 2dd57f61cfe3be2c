package vehicle

import (
	"context"
)

// Temperature bounds accepted by set_temps, in degrees Fahrenheit.
const (
	MinTemp = 60
	MaxTemp = 80
)

// ClampTemp restricts temp to [MinTemp, MaxTemp].
func ClampTemp(temp float64) float64 {
	if temp < MinTemp {
		return MinTemp
	}
	if temp > MaxTemp {
		return MaxTemp
	}
	return temp
}

type tempsRequest struct {
	DriverTemp    float64 `json:"driver_temp"`
	PassengerTemp float64 `json:"passenger_temp"`
}

func (v *Vehicle) ClimateStart(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/auto_conditioning_start", nil)
}

func (v *Vehicle) ClimateStop(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/auto_conditioning_stop", nil)
}

// SetTemps sets the driver and passenger temperatures. Each value is clamped independently.
func (v *Vehicle) SetTemps(ctx context.Context, driver, passenger float64) (*CommandResult, error) {
	req := tempsRequest{
		DriverTemp:    ClampTemp(driver),
		PassengerTemp: ClampTemp(passenger),
	}
	return v.command(ctx, "command/set_temps", req)
}

// SetTemp sets both zones to temp.
func (v *Vehicle) SetTemp(ctx context.Context, temp float64) (*CommandResult, error) {
	return v.SetTemps(ctx, temp, temp)
}
