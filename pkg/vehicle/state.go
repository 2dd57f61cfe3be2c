package vehicle

import (
	"context"
	"encoding/json"
)

const (
	pathVehicleState  = "data_request/vehicle_state"
	pathClimateState  = "data_request/climate_state"
	pathDriveState    = "data_request/drive_state"
	pathChargeState   = "data_request/charge_state"
	pathGuiSettings   = "data_request/gui_settings"
	pathMobileEnabled = "mobile_enabled"
)

// ChargeState is the payload of data_request/charge_state. Fields the server may omit or send
// as null are pointers.
type ChargeState struct {
	ChargingState            string   `json:"charging_state"`
	BatteryLevel             int      `json:"battery_level"`
	UsableBatteryLevel       int      `json:"usable_battery_level"`
	BatteryRange             float64  `json:"battery_range"`
	EstBatteryRange          float64  `json:"est_battery_range"`
	IdealBatteryRange        float64  `json:"ideal_battery_range"`
	ChargeLimitSOC           int      `json:"charge_limit_soc"`
	ChargeLimitSOCMin        int      `json:"charge_limit_soc_min"`
	ChargeLimitSOCMax        int      `json:"charge_limit_soc_max"`
	ChargeLimitSOCStd        int      `json:"charge_limit_soc_std"`
	ChargeToMaxRange         bool     `json:"charge_to_max_range"`
	ChargePortDoorOpen       bool     `json:"charge_port_door_open"`
	ChargerPower             *int     `json:"charger_power"`
	ChargerVoltage           *int     `json:"charger_voltage"`
	ChargerActualCurrent     *int     `json:"charger_actual_current"`
	ChargeRate               float64  `json:"charge_rate"`
	ChargeEnergyAdded        float64  `json:"charge_energy_added"`
	TimeToFullCharge         float64  `json:"time_to_full_charge"`
	FastChargerPresent       bool     `json:"fast_charger_present"`
	ScheduledChargingPending bool     `json:"scheduled_charging_pending"`
	ScheduledChargingStart   *float64 `json:"scheduled_charging_start_time"`
	Timestamp                int64    `json:"timestamp"`
}

type ClimateState struct {
	InsideTemp           *float64 `json:"inside_temp"`
	OutsideTemp          *float64 `json:"outside_temp"`
	DriverTempSetting    float64  `json:"driver_temp_setting"`
	PassengerTempSetting float64  `json:"passenger_temp_setting"`
	IsAutoConditioningOn bool     `json:"is_auto_conditioning_on"`
	IsClimateOn          bool     `json:"is_climate_on"`
	IsFrontDefrosterOn   bool     `json:"is_front_defroster_on"`
	IsRearDefrosterOn    bool     `json:"is_rear_defroster_on"`
	FanStatus            int      `json:"fan_status"`
	SeatHeaterLeft       int      `json:"seat_heater_left"`
	SeatHeaterRight      int      `json:"seat_heater_right"`
	SmartPreconditioning bool     `json:"smart_preconditioning"`
	MinAvailTemp         float64  `json:"min_avail_temp"`
	MaxAvailTemp         float64  `json:"max_avail_temp"`
	Timestamp            int64    `json:"timestamp"`
}

type DriveState struct {
	ShiftState *string  `json:"shift_state"`
	Speed      *float64 `json:"speed"`
	Power      int      `json:"power"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Heading    int      `json:"heading"`
	GPSAsOf    int64    `json:"gps_as_of"`
	Timestamp  int64    `json:"timestamp"`
}

type GuiSettings struct {
	DistanceUnits    string `json:"gui_distance_units"`
	TemperatureUnits string `json:"gui_temperature_units"`
	ChargeRateUnits  string `json:"gui_charge_rate_units"`
	Use24HourTime    bool   `json:"gui_24_hour_time"`
	RangeDisplay     string `json:"gui_range_display"`
	Timestamp        int64  `json:"timestamp"`
}

type VehicleState struct {
	APIVersion           int     `json:"api_version"`
	CarVersion           string  `json:"car_version"`
	VehicleName          string  `json:"vehicle_name"`
	Locked               bool    `json:"locked"`
	Odometer             float64 `json:"odometer"`
	SunRoofPercentOpen   *int    `json:"sun_roof_percent_open"`
	SunRoofState         string  `json:"sun_roof_state"`
	ValetMode            bool    `json:"valet_mode"`
	ValetPinNeeded       bool    `json:"valet_pin_needed"`
	RemoteStart          bool    `json:"remote_start"`
	RemoteStartSupported bool    `json:"remote_start_supported"`
	CalendarSupported    bool    `json:"calendar_supported"`
	HomelinkNearby       bool    `json:"homelink_nearby"`
	CenterDisplayState   int     `json:"center_display_state"`
	DriverFrontDoor      int     `json:"df"`
	DriverRearDoor       int     `json:"dr"`
	PassengerFrontDoor   int     `json:"pf"`
	PassengerRearDoor    int     `json:"pr"`
	FrontTrunk           int     `json:"ft"`
	RearTrunk            int     `json:"rt"`
	Timestamp            int64   `json:"timestamp"`

	Raw json.RawMessage `json:"-"`
}

// VehicleState fetches data_request/vehicle_state. Raw holds the complete payload.
func (v *Vehicle) VehicleState(ctx context.Context) (*VehicleState, error) {
	var state VehicleState
	data, err := v.conn.Get(ctx, v.session, pathVehicleState)
	if err != nil {
		return nil, err
	}
	if err := v.decodeState(pathVehicleState, data, &state); err != nil {
		return nil, err
	}
	state.Raw = data
	return &state, nil
}

func (v *Vehicle) ClimateState(ctx context.Context) (*ClimateState, error) {
	var state ClimateState
	if err := v.getState(ctx, pathClimateState, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (v *Vehicle) DriveState(ctx context.Context) (*DriveState, error) {
	var state DriveState
	if err := v.getState(ctx, pathDriveState, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (v *Vehicle) ChargeState(ctx context.Context) (*ChargeState, error) {
	var state ChargeState
	if err := v.getState(ctx, pathChargeState, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (v *Vehicle) GuiSettings(ctx context.Context) (*GuiSettings, error) {
	var state GuiSettings
	if err := v.getState(ctx, pathGuiSettings, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// MobileEnabled reports whether remote access is enabled in the vehicle's settings.
func (v *Vehicle) MobileEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	if err := v.getState(ctx, pathMobileEnabled, &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}
