package vehicle

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Record is an entry of the account's vehicle list.
type Record struct {
	// ID is the canonical string identifier. It is populated from IDS by account.Vehicles and is
	// empty for records returned by account.AllVehicles.
	ID              string   `json:"-"`
	IDS             string   `json:"id_s"`
	VehicleID       int64    `json:"vehicle_id"`
	VIN             string   `json:"vin"`
	DisplayName     string   `json:"display_name"`
	OptionCodes     string   `json:"option_codes"`
	Color           *string  `json:"color"`
	State           string   `json:"state"`
	InService       bool     `json:"in_service"`
	CalendarEnabled bool     `json:"calendar_enabled"`
	APIVersion      int      `json:"api_version"`
	Tokens          []string `json:"tokens"`

	// Raw is the record exactly as the server sent it.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps a copy of the raw object.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Record(p)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns the raw object when available so records round-trip unchanged.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	type plain Record
	return json.Marshal(plain(r))
}

// Model derives the model name from the option codes.
func (r *Record) Model() string {
	if strings.Contains(r.OptionCodes, "MDLX") {
		return "Model X"
	}
	return "Model S"
}

var paintColors = map[string]string{
	"PBCW": "white",
	"PBSB": "black",
	"PMAB": "metallic_brown",
	"PMBL": "metallic_black",
	"PMMB": "metallic_blue",
	"PMMR": "mc_red",
	"PPMR": "mc_red",
	"PMNG": "steel_grey",
	"PMSG": "metallic_green",
	"PMSS": "metallic_silver",
	"PPSB": "ocean_blue",
	"PPSR": "red",
	"PPSW": "pearl_white",
	"PPTI": "titanium",
	"PMTG": "metallic_grey",
}

var paintRE = regexp.MustCompile(`PBCW|PBSB|PMAB|PMBL|PMMB|PMMR|PPMR|PMNG|PMSG|PMSS|PPSB|PPSR|PPSW|PPTI|PMTG`)

// PaintColor returns the paint colour named by the first paint option code, or "black" when none
// is present.
func (r *Record) PaintColor() string {
	if color, ok := paintColors[paintRE.FindString(r.OptionCodes)]; ok {
		return color
	}
	return "black"
}
