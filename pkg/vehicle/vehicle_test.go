package vehicle_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/cscashby/TeslaJS/mocks"
	"github.com/cscashby/TeslaJS/pkg/connector"
	"github.com/cscashby/TeslaJS/pkg/protocol"
	"github.com/cscashby/TeslaJS/pkg/vehicle"
)

const okResult = `{"result":true,"reason":""}`

var _ = Describe("Vehicle", func() {
	var (
		ctrl    *gomock.Controller
		conn    *mocks.Dispatcher
		session *connector.Session
		car     *vehicle.Vehicle
		ctx     context.Context
		sent    json.RawMessage
	)

	// expectPost records the JSON encoding of the body posted to command.
	expectPost := func(command string, reply string) {
		conn.EXPECT().Post(gomock.Any(), session, command, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ *connector.Session, _ string, body interface{}) (json.RawMessage, error) {
				if body == nil {
					sent = nil
				} else {
					encoded, err := json.Marshal(body)
					Expect(err).ToNot(HaveOccurred())
					sent = encoded
				}
				return json.RawMessage(reply), nil
			})
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		conn = mocks.NewDispatcher(ctrl)
		session = &connector.Session{AuthToken: "token", VehicleID: "1234"}
		car = vehicle.NewVehicle(conn, session)
		ctx = context.Background()
		sent = nil
	})

	Describe("identity", func() {
		It("reports the session's vehicle ID", func() {
			Expect(car.ID()).To(Equal("1234"))
		})

		It("reports an empty ID without a session", func() {
			Expect(vehicle.NewVehicle(conn, nil).ID()).To(BeEmpty())
		})
	})

	Describe("charging", func() {
		It("clamps limits above the maximum", func() {
			expectPost("command/set_charge_limit", okResult)
			result, err := car.SetChargeLimit(ctx, 150)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Result).To(BeTrue())
			Expect(string(sent)).To(MatchJSON(`{"percent":100}`))
		})

		It("clamps limits below the standard level", func() {
			expectPost("command/set_charge_limit", okResult)
			_, err := car.SetChargeLimit(ctx, 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"percent":90}`))
		})

		It("passes through limits in range", func() {
			expectPost("command/set_charge_limit", okResult)
			_, err := car.SetChargeLimit(ctx, 95)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"percent":95}`))
		})

		It("sends presets without clamping", func() {
			expectPost("command/set_charge_limit", okResult)
			_, err := car.SetStorageChargeLimit(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"percent":50}`))

			expectPost("command/set_charge_limit", okResult)
			_, err = car.SetDailyChargeLimit(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"percent":70}`))
		})

		DescribeTable("bodyless commands",
			func(call func(context.Context) (*vehicle.CommandResult, error), command string) {
				expectPost(command, okResult)
				result, err := call(ctx)
				Expect(err).ToNot(HaveOccurred())
				Expect(result.Err()).ToNot(HaveOccurred())
				Expect(sent).To(BeNil())
			},
			Entry("charge start", func(c context.Context) (*vehicle.CommandResult, error) { return car.ChargeStart(c) }, "command/charge_start"),
			Entry("charge stop", func(c context.Context) (*vehicle.CommandResult, error) { return car.ChargeStop(c) }, "command/charge_stop"),
			Entry("open port", func(c context.Context) (*vehicle.CommandResult, error) { return car.OpenChargePort(c) }, "command/charge_port_door_open"),
			Entry("close port", func(c context.Context) (*vehicle.CommandResult, error) { return car.CloseChargePort(c) }, "command/charge_port_door_close"),
			Entry("standard", func(c context.Context) (*vehicle.CommandResult, error) { return car.ChargeStandard(c) }, "command/charge_standard"),
			Entry("max range", func(c context.Context) (*vehicle.CommandResult, error) { return car.ChargeMaxRange(c) }, "command/charge_max_range"),
			Entry("lock", func(c context.Context) (*vehicle.CommandResult, error) { return car.Lock(c) }, "command/door_lock"),
			Entry("unlock", func(c context.Context) (*vehicle.CommandResult, error) { return car.Unlock(c) }, "command/door_unlock"),
			Entry("climate start", func(c context.Context) (*vehicle.CommandResult, error) { return car.ClimateStart(c) }, "command/auto_conditioning_start"),
			Entry("climate stop", func(c context.Context) (*vehicle.CommandResult, error) { return car.ClimateStop(c) }, "command/auto_conditioning_stop"),
			Entry("honk", func(c context.Context) (*vehicle.CommandResult, error) { return car.HonkHorn(c) }, "command/honk_horn"),
			Entry("flash", func(c context.Context) (*vehicle.CommandResult, error) { return car.FlashLights(c) }, "command/flash_lights"),
			Entry("reset valet pin", func(c context.Context) (*vehicle.CommandResult, error) { return car.ResetValetPin(c) }, "command/reset_valet_pin"),
		)
	})

	Describe("climate", func() {
		It("clamps and mirrors a single temperature", func() {
			expectPost("command/set_temps", okResult)
			_, err := car.SetTemp(ctx, 95)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"driver_temp":80,"passenger_temp":80}`))
		})

		It("clamps each zone independently", func() {
			expectPost("command/set_temps", okResult)
			_, err := car.SetTemps(ctx, 50, 72.5)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"driver_temp":60,"passenger_temp":72.5}`))
		})
	})

	Describe("closures", func() {
		It("selects the front trunk", func() {
			expectPost("command/trunk_open", okResult)
			_, err := car.OpenTrunk(ctx, vehicle.Frunk)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"which_trunk":"frunk"}`))
		})

		It("sends named sunroof states", func() {
			expectPost("command/sun_roof_control", okResult)
			_, err := car.SunroofControl(ctx, vehicle.SunroofVent)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"state":"vent"}`))
		})

		It("does not clamp sunroof percentages", func() {
			expectPost("command/sun_roof_control", okResult)
			_, err := car.SunroofMove(ctx, 150)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"state":"move","percent":150}`))
		})
	})

	Describe("security", func() {
		It("sends valet mode with the PIN", func() {
			expectPost("command/set_valet_mode", okResult)
			_, err := car.SetValetMode(ctx, true, "1234")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"on":true,"password":"1234"}`))
		})

		It("sends the password for remote start", func() {
			expectPost("command/remote_start_drive", okResult)
			_, err := car.RemoteStart(ctx, "hunter2")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"password":"hunter2"}`))
		})
	})

	Describe("homelink", func() {
		It("sends coordinates and token", func() {
			expectPost("command/trigger_homelink", okResult)
			_, err := car.TriggerHomelink(ctx, 37.5, -122.25, "abc")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{"lat":37.5,"long":-122.25,"token":"abc"}`))
		})
	})

	Describe("wake up", func() {
		It("posts to wake_up without the command prefix", func() {
			expectPost("wake_up", `{"id":1,"id_s":"1234","vehicle_id":99,"state":"asleep"}`)
			result, err := car.WakeUp(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.State).To(Equal("asleep"))
			Expect(result.IDS).To(Equal("1234"))
		})
	})

	Describe("calendar", func() {
		It("posts the calendar entry", func() {
			start := time.UnixMilli(1500000000000)
			entry := vehicle.NewCalendarEntry(vehicle.CalendarEvent{
				Name:        "Dentist",
				Location:    "Main St",
				Start:       start,
				End:         start.Add(time.Hour),
				AccountName: "me@example.com",
				PhoneName:   "My Phone",
			})
			expectPost("command/upcoming_calendar_entries", okResult)
			_, err := car.Calendar(ctx, entry)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(sent)).To(MatchJSON(`{
				"calendar_data": {
					"access_disabled": false,
					"calendars": [{
						"color": "ff9a9cff",
						"events": [{
							"allday": false,
							"color": "ff9a9cff",
							"end": 1500003600000,
							"start": 1500000000000,
							"cancelled": false,
							"tentative": false,
							"location": "Main St",
							"name": "Dentist",
							"organizer": ""
						}],
						"name": "me@example.com"
					}],
					"phone_name": "My Phone",
					"uuid": "333239059961778"
				}
			}`))
		})

		It("fills defaults", func() {
			before := time.Now().UnixMilli()
			entry := vehicle.NewCalendarEntry(vehicle.CalendarEvent{})
			encoded, err := json.Marshal(entry)
			Expect(err).ToNot(HaveOccurred())
			var decoded struct {
				CalendarData struct {
					Calendars []struct {
						Events []struct {
							Name  string `json:"name"`
							Start int64  `json:"start"`
						} `json:"events"`
					} `json:"calendars"`
				} `json:"calendar_data"`
			}
			Expect(json.Unmarshal(encoded, &decoded)).To(Succeed())
			event := decoded.CalendarData.Calendars[0].Events[0]
			Expect(event.Name).To(Equal("Event name"))
			Expect(event.Start).To(BeNumerically(">=", before))
		})
	})

	Describe("state", func() {
		It("decodes charge state", func() {
			conn.EXPECT().Get(gomock.Any(), session, "data_request/charge_state").
				Return(json.RawMessage(`{"battery_level":64,"charge_limit_soc":90,"charging_state":"Stopped","charger_power":null}`), nil)
			state, err := car.ChargeState(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(state.BatteryLevel).To(Equal(64))
			Expect(state.ChargeLimitSOC).To(Equal(90))
			Expect(state.ChargerPower).To(BeNil())
		})

		It("keeps the raw vehicle state", func() {
			raw := `{"locked":true,"odometer":1234.5,"car_version":"2.9.12","homelink_nearby":false}`
			conn.EXPECT().Get(gomock.Any(), session, "data_request/vehicle_state").Return(json.RawMessage(raw), nil)
			state, err := car.VehicleState(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(state.Locked).To(BeTrue())
			Expect(string(state.Raw)).To(MatchJSON(raw))
		})

		It("decodes mobile access", func() {
			conn.EXPECT().Get(gomock.Any(), session, "mobile_enabled").Return(json.RawMessage(`true`), nil)
			enabled, err := car.MobileEnabled(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(enabled).To(BeTrue())
		})

		DescribeTable("queries the data_request paths",
			func(call func(context.Context) error, path string) {
				conn.EXPECT().Get(gomock.Any(), session, path).Return(json.RawMessage(`{}`), nil)
				Expect(call(ctx)).To(Succeed())
			},
			Entry("climate", func(c context.Context) error { _, err := car.ClimateState(c); return err }, "data_request/climate_state"),
			Entry("drive", func(c context.Context) error { _, err := car.DriveState(c); return err }, "data_request/drive_state"),
			Entry("gui", func(c context.Context) error { _, err := car.GuiSettings(c); return err }, "data_request/gui_settings"),
		)

		It("propagates dispatcher errors", func() {
			failure := &protocol.TransportError{Err: errors.New("connection refused")}
			conn.EXPECT().Get(gomock.Any(), session, "data_request/drive_state").Return(nil, failure)
			state, err := car.DriveState(ctx)
			Expect(state).To(BeNil())
			Expect(err).To(MatchError(failure))
		})

		It("reports unexpected payload shapes as decode errors", func() {
			conn.EXPECT().Get(gomock.Any(), session, "mobile_enabled").Return(json.RawMessage(`"yes"`), nil)
			_, err := car.MobileEnabled(ctx)
			Expect(protocol.IsDecodeError(err)).To(BeTrue())
		})
	})

	Describe("command results", func() {
		It("converts result=false into an error", func() {
			expectPost("command/door_unlock", `{"result":false,"reason":"user_not_present"}`)
			result, err := car.Unlock(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Result).To(BeFalse())
			Expect(result.Err()).To(MatchError(ContainSubstring("user_not_present")))
			Expect(errors.Is(result.Err(), vehicle.ErrCommandFailed)).To(BeTrue())
		})

		It("returns decoded data alongside a transport error", func() {
			failure := &protocol.TransportError{Err: errors.New("reset")}
			conn.EXPECT().Post(gomock.Any(), session, "command/honk_horn", nil).Return(json.RawMessage(okResult), failure)
			result, err := car.HonkHorn(ctx)
			Expect(err).To(MatchError(failure))
			Expect(result).ToNot(BeNil())
			Expect(result.Result).To(BeTrue())
		})

		It("forwards arbitrary paths unchanged", func() {
			conn.EXPECT().Post(gomock.Any(), session, "command/remote_boombox", nil).Return(json.RawMessage(okResult), nil)
			data, err := car.Post(ctx, "command/remote_boombox", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(MatchJSON(okResult))
		})
	})
})

var _ = Describe("Record", func() {
	decode := func(raw string) *vehicle.Record {
		var r vehicle.Record
		Expect(json.Unmarshal([]byte(raw), &r)).To(Succeed())
		return &r
	}

	It("identifies Model X", func() {
		Expect(decode(`{"option_codes":"MS01,MDLX,PPSW"}`).Model()).To(Equal("Model X"))
	})

	It("defaults to Model S", func() {
		Expect(decode(`{"option_codes":"MS01,RENA"}`).Model()).To(Equal("Model S"))
	})

	DescribeTable("paint colour",
		func(codes, color string) {
			Expect(decode(`{"option_codes":"` + codes + `"}`).PaintColor()).To(Equal(color))
		},
		Entry("pearl white", "MS01,PPSW,RENA", "pearl_white"),
		Entry("multi-coat red", "PPMR", "mc_red"),
		Entry("dolphin grey", "X001,PMTG", "metallic_grey"),
		Entry("first match wins", "PMSS,PBCW", "metallic_silver"),
		Entry("unknown", "MS01,RENA", "black"),
		Entry("empty", "", "black"),
	)

	It("round-trips the raw object", func() {
		raw := `{"id":12345678901234567,"id_s":"12345678901234567","option_codes":"MDLX","unknown_field":[1,2]}`
		r := decode(raw)
		Expect(r.IDS).To(Equal("12345678901234567"))
		Expect(r.ID).To(BeEmpty())
		encoded, err := json.Marshal(r)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(encoded)).To(MatchJSON(raw))
	})
})
