package account_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cscashby/TeslaJS/internal/log"
	"github.com/cscashby/TeslaJS/pkg/account"
	"github.com/cscashby/TeslaJS/pkg/connector"
	"github.com/cscashby/TeslaJS/pkg/protocol"
)

const (
	baseURL      = "https://owner.example.com"
	vehiclesURL  = baseURL + "/api/1/vehicles"
	tokenURL     = baseURL + "/oauth/token"
	vehicleList  = `{"response":[{"id":111,"id_s":"111","vehicle_id":901,"display_name":"Red","option_codes":"MDLX,PPMR","tokens":["t1"]},{"id":222,"id_s":"222","vehicle_id":902,"display_name":"Blue","option_codes":"MS01,PMMB","tokens":["t2"]}],"count":2}`
	loginSuccess = `{"access_token":"abc123","token_type":"bearer","expires_in":3888000,"refresh_token":"def456","created_at":1500000000}`
)

var _ = Describe("Account", func() {
	var (
		client *http.Client
		acct   *account.Account
		ctx    context.Context
		config account.Config
	)

	BeforeEach(func() {
		client = &http.Client{}
		httpmock.ActivateNonDefault(client)
		DeferCleanup(httpmock.DeactivateAndReset)
		ctx = context.Background()
		config = account.Config{
			BaseURL:      baseURL,
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			HTTPClient:   client,
			Logger:       log.New(io.Discard, log.LevelAll),
		}
		acct = account.New(config)
	})

	Describe("Login", func() {
		var form map[string]string

		BeforeEach(func() {
			form = nil
			httpmock.RegisterResponder(http.MethodPost, tokenURL, func(req *http.Request) (*http.Response, error) {
				Expect(req.Header.Get("Content-Type")).To(Equal("application/x-www-form-urlencoded"))
				Expect(req.ParseForm()).To(Succeed())
				form = map[string]string{}
				for k := range req.PostForm {
					form[k] = req.PostForm.Get(k)
				}
				return httpmock.NewStringResponse(http.StatusOK, loginSuccess), nil
			})
		})

		It("posts the password grant and extracts the token", func() {
			result, err := acct.Login(ctx, "me@example.com", "secret")
			Expect(err).ToNot(HaveOccurred())
			Expect(result.AccessToken).To(Equal("abc123"))
			Expect(result.RefreshToken).To(Equal("def456"))
			Expect(result.StatusCode).To(Equal(http.StatusOK))
			Expect(form).To(Equal(map[string]string{
				"grant_type":    "password",
				"client_id":     "client-id",
				"client_secret": "client-secret",
				"email":         "me@example.com",
				"password":      "secret",
			}))
		})

		It("prefers credential overrides", func() {
			config.UsernameOverride = "env@example.com"
			config.PasswordOverride = "env-secret"
			acct = account.New(config)
			_, err := acct.Login(ctx, "me@example.com", "secret")
			Expect(err).ToNot(HaveOccurred())
			Expect(form["email"]).To(Equal("env@example.com"))
			Expect(form["password"]).To(Equal("env-secret"))
		})

		It("returns the reply with a decode error on malformed bodies", func() {
			httpmock.RegisterResponder(http.MethodPost, tokenURL, httpmock.NewStringResponder(http.StatusOK, "<html>"))
			result, err := acct.Login(ctx, "me@example.com", "secret")
			Expect(protocol.IsDecodeError(err)).To(BeTrue())
			Expect(result).ToNot(BeNil())
			Expect(result.AccessToken).To(BeEmpty())
			Expect(string(result.Body)).To(Equal("<html>"))
		})

		It("reports OAuth errors", func() {
			httpmock.RegisterResponder(http.MethodPost, tokenURL,
				httpmock.NewStringResponder(http.StatusUnauthorized, `{"error":"invalid_grant","error_description":"bad password"}`))
			result, err := acct.Login(ctx, "me@example.com", "wrong")
			var apiErr *protocol.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(apiErr.Message).To(Equal("invalid_grant"))
			Expect(result.AccessToken).To(BeEmpty())
		})

		It("reports transport failures", func() {
			httpmock.RegisterResponder(http.MethodPost, tokenURL, httpmock.NewErrorResponder(errors.New("no route to host")))
			result, err := acct.Login(ctx, "me@example.com", "secret")
			Expect(protocol.IsTransportError(err)).To(BeTrue())
			Expect(result).To(BeNil())
		})
	})

	Describe("Logout", func() {
		It("is not implemented", func() {
			Expect(acct.Logout(ctx, "abc123")).To(MatchError(protocol.ErrNotImplemented))
			Expect(httpmock.GetTotalCallCount()).To(BeZero())
		})
	})

	Describe("Vehicles", func() {
		var session *connector.Session

		BeforeEach(func() {
			session = &connector.Session{AuthToken: "abc123"}
			httpmock.RegisterResponder(http.MethodGet, vehiclesURL, func(req *http.Request) (*http.Response, error) {
				Expect(req.Header.Get("Authorization")).To(Equal("Bearer abc123"))
				return httpmock.NewStringResponse(http.StatusOK, vehicleList), nil
			})
		})

		It("selects the first vehicle by default", func() {
			record, err := acct.Vehicles(ctx, session)
			Expect(err).ToNot(HaveOccurred())
			Expect(record.ID).To(Equal("111"))
			Expect(record.DisplayName).To(Equal("Red"))
			Expect(session.VehicleID).To(Equal("111"))
			Expect(record.Model()).To(Equal("Model X"))
			Expect(record.PaintColor()).To(Equal("mc_red"))
		})

		It("honours the car index", func() {
			session.CarIndex = 1
			record, err := acct.Vehicles(ctx, session)
			Expect(err).ToNot(HaveOccurred())
			Expect(record.ID).To(Equal("222"))
			Expect(session.VehicleID).To(Equal("222"))
		})

		It("rejects out-of-range indices without touching the session", func() {
			session.CarIndex = 2
			session.VehicleID = "previous"
			record, err := acct.Vehicles(ctx, session)
			Expect(record).To(BeNil())
			Expect(protocol.IsDecodeError(err)).To(BeTrue())
			Expect(errors.Is(err, protocol.ErrNoVehicle)).To(BeTrue())
			Expect(session.VehicleID).To(Equal("previous"))
		})

		It("fails cleanly on an empty list", func() {
			httpmock.RegisterResponder(http.MethodGet, vehiclesURL, httpmock.NewStringResponder(http.StatusOK, `{"response":[],"count":0}`))
			record, err := acct.Vehicles(ctx, session)
			Expect(record).To(BeNil())
			Expect(errors.Is(err, protocol.ErrNoVehicle)).To(BeTrue())
			Expect(session.VehicleID).To(BeEmpty())
		})

		It("reports malformed bodies as decode errors", func() {
			httpmock.RegisterResponder(http.MethodGet, vehiclesURL, httpmock.NewStringResponder(http.StatusBadGateway, "Bad Gateway"))
			_, err := acct.Vehicles(ctx, session)
			Expect(protocol.IsDecodeError(err)).To(BeTrue())
		})

		It("reports transport failures", func() {
			httpmock.RegisterResponder(http.MethodGet, vehiclesURL, httpmock.NewErrorResponder(errors.New("timeout")))
			_, err := acct.Vehicles(ctx, session)
			Expect(protocol.IsTransportError(err)).To(BeTrue())
			Expect(session.VehicleID).To(BeEmpty())
		})

		It("returns every record without normalizing", func() {
			records, err := acct.AllVehicles(ctx, session)
			Expect(err).ToNot(HaveOccurred())
			Expect(records).To(HaveLen(2))
			Expect(records[0].IDS).To(Equal("111"))
			Expect(records[0].ID).To(BeEmpty())
			Expect(string(records[1].Raw)).To(ContainSubstring(`"display_name":"Blue"`))
			Expect(session.VehicleID).To(BeEmpty())
		})
	})

	Describe("vehicle commands", func() {
		It("binds the catalog to the resolved vehicle", func() {
			httpmock.RegisterResponder(http.MethodGet, vehiclesURL, httpmock.NewStringResponder(http.StatusOK, vehicleList))
			httpmock.RegisterResponder(http.MethodPost, vehiclesURL+"/111/command/flash_lights",
				httpmock.NewStringResponder(http.StatusOK, `{"response":{"result":true,"reason":""}}`))

			session := &connector.Session{AuthToken: "abc123"}
			_, err := acct.Vehicles(ctx, session)
			Expect(err).ToNot(HaveOccurred())
			result, err := acct.GetVehicle(session).FlashLights(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Result).To(BeTrue())
		})
	})

	Describe("SetBaseURL", func() {
		It("redirects subsequent requests", func() {
			httpmock.RegisterResponder(http.MethodPost, "https://other.example.com/api/1/vehicles/1/wake_up",
				httpmock.NewStringResponder(http.StatusOK, `{"response":{"state":"online"}}`))
			acct.SetBaseURL("https://other.example.com")
			_, err := acct.Post(ctx, &connector.Session{VehicleID: "1"}, "wake_up", nil)
			Expect(err).ToNot(HaveOccurred())
		})

		It("resets to the default portal", func() {
			acct.SetBaseURL("")
			Expect(acct.BaseURL()).To(Equal("https://owner-api.teslamotors.com"))
		})
	})

	Describe("Stream", func() {
		It("requests the configured columns with basic auth", func() {
			config.StreamingURL = "https://stream.example.com/stream/"
			acct = account.New(config)
			httpmock.RegisterResponder(http.MethodGet, "https://stream.example.com/stream/901/",
				func(req *http.Request) (*http.Response, error) {
					user, pass, ok := req.BasicAuth()
					Expect(ok).To(BeTrue())
					Expect(user).To(Equal("me@example.com"))
					Expect(pass).To(Equal("t1"))
					Expect(req.URL.Query().Get("values")).To(Equal("speed,soc"))
					return httpmock.NewStringResponse(http.StatusOK, "1500000000000,65,80\n"), nil
				})
			body, err := acct.Stream(ctx, account.StreamOptions{
				VehicleID: "901",
				Username:  "me@example.com",
				Password:  "t1",
				Columns:   []string{"speed", "soc"},
			})
			Expect(err).ToNot(HaveOccurred())
			defer body.Close()

			var records []*account.StreamRecord
			Expect(account.ReadStream(body, []string{"speed", "soc"}, func(r *account.StreamRecord) error {
				records = append(records, r)
				return nil
			})).To(Succeed())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Values).To(Equal(map[string]string{"speed": "65", "soc": "80"}))
		})

		It("reports rejected streams", func() {
			httpmock.RegisterResponder(http.MethodGet, `=~^https://streaming\.vn\.teslamotors\.com/stream/901/`,
				httpmock.NewStringResponder(http.StatusUnauthorized, "denied"))
			_, err := acct.Stream(ctx, account.StreamOptions{VehicleID: "901"})
			Expect(protocol.IsAPIError(err)).To(BeTrue())
		})
	})
})

var _ = Describe("StreamURL", func() {
	It("joins the default columns", func() {
		url := account.StreamURL("https://streaming.vn.teslamotors.com/stream/", "901", account.DefaultStreamColumns)
		Expect(url).To(Equal("https://streaming.vn.teslamotors.com/stream/901/?values=" +
			"elevation,est_heading,est_lat,est_lng,est_range,heading,odometer,power,range,shift_state,speed,soc"))
		Expect(strings.Count(url, ",")).To(Equal(11))
	})
})
