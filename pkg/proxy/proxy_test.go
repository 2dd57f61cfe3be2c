package proxy_test

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cscashby/TeslaJS/internal/log"
	"github.com/cscashby/TeslaJS/pkg/account"
	"github.com/cscashby/TeslaJS/pkg/connector/inet"
	"github.com/cscashby/TeslaJS/pkg/proxy"
)

const (
	baseURL            = "https://owner.example.com"
	vehicleID          = "111"
	authorizationToken = "Bearer abc123"
	commandURL         = baseURL + "/api/1/vehicles/" + vehicleID + "/command/"
)

var _ = Describe("Proxy", func() {
	var p *proxy.Proxy

	sendRequest := func(method, path string, token string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		rr := httptest.NewRecorder()
		p.ServeHTTP(rr, req)
		return rr
	}

	BeforeEach(func() {
		client := &http.Client{}
		httpmock.ActivateNonDefault(client)
		DeferCleanup(httpmock.DeactivateAndReset)
		p = proxy.New(account.New(account.Config{
			BaseURL:    baseURL,
			HTTPClient: client,
			Logger:     log.New(io.Discard, log.LevelAll),
		}))
	})

	Context("vehicle commands", func() {
		It("requires an OAuth token", func() {
			rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/command/honk_horn", "", nil)
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			Expect(httpmock.GetTotalCallCount()).To(BeZero())
		})

		It("rejects other methods", func() {
			rr := sendRequest(http.MethodGet, "/api/1/vehicles/111/command/honk_horn", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusMethodNotAllowed))
		})

		It("returns successful response", func() {
			httpmock.RegisterResponder(http.MethodPost, commandURL+"honk_horn", func(r *http.Request) (*http.Response, error) {
				Expect(r.Header.Get("Authorization")).To(Equal(authorizationToken))
				return httpmock.NewStringResponse(http.StatusOK, `{"response":{"result":true,"reason":""}}`), nil
			})

			rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/command/honk_horn", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"result":true,"reason":""}}`))
		})

		It("relays vehicle refusals", func() {
			httpmock.RegisterResponder(http.MethodPost, commandURL+"door_unlock",
				httpmock.NewStringResponder(http.StatusOK, `{"response":{"result":false,"reason":"already unlocked"}}`))

			rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/command/door_unlock", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"result":false,"reason":"already unlocked"}}`))
		})

		It("validates and clamps parameters", func() {
			httpmock.RegisterResponder(http.MethodPost, commandURL+"set_charge_limit", func(r *http.Request) (*http.Response, error) {
				body, err := io.ReadAll(r.Body)
				Expect(err).ToNot(HaveOccurred())
				Expect(string(body)).To(Equal("percent=100"))
				Expect(r.Header.Get("Content-Type")).To(Equal(inet.FormContentType))
				return httpmock.NewStringResponse(http.StatusOK, `{"response":{"result":true,"reason":""}}`), nil
			})

			rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/command/set_charge_limit", authorizationToken, []byte(`{"percent":150}`))
			Expect(rr.Code).To(Equal(http.StatusOK))
		})

		It("rejects missing parameters without contacting the server", func() {
			rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/command/set_charge_limit", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			Expect(rr.Body.String()).To(ContainSubstring("missing percent param"))
			Expect(httpmock.GetTotalCallCount()).To(BeZero())
		})

		It("rejects malformed bodies", func() {
			rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/command/set_charge_limit", authorizationToken, []byte("invalid"))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})

		It("fails for unknown command", func() {
			rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/command/unknown", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})

		It("does not offer commands outside the owner API", func() {
			rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/command/remote_boombox", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})

		It("returns API errors", func() {
			httpmock.RegisterResponder(http.MethodPost, commandURL+"honk_horn",
				httpmock.NewStringResponder(http.StatusRequestTimeout, `{"response":null,"error":"vehicle unavailable","error_description":"asleep"}`))

			rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/command/honk_horn", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusRequestTimeout))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":null,"error":"vehicle unavailable","error_description":"asleep"}`))
		})

		It("returns bad gateway for transport failures", func() {
			httpmock.RegisterResponder(http.MethodPost, commandURL+"honk_horn", httpmock.NewErrorResponder(errors.New("connection reset")))

			rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/command/honk_horn", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusBadGateway))
		})

		It("wakes vehicles through the catalog", func() {
			httpmock.RegisterResponder(http.MethodPost, baseURL+"/api/1/vehicles/111/wake_up",
				httpmock.NewStringResponder(http.StatusOK, `{"response":{"id":111,"id_s":"111","vehicle_id":901,"state":"online"}}`))

			rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/wake_up", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"id":111,"id_s":"111","vehicle_id":901,"state":"online"}}`))
		})

		It("serializes commands for one vehicle", func() {
			var (
				lock    sync.Mutex
				active  int
				overlap bool
			)
			httpmock.RegisterResponder(http.MethodPost, commandURL+"flash_lights", func(r *http.Request) (*http.Response, error) {
				lock.Lock()
				active++
				if active > 1 {
					overlap = true
				}
				lock.Unlock()
				time.Sleep(10 * time.Millisecond)
				lock.Lock()
				active--
				lock.Unlock()
				return httpmock.NewStringResponse(http.StatusOK, `{"response":{"result":true,"reason":""}}`), nil
			})

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					rr := sendRequest(http.MethodPost, "/api/1/vehicles/111/command/flash_lights", authorizationToken, nil)
					Expect(rr.Code).To(Equal(http.StatusOK))
				}()
			}
			wg.Wait()
			Expect(overlap).To(BeFalse())
			Expect(httpmock.GetTotalCallCount()).To(Equal(4))
		})
	})

	Describe("forward request", func() {
		It("forwards state queries with the client's token", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/1/vehicles/111/data_request/charge_state", func(r *http.Request) (*http.Response, error) {
				Expect(r.Header.Get("Authorization")).To(Equal(authorizationToken))
				return httpmock.NewStringResponse(http.StatusOK, `{"response":{"battery_level":80}}`), nil
			})

			rr := sendRequest(http.MethodGet, "/api/1/vehicles/111/data_request/charge_state", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"battery_level":80}}`))
		})

		It("passes status codes through", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/1/vehicles",
				httpmock.NewStringResponder(http.StatusUnauthorized, `{"error":"invalid bearer token"}`))

			rr := sendRequest(http.MethodGet, "/api/1/vehicles", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			Expect(rr.Body.String()).To(MatchJSON(`{"error":"invalid bearer token"}`))
		})

		Describe("X-Forwarded-For header", func() {
			It("adds header", func() {
				httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/1/unknown", func(r *http.Request) (*http.Response, error) {
					Expect(r.Header.Get("X-Forwarded-For")).To(Equal("1.2.3.4"))
					return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{})
				})

				req := httptest.NewRequest(http.MethodGet, "/api/1/unknown", nil)
				req.Header.Set("Authorization", authorizationToken)
				req.RemoteAddr = "1.2.3.4:5678"

				rr := httptest.NewRecorder()
				p.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))
			})

			It("adds to existing X-Forwarded-For header", func() {
				httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/1/unknown", func(r *http.Request) (*http.Response, error) {
					Expect(r.Header.Get("X-Forwarded-For")).To(Equal("5.6.7.8, 9.10.11.12, 1.2.3.4"))
					return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{})
				})

				req := httptest.NewRequest(http.MethodGet, "/api/1/unknown", nil)
				req.Header.Set("Authorization", authorizationToken)
				req.RemoteAddr = "1.2.3.4:5678"
				req.Header.Set("X-Forwarded-For", "5.6.7.8, 9.10.11.12")

				rr := httptest.NewRecorder()
				p.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))
			})
		})

		Describe("per-hop headers", func() {
			It("removes before forwarding", func() {
				httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/1/unknown", func(r *http.Request) (*http.Response, error) {
					Expect(r.Header.Get("Proxy-Connection")).To(Equal(""))
					Expect(r.Header.Get("Keep-Alive")).To(Equal(""))
					Expect(r.Header.Get("Te")).To(Equal(""))
					Expect(r.Header.Get("Upgrade")).To(Equal(""))
					Expect(r.Header.Get("X-TXID")).To(Equal("abc123"))
					return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{})
				})

				req := httptest.NewRequest(http.MethodGet, "/api/1/unknown", nil)
				req.Header.Set("Authorization", authorizationToken)
				req.Header.Set("Proxy-Connection", "keep-alive")
				req.Header.Set("Keep-Alive", "timeout=5")
				req.Header.Set("Te", "trailers")
				req.Header.Set("Upgrade", "websocket")
				req.Header.Set("X-TXID", "abc123")

				rr := httptest.NewRecorder()
				p.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))
			})

			It("removes from response", func() {
				httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/1/unknown", func(r *http.Request) (*http.Response, error) {
					resp, err := httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{})
					Expect(err).ToNot(HaveOccurred())
					resp.Header.Set("Proxy-Connection", "keep-alive")
					resp.Header.Set("Keep-Alive", "timeout=5")
					resp.Header.Set("Upgrade", "websocket")
					resp.Header.Set("X-TXID", "abc123")
					return resp, nil
				})

				req := httptest.NewRequest(http.MethodGet, "/api/1/unknown", nil)
				req.Header.Set("Authorization", authorizationToken)

				rr := httptest.NewRecorder()
				p.ServeHTTP(rr, req)

				Expect(rr.Code).To(Equal(http.StatusOK))
				Expect(rr.Header().Get("Proxy-Connection")).To(Equal(""))
				Expect(rr.Header().Get("Keep-Alive")).To(Equal(""))
				Expect(rr.Header().Get("Upgrade")).To(Equal(""))
				Expect(rr.Header().Get("X-TXID")).To(Equal("abc123"))
			})
		})

		It("times out", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/1/unknown", func(r *http.Request) (*http.Response, error) {
				select {
				case <-r.Context().Done():
					return nil, r.Context().Err()
				case <-time.After(time.Second):
				}
				return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{})
			})

			p.Timeout = 25 * time.Millisecond
			rr := sendRequest(http.MethodGet, "/api/1/unknown", authorizationToken, nil)
			Expect(rr.Code).To(Equal(http.StatusGatewayTimeout))
		})
	})

	It("returns 404 for path not starting with /api/1/", func() {
		rr := sendRequest(http.MethodGet, "/unknown", authorizationToken, nil)
		Expect(rr.Code).To(Equal(http.StatusNotFound))
	})
})
