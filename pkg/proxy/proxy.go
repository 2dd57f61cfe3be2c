package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cscashby/TeslaJS/internal/log"
	"github.com/cscashby/TeslaJS/pkg/account"
	"github.com/cscashby/TeslaJS/pkg/connector"
	"github.com/cscashby/TeslaJS/pkg/connector/inet"
	"github.com/cscashby/TeslaJS/pkg/protocol"
	"github.com/cscashby/TeslaJS/pkg/vehicle"
)

const (
	DefaultTimeout      = 10 * time.Second
	maxRequestBodyBytes = 4096
	MaxResponseLength   = connector.MaxResponseLength
)

func bearerToken(req *http.Request) (string, error) {
	token, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", fmt.Errorf("client did not provide an OAuth token")
	}
	return token, nil
}

// Proxy exposes the vehicle command catalog as an HTTP API. Clients authenticate with their own
// OAuth token, which the proxy passes through to the owner API.
type Proxy struct {
	Timeout time.Duration

	acct        *account.Account
	vehicleLock sync.Map
}

// lockVehicle locks a vehicle-specific mutex, blocking until the operation succeeds or ctx
// expires.
func (p *Proxy) lockVehicle(ctx context.Context, id string) error {
	lock := make(chan bool, 1)
	for {
		if obj, loaded := p.vehicleLock.LoadOrStore(id, lock); loaded {
			select {
			case <-obj.(chan bool):
				// The goroutine that reads from the channel doesn't necessarily own the mutex. This
				// allows the mutex owner to delete the entry from the map, limiting the size of the
				// map to the number of concurrent vehicle commands.
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			return nil
		}
	}
}

// unlockVehicle releases a vehicle-specific mutex.
func (p *Proxy) unlockVehicle(id string) {
	obj, ok := p.vehicleLock.Load(id)
	if !ok {
		panic("called unlock without owning mutex")
	}
	p.vehicleLock.Delete(id) // Allow someone else to claim the mutex
	close(obj.(chan bool))   // Unblock goroutines
}

// New creates an http proxy that sends requests through acct. The account's base URL, HTTP
// client, logger and observer apply to every proxied request.
func New(acct *account.Account) *Proxy {
	return &Proxy{
		Timeout: DefaultTimeout,
		acct:    acct,
	}
}

// Response contains a server's response to a client request.
type Response struct {
	Response   interface{} `json:"response"`
	Error      string      `json:"error,omitempty"`
	ErrDetails string      `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, reply *Response) {
	jsonBytes, err := json.Marshal(reply)
	if err != nil {
		log.Error("Error serializing reply %+v: %s", reply, err)
		code = http.StatusInternalServerError
		jsonBytes = []byte("{\"error\": \"internal server error\"}")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	jsonBytes = append(jsonBytes, '\n')
	w.Write(jsonBytes)
}

func writeJSONError(w http.ResponseWriter, code int, err error) {
	reply := Response{}

	var httpErr *inet.HttpError
	var apiErr *protocol.APIError
	switch {
	case err == nil:
		reply.Error = http.StatusText(code)
	case errors.As(err, &httpErr):
		code = httpErr.Code
		reply.Error = httpErr.Error()
	case errors.As(err, &apiErr):
		reply.Error = apiErr.Message
		reply.ErrDetails = apiErr.Description
	default:
		reply.Error = err.Error()
	}
	if code != http.StatusOK {
		log.Error("Returning error %s: %s", http.StatusText(code), reply.Error)
	}
	writeJSON(w, code, &reply)
}

var connectionHeaders = []string{
	"Proxy-Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"Te",
	"Upgrade",
}

// forwardRequest is the fallback handler for "/api/1/*".
// It forwards the request to the owner API unchanged, including the client's OAuth token.
func (p *Proxy) forwardRequest(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), p.Timeout)
	defer cancel()

	target := strings.TrimRight(p.acct.BaseURL(), "/") + req.URL.RequestURI()
	var body io.Reader
	if req.Body != nil {
		requestBody, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBodyBytes+1))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		if len(requestBody) > maxRequestBodyBytes {
			writeJSONError(w, http.StatusRequestEntityTooLarge, nil)
			return
		}
		body = bytes.NewReader(requestBody)
	}

	proxyReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	proxyReq.Header = req.Header.Clone()
	// Remove per-hop headers
	for _, hdr := range connectionHeaders {
		proxyReq.Header.Del(hdr)
	}
	proxyReq.Header.Set("User-Agent", p.acct.UserAgent())

	if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		const xff = "X-Forwarded-For"
		previous := req.Header.Values(xff)
		if len(previous) == 0 {
			proxyReq.Header.Add(xff, clientIP)
		} else {
			previous = append(previous, clientIP)
			// If the client sent multiple XFF headers, flatten them.
			proxyReq.Header.Set(xff, strings.Join(previous, ", "))
		}
	}

	log.Call("Forwarding request to %s", target)
	result, err := p.acct.HTTPClient().Do(proxyReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeJSONError(w, http.StatusGatewayTimeout, err)
		} else {
			writeJSONError(w, http.StatusBadGateway, err)
		}
		return
	}
	defer result.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(result.Body, MaxResponseLength+1))
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}
	if len(respBody) > MaxResponseLength {
		writeJSONError(w, http.StatusBadGateway, protocol.ErrResponseTooLarge)
		return
	}

	for _, hdr := range connectionHeaders {
		result.Header.Del(hdr)
	}
	outHeader := w.Header()
	for name, value := range result.Header {
		outHeader[name] = value
	}
	outHeader.Del("Content-Length")
	w.WriteHeader(result.StatusCode)
	w.Write(respBody)
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Call("Received %s request for %s", req.Method, req.URL.Path)

	if !strings.HasPrefix(req.URL.Path, "/api/1/") {
		writeJSONError(w, http.StatusNotFound, nil)
		return
	}
	token, err := bearerToken(req)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, err)
		return
	}

	if strings.HasPrefix(req.URL.Path, "/api/1/vehicles/") {
		path := strings.Split(req.URL.Path, "/")
		if len(path) == 7 && path[5] == "command" {
			p.handleVehicleCommand(w, req, token, path[4], path[6])
			return
		}
		if len(path) == 6 && path[5] == "wake_up" && req.Method == http.MethodPost {
			p.runAction(w, req, token, path[4], func(ctx context.Context, v *vehicle.Vehicle) (interface{}, error) {
				result, err := v.WakeUp(ctx)
				if result == nil {
					return nil, err
				}
				return result, err
			})
			return
		}
	}
	p.forwardRequest(w, req)
}

func (p *Proxy) handleVehicleCommand(w http.ResponseWriter, req *http.Request, token, id, command string) {
	log.Call("Executing %s on %s", command, id)
	if req.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, nil)
		return
	}
	action, err := extractCommandAction(req, command)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	p.runAction(w, req, token, id, action)
}

// runAction executes action while holding the vehicle's lock, so commands sent to one vehicle are
// executed in arrival order.
func (p *Proxy) runAction(w http.ResponseWriter, req *http.Request, token, id string, action Action) {
	ctx, cancel := context.WithTimeout(req.Context(), p.Timeout)
	defer cancel()

	if err := p.lockVehicle(ctx, id); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err)
		return
	}
	defer p.unlockVehicle(id)

	car := p.acct.GetVehicle(&connector.Session{AuthToken: token, VehicleID: id})
	result, err := action(ctx, car)
	if err == nil {
		writeJSON(w, http.StatusOK, &Response{Response: result})
		return
	}

	var apiErr *protocol.APIError
	switch {
	case errors.As(err, &apiErr):
		code := apiErr.StatusCode
		if code < 400 {
			code = http.StatusBadGateway
		}
		writeJSON(w, code, &Response{Response: result, Error: apiErr.Message, ErrDetails: apiErr.Description})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, err)
	default:
		writeJSONError(w, http.StatusBadGateway, err)
	}
}

func extractCommandAction(req *http.Request, command string) (Action, error) {
	var params RequestParameters
	body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBodyBytes+1))
	if err != nil {
		return nil, &inet.HttpError{Code: http.StatusBadRequest, Message: "could not read request body"}
	}
	if len(body) > maxRequestBodyBytes {
		return nil, &inet.HttpError{Code: http.StatusRequestEntityTooLarge}
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			return nil, &inet.HttpError{Code: http.StatusBadRequest, Message: "error occurred while parsing request parameters"}
		}
	}

	return ExtractCommandAction(command, params)
}
