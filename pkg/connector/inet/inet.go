// Package inet implements connector.Dispatcher over HTTPS.
package inet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cscashby/TeslaJS/internal/log"
	"github.com/cscashby/TeslaJS/pkg/connector"
	"github.com/cscashby/TeslaJS/pkg/protocol"
)

// ContentType is sent with GET requests and JSON request bodies.
const ContentType = "application/json; charset=utf-8"

// FormContentType is sent with flat POST bodies.
const FormContentType = "application/x-www-form-urlencoded"

// Request outcomes reported to an Observer.
const (
	OutcomeOK             = "ok"
	OutcomeTransportError = "transport_error"
	OutcomeDecodeError    = "decode_error"
	OutcomeAPIError       = "api_error"
)

// Observer receives one notification per completed request.
type Observer interface {
	ObserveRequest(method, command, outcome string, elapsed time.Duration)
}

// ReadWithContext fills p from r until EOF, p is full, or ctx is cancelled. Bytes read before an
// error are returned alongside it.
func ReadWithContext(ctx context.Context, r io.Reader, p []byte) ([]byte, error) {
	bytesRead := 0
	for {
		if ctx.Err() != nil {
			return p[:bytesRead], ctx.Err()
		}
		n, err := r.Read(p[bytesRead:])
		bytesRead += n
		if err == io.EOF {
			return p[:bytesRead], nil
		}
		if err != nil {
			return p[:bytesRead], err
		}
		if bytesRead == len(p) {
			return p[:bytesRead], nil
		}
	}
}

// readLimited reads at most limit bytes from r into a buffer that grows with the body.
func readLimited(ctx context.Context, r io.Reader, limit int64) ([]byte, error) {
	var buffer bytes.Buffer
	chunk := make([]byte, 32*1024)
	reader := io.LimitReader(r, limit)
	for {
		read, err := ReadWithContext(ctx, reader, chunk)
		buffer.Write(read)
		if err != nil {
			return buffer.Bytes(), err
		}
		if len(read) < len(chunk) {
			return buffer.Bytes(), nil
		}
	}
}

// HttpError is a locally generated HTTP failure. The proxy uses it to reply to its own clients.
type HttpError struct {
	Code    int
	Message string
}

func (e *HttpError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Code)
	}
	return e.Message
}

func (e *HttpError) MayHaveSucceeded() bool {
	if e.Code >= 400 && e.Code < 500 {
		return false
	}
	return e.Code != http.StatusServiceUnavailable
}

func (e *HttpError) Temporary() bool {
	return e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusGatewayTimeout ||
		e.Code == http.StatusRequestTimeout
}

// VehicleURL returns {base}/api/1/vehicles/{vehicleID}/{command}. Slashes at the seams are
// normalized so the result never contains an empty path segment from joining.
func VehicleURL(base, vehicleID, command string) string {
	base = strings.TrimRight(base, "/")
	command = strings.TrimLeft(command, "/")
	return fmt.Sprintf("%s/api/1/vehicles/%s/%s", base, vehicleID, command)
}

// Connection dispatches vehicle requests to an owner API portal.
type Connection struct {
	UserAgent string
	client    *http.Client
	logger    *log.Logger
	observer  Observer

	urlLock sync.RWMutex
	baseURL string
}

// NewConnection creates a Connection. A nil client selects http.DefaultClient and a nil logger
// selects log.Default().
func NewConnection(baseURL, userAgent string, client *http.Client, logger *log.Logger) *Connection {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = log.Default()
	}
	c := &Connection{
		UserAgent: userAgent,
		client:    client,
		logger:    logger,
	}
	c.SetBaseURL(baseURL)
	return c
}

// SetObserver registers o to receive request metrics. Not safe to call concurrently with requests.
func (c *Connection) SetObserver(o Observer) {
	c.observer = o
}

// SetBaseURL changes the portal used by subsequent requests. An empty string restores
// connector.DefaultBaseURL. The value is not validated.
func (c *Connection) SetBaseURL(baseURL string) {
	if baseURL == "" {
		baseURL = connector.DefaultBaseURL
	}
	c.urlLock.Lock()
	defer c.urlLock.Unlock()
	c.baseURL = baseURL
}

func (c *Connection) BaseURL() string {
	c.urlLock.RLock()
	defer c.urlLock.RUnlock()
	return c.baseURL
}

func (c *Connection) Client() *http.Client {
	return c.client
}

func (c *Connection) Logger() *log.Logger {
	return c.logger
}

// Get sends a GET request for command on behalf of session.
func (c *Connection) Get(ctx context.Context, session *connector.Session, command string) (json.RawMessage, error) {
	return c.dispatch(ctx, http.MethodGet, session, command, nil)
}

// Post sends a POST request for command on behalf of session. A nil body sends an empty request
// body and []byte or json.RawMessage values are sent verbatim as JSON. Other values are encoded
// as a form when they marshal to a flat JSON object, and as JSON otherwise (nested payloads such
// as calendar entries).
func (c *Connection) Post(ctx context.Context, session *connector.Session, command string, body interface{}) (json.RawMessage, error) {
	return c.dispatch(ctx, http.MethodPost, session, command, body)
}

// EncodeBody returns the wire encoding of a Post body and its content type.
func EncodeBody(body interface{}) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, ContentType, nil
	case json.RawMessage:
		return b, ContentType, nil
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, "", err
	}
	if form, ok := formEncode(encoded); ok {
		return []byte(form), FormContentType, nil
	}
	return encoded, ContentType, nil
}

// formEncode converts a flat JSON object to application/x-www-form-urlencoded. Objects holding
// arrays or nested objects are rejected.
func formEncode(encoded []byte) (string, bool) {
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	var fields map[string]interface{}
	if err := decoder.Decode(&fields); err != nil || fields == nil {
		return "", false
	}
	form := url.Values{}
	for key, value := range fields {
		switch v := value.(type) {
		case nil:
			form.Set(key, "")
		case string:
			form.Set(key, v)
		case json.Number:
			form.Set(key, v.String())
		case bool:
			form.Set(key, strconv.FormatBool(v))
		default:
			return "", false
		}
	}
	return form.Encode(), true
}

func (c *Connection) dispatch(ctx context.Context, method string, session *connector.Session, command string, body interface{}) (data json.RawMessage, err error) {
	start := time.Now()
	c.logger.Call("%s %s", method, command)
	defer func() {
		c.observe(method, command, err, start)
		if err != nil {
			c.logger.Error("%s %s failed: %s", method, command, err)
		} else {
			c.logger.Return("%s %s completed", method, command)
		}
	}()

	payload, contentType, err := EncodeBody(body)
	if err != nil {
		return nil, &protocol.NominalError{Details: fmt.Errorf("could not encode request body: %w", err)}
	}

	if session == nil {
		session = &connector.Session{}
	}
	target := VehicleURL(c.BaseURL(), session.VehicleID, command)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+session.AuthToken)
	header.Set("Content-Type", ContentType)

	var reader io.Reader
	if payload != nil {
		header.Set("Content-Type", contentType)
		c.logger.Body("request body: %s", payload)
		reader = bytes.NewReader(payload)
	}

	status, respBody, err := c.Exchange(ctx, method, target, header, reader)
	if err != nil && !protocol.IsTransportError(err) {
		return nil, err
	}
	transportErr := err

	data, err = DecodeEnvelope(status, respBody)
	if transportErr != nil {
		// Best effort: keep whatever the partial body yielded.
		if err != nil {
			data = nil
		}
		return data, transportErr
	}
	return data, err
}

func (c *Connection) observe(method, command string, err error, start time.Time) {
	if c.observer == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err == nil:
	case protocol.IsTransportError(err):
		outcome = OutcomeTransportError
	case protocol.IsAPIError(err):
		outcome = OutcomeAPIError
	default:
		outcome = OutcomeDecodeError
	}
	c.observer.ObserveRequest(method, command, outcome, time.Since(start))
}

// Exchange performs a raw HTTP request and returns the status code and body. The User-Agent and
// Accept headers are added when missing from header.
//
// Returns the response body and an error. The response body is not necessarily nil if the error
// is set: a body read that fails midway returns the bytes received so far together with a
// *protocol.TransportError.
func (c *Connection) Exchange(ctx context.Context, method, url string, header http.Header, body io.Reader) (int, []byte, error) {
	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, &protocol.NominalError{Details: err}
	}
	for k, v := range header {
		request.Header[k] = v
	}
	if request.Header.Get("User-Agent") == "" && c.UserAgent != "" {
		request.Header.Set("User-Agent", c.UserAgent)
	}
	if request.Header.Get("Accept") == "" {
		request.Header.Set("Accept", "*/*")
	}

	c.logger.Request("%s %s", method, url)
	result, err := c.client.Do(request)
	if err != nil {
		return 0, nil, &protocol.TransportError{Err: err}
	}
	defer result.Body.Close()
	c.logger.Response("%s %s: %d %s", method, url, result.StatusCode, http.StatusText(result.StatusCode))

	buffer, err := readLimited(ctx, result.Body, connector.MaxResponseLength+1)
	if err != nil {
		return result.StatusCode, buffer, &protocol.TransportError{Err: fmt.Errorf("reading response body: %w", err)}
	}
	if len(buffer) > connector.MaxResponseLength {
		return result.StatusCode, nil, protocol.NewDecodeError(protocol.ErrResponseTooLarge, result.StatusCode, buffer)
	}
	c.logger.Body("response body: %s", buffer)
	return result.StatusCode, buffer, nil
}

// DecodeEnvelope extracts the "response" member from an owner API body. HTTP status codes are
// not interpreted: a body that is not a JSON object or lacks "response" yields a
// *protocol.DecodeError, and a non-empty "error" member yields a *protocol.APIError together with
// the decoded response.
func DecodeEnvelope(status int, body []byte) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, protocol.NewDecodeError(err, status, body)
	}
	if fields == nil {
		return nil, protocol.NewDecodeError(errors.New("body is null"), status, body)
	}
	response, ok := fields["response"]
	var message, description string
	if raw, present := fields["error"]; present {
		_ = json.Unmarshal(raw, &message)
	}
	if raw, present := fields["error_description"]; present {
		_ = json.Unmarshal(raw, &description)
	}
	if message != "" {
		return response, &protocol.APIError{StatusCode: status, Message: message, Description: description}
	}
	if !ok {
		return nil, protocol.NewDecodeError(protocol.ErrMissingResponse, status, body)
	}
	return response, nil
}
