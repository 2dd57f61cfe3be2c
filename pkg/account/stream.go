package account

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cscashby/TeslaJS/pkg/protocol"
)

// DefaultStreamColumns are requested when StreamOptions.Columns is empty.
var DefaultStreamColumns = []string{
	"elevation", "est_heading", "est_lat", "est_lng", "est_range", "heading",
	"odometer", "power", "range", "shift_state", "speed", "soc",
}

type StreamOptions struct {
	// VehicleID is the vehicle_id field of the vehicle record, not its id_s.
	VehicleID string
	// Username and Password are sent with HTTP basic authentication. The streaming portal
	// expects the account e-mail and one of the vehicle's tokens.
	Username string
	Password string
	Columns  []string
}

func (o *StreamOptions) columns() []string {
	if len(o.Columns) == 0 {
		return DefaultStreamColumns
	}
	return o.Columns
}

// StreamURL returns {streaming}{vehicleID}/?values=c1,c2,...
func StreamURL(streamingURL, vehicleID string, columns []string) string {
	return fmt.Sprintf("%s%s/?values=%s", streamingURL, vehicleID, strings.Join(columns, ","))
}

// Stream opens a telemetry stream. The caller must close the returned body. A non-200 reply is
// returned as a *protocol.APIError.
func (a *Account) Stream(ctx context.Context, opts StreamOptions) (io.ReadCloser, error) {
	logger := a.Logger()
	url := StreamURL(a.StreamingURL(), opts.VehicleID, opts.columns())
	logger.Call("stream(%s)", opts.VehicleID)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &protocol.NominalError{Details: err}
	}
	request.SetBasicAuth(opts.Username, opts.Password)
	request.Header.Set("User-Agent", a.UserAgent())

	logger.Request("GET %s", url)
	response, err := a.conn.Client().Do(request)
	if err != nil {
		logger.Error("stream failed: %s", err)
		return nil, &protocol.TransportError{Err: err}
	}
	logger.Response("GET %s: %d", url, response.StatusCode)
	if response.StatusCode != http.StatusOK {
		response.Body.Close()
		return nil, &protocol.APIError{StatusCode: response.StatusCode, Message: http.StatusText(response.StatusCode)}
	}
	return response.Body, nil
}

// StreamRecord is one line of telemetry.
type StreamRecord struct {
	Timestamp time.Time
	// Values maps each requested column to its raw value. Empty values are kept.
	Values map[string]string
}

// ErrStreamRecord indicates a telemetry line that does not match the requested columns.
var ErrStreamRecord = errors.New("malformed stream record")

// ParseStreamRecord parses "timestamp,v1,v2,..." where values follow columns in order.
func ParseStreamRecord(line string, columns []string) (*StreamRecord, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != len(columns)+1 {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrStreamRecord, len(columns)+1, len(fields))
	}
	ms, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %s", ErrStreamRecord, err)
	}
	record := &StreamRecord{Timestamp: time.UnixMilli(ms), Values: make(map[string]string, len(columns))}
	for i, column := range columns {
		record.Values[column] = fields[i+1]
	}
	return record, nil
}

// ReadStream calls handle for each record read from r until EOF, a read error, or handle returns
// an error. Blank lines are skipped.
func ReadStream(r io.Reader, columns []string, handle func(*StreamRecord) error) error {
	if len(columns) == 0 {
		columns = DefaultStreamColumns
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		record, err := ParseStreamRecord(line, columns)
		if err != nil {
			return err
		}
		if err := handle(record); err != nil {
			return err
		}
	}
	return scanner.Err()
}
