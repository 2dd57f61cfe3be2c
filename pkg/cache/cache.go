package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cscashby/TeslaJS/pkg/connector"
	"github.com/cscashby/TeslaJS/pkg/vehicle"
)

// Entry describes a resolved vehicle.
type Entry struct {
	VehicleID   string    `json:"vehicle_id"`
	StreamingID int64     `json:"streaming_id,omitempty"`
	VIN         string    `json:"vin,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CarIndex    int       `json:"car_index"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewEntry builds an Entry from a record returned by account.Vehicles.
func NewEntry(record *vehicle.Record, carIndex int) Entry {
	return Entry{
		VehicleID:   record.ID,
		StreamingID: record.VehicleID,
		VIN:         record.VIN,
		DisplayName: record.DisplayName,
		CarIndex:    carIndex,
		UpdatedAt:   time.Now(),
	}
}

// Session returns a session that targets the cached vehicle.
func (e Entry) Session(authToken string) *connector.Session {
	return &connector.Session{AuthToken: authToken, VehicleID: e.VehicleID, CarIndex: e.CarIndex}
}

// Key combines an account name and vehicle index into a cache key.
func Key(account string, carIndex int) string {
	return fmt.Sprintf("%s#%d", account, carIndex)
}

type VehicleCache struct {
	MaxEntries int              `json:"max_entries"`
	Vehicles   map[string]Entry `json:"vehicles"`
	lock       sync.Mutex
}

// New returns a VehicleCache that holds up to maxEntries vehicles. The VehicleCache uses a
// least-recently-updated eviction strategy.
//
// Set maxEntries to zero for an unbounded cache.
func New(maxEntries int) *VehicleCache {
	return &VehicleCache{
		MaxEntries: maxEntries,
		Vehicles:   make(map[string]Entry),
	}
}

// Import a VehicleCache using data in r.
// The data should previously have been generated using [VehicleCache.Export].
func Import(r io.Reader) (*VehicleCache, error) {
	var cache VehicleCache
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&cache); err != nil {
		return nil, err
	}
	if cache.Vehicles == nil {
		cache.Vehicles = make(map[string]Entry)
	}
	return &cache, nil
}

// ImportFromFile reads a VehicleCache from disk.
func ImportFromFile(filename string) (*VehicleCache, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Import(file)
}

// Export writes a serialized VehicleCache to w.
func (c *VehicleCache) Export(w io.Writer) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	return json.NewEncoder(w).Encode(c)
}

// ExportToFile writes a VehicleCache to disk, replacing any previous contents.
func (c *VehicleCache) ExportToFile(filename string) error {
	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	return c.Export(file)
}

// Update the VehicleCache's entry for key.
func (c *VehicleCache) Update(key string, entry Entry) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	c.Vehicles[key] = entry
	if c.MaxEntries > 0 && len(c.Vehicles) > c.MaxEntries {
		oldestKey := key
		oldestUpdate := entry.UpdatedAt
		for k, e := range c.Vehicles {
			if e.UpdatedAt.Before(oldestUpdate) {
				oldestKey = k
				oldestUpdate = e.UpdatedAt
			}
		}
		delete(c.Vehicles, oldestKey)
	}
}

// GetEntry returns the vehicle cached under key.
func (c *VehicleCache) GetEntry(key string) (Entry, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	entry, ok := c.Vehicles[key]
	return entry, ok
}

// Remove drops key, typically after the cached vehicle ID was rejected by the server.
func (c *VehicleCache) Remove(key string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.Vehicles, key)
}
