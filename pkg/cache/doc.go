// Package cache remembers which vehicle an account resolved to, so that command-line clients can
// skip the vehicle list round-trip on subsequent runs.
//
// Resolving a vehicle requires fetching the account's full vehicle list and selecting one entry
// by index. The selected identifier rarely changes, so a [VehicleCache] stores it keyed by an
// account-specific string (for example, the keyring token name plus the vehicle index). If the
// cached identifier is stale, the first command fails and the client can fall back to
// account.Vehicles.
//
// The same VehicleCache may safely be used with different accounts.
//
// If a VehicleCache is exported using its [VehicleCache.Export] or [VehicleCache.ExportToFile]
// methods, access controls should be used to prevent third parties from reading the data.
package cache
