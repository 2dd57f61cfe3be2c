package vehicle

import (
	"context"
)

// IsValidPIN returns true if pin is four decimal digits.
func IsValidPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (v *Vehicle) Lock(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/door_lock", nil)
}

func (v *Vehicle) Unlock(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/door_unlock", nil)
}

type valetRequest struct {
	On       bool   `json:"on"`
	Password string `json:"password"`
}

// SetValetMode enables or disables valet mode. The PIN is forwarded as given; the server decides
// whether it is acceptable.
func (v *Vehicle) SetValetMode(ctx context.Context, on bool, pin string) (*CommandResult, error) {
	return v.command(ctx, "command/set_valet_mode", valetRequest{On: on, Password: pin})
}

func (v *Vehicle) ResetValetPin(ctx context.Context) (*CommandResult, error) {
	return v.command(ctx, "command/reset_valet_pin", nil)
}

type remoteStartRequest struct {
	Password string `json:"password"`
}

// RemoteStart enables keyless driving. password is the account password.
func (v *Vehicle) RemoteStart(ctx context.Context, password string) (*CommandResult, error) {
	return v.command(ctx, "command/remote_start_drive", remoteStartRequest{Password: password})
}
