package account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/cscashby/TeslaJS/pkg/protocol"
)

// ErrMissingToken indicates a login reply that parsed but carried no access_token.
var ErrMissingToken = errors.New("access_token missing from login response")

// LoginResult is the reply of the OAuth token endpoint.
type LoginResult struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	CreatedAt    int64  `json:"created_at"`

	// StatusCode and Body describe the HTTP reply. They are set whenever a reply was received,
	// including when Login returns an error.
	StatusCode int    `json:"-"`
	Body       []byte `json:"-"`
}

type loginError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Login exchanges a username and password for an OAuth token using the password grant.
//
// Config.UsernameOverride and Config.PasswordOverride, when set, take precedence over the
// arguments. A reply that cannot be parsed is logged and returned together with a
// *protocol.DecodeError; the result then has an empty AccessToken.
func (a *Account) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	logger := a.Logger()
	if a.config.UsernameOverride != "" {
		username = a.config.UsernameOverride
	}
	if a.config.PasswordOverride != "" {
		password = a.config.PasswordOverride
	}
	logger.Call("login(%s)", username)

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", a.config.ClientID)
	form.Set("client_secret", a.config.ClientSecret)
	form.Set("email", username)
	form.Set("password", password)

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	endpoint := strings.TrimRight(a.BaseURL(), "/") + "/oauth/token"

	status, body, err := a.conn.Exchange(ctx, http.MethodPost, endpoint, header, strings.NewReader(form.Encode()))
	result := &LoginResult{StatusCode: status, Body: body}
	if err != nil {
		logger.Error("login failed: %s", err)
		if status == 0 {
			return nil, err
		}
		return result, err
	}

	if err := json.Unmarshal(body, result); err != nil {
		logger.Error("could not parse login response: %s", err)
		result.AccessToken = ""
		return result, protocol.NewDecodeError(err, status, body)
	}
	var failure loginError
	if json.Unmarshal(body, &failure) == nil && failure.Error != "" {
		logger.Error("login rejected: %s", failure.Error)
		return result, &protocol.APIError{StatusCode: status, Message: failure.Error, Description: failure.Description}
	}
	if result.AccessToken == "" {
		logger.Error("login response has no access token")
		return result, protocol.NewDecodeError(ErrMissingToken, status, body)
	}
	logger.Return("login(%s) succeeded", username)
	return result, nil
}

// Logout is not supported by the owner API client. It always returns protocol.ErrNotImplemented
// without contacting the server.
func (a *Account) Logout(_ context.Context, _ string) error {
	a.Logger().Call("logout()")
	return protocol.ErrNotImplemented
}
