package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/habedi/tenantctl/auth"
	"github.com/rs/zerolog/log"
)

const (
	loginPath   = "/auth/login"
	refreshPath = "/auth/refresh"
	logoutPath  = "/auth/logout"
)

// tokensEnvelope is the body of login and refresh responses.
type tokensEnvelope struct {
	Tokens struct {
		AccessToken  string  `json:"accessToken"`
		RefreshToken string  `json:"refreshToken"`
		ExpiresIn    seconds `json:"expiresIn"`
	} `json:"tokens"`
}

func (t tokensEnvelope) pair() auth.TokenPair {
	return auth.TokenPair{
		AccessToken:  t.Tokens.AccessToken,
		RefreshToken: t.Tokens.RefreshToken,
		ExpiresIn:    time.Duration(t.Tokens.ExpiresIn),
	}
}

// seconds decodes expiresIn given as a number of seconds, a numeric string, or a duration string like "15m".
type seconds time.Duration

func (s *seconds) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		*s = seconds(time.Duration(n * float64(time.Second)))
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("invalid expiresIn %s", raw)
	}
	if n, err := strconv.ParseFloat(str, 64); err == nil {
		*s = seconds(time.Duration(n * float64(time.Second)))
		return nil
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("invalid expiresIn %q", str)
	}
	*s = seconds(d)
	return nil
}

// AuthAPI talks to the session endpoints. Its calls are sent exactly once and
// never pass through the refresh logic of the Executor.
type AuthAPI struct {
	httpClient *http.Client
	builder    *RequestBuilder
	store      *auth.TokenStore
	deviceID   string
}

// NewAuthAPI creates the session endpoint client.
func NewAuthAPI(httpClient *http.Client, builder *RequestBuilder, store *auth.TokenStore, deviceID string) *AuthAPI {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AuthAPI{httpClient: httpClient, builder: builder, store: store, deviceID: deviceID}
}

// Login exchanges credentials for a token pair and stores it.
func (a *AuthAPI) Login(ctx context.Context, email, password string) (auth.TokenPair, error) {
	if email == "" || password == "" {
		return auth.TokenPair{}, newError(KindValidation, 0, "email and password cannot be empty", nil)
	}
	body := map[string]string{"email": email, "password": password}
	if a.deviceID != "" {
		body["deviceId"] = a.deviceID
	}

	var env tokensEnvelope
	if err := a.postOnce(ctx, Call{Method: http.MethodPost, Path: loginPath, JSON: body, Anonymous: true}, &env); err != nil {
		return auth.TokenPair{}, err
	}
	pair := env.pair()
	if pair.AccessToken == "" {
		return auth.TokenPair{}, newError(KindUnknown, 0, "login response carried no access token", nil)
	}
	if err := a.store.Set(ctx, pair); err != nil {
		log.Warn().Err(err).Msg("Session is active but could not be persisted")
	}
	stored, _ := a.store.Get()
	log.Info().Str("access_token", auth.Redact(pair.AccessToken)).Msg("Logged in")
	return stored, nil
}

// PerformTokenRefresh implements auth.TokenRefresher.
func (a *AuthAPI) PerformTokenRefresh(ctx context.Context, refreshToken, deviceID string) (auth.TokenPair, error) {
	body := map[string]string{"refreshToken": refreshToken}
	if deviceID != "" {
		body["deviceId"] = deviceID
	}
	var env tokensEnvelope
	if err := a.postOnce(ctx, Call{Method: http.MethodPost, Path: refreshPath, JSON: body, Anonymous: true}, &env); err != nil {
		return auth.TokenPair{}, fmt.Errorf("token refresh failed: %w", err)
	}
	return env.pair(), nil
}

// Logout notifies the server and clears the local session. The server call is
// best-effort: its failure is logged and the local tokens are cleared anyway.
func (a *AuthAPI) Logout(ctx context.Context) error {
	if _, ok := a.store.AccessToken(); ok {
		if err := a.postOnce(ctx, Call{Method: http.MethodPost, Path: logoutPath}, nil); err != nil {
			log.Warn().Err(err).Msg("Server-side logout failed, clearing local session anyway")
		}
	}
	return a.store.Clear(ctx)
}

func (a *AuthAPI) postOnce(ctx context.Context, call Call, out any) error {
	desc, err := a.builder.Build(call)
	if err != nil {
		return newError(KindValidation, 0, err.Error(), err)
	}
	if desc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}
	req, err := desc.newHTTPRequest(ctx)
	if err != nil {
		return newError(KindValidation, 0, err.Error(), err)
	}
	res, err := a.httpClient.Do(req)
	if err != nil {
		return ClassifyTransport(err)
	}
	defer closeResponseBody(res)

	body, err := readResponseBody(res)
	if err != nil {
		return ClassifyTransport(err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return ClassifyResponse(res, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return newError(KindUnknown, res.StatusCode, errBodyDecode.Error(), err)
	}
	return nil
}
