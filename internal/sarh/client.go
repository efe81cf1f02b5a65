// Package sarh is the client for the SARH identity directory.
//
// The directory exposes three POST endpoints under a configurable base URL:
//
//	/login    service account credentials -> {"Token": "..."}
//	/usuario  end-user credentials + bearer token -> envelope with one record
//	/estados  bearer token, empty body -> envelope with the full roster
//
// An envelope is {"RespuestaSolicitud": true, "Datos": [...]}. A call succeeds
// only on HTTP 200 with the flag true and a non-empty Datos list. Every other
// outcome, including transport errors and timeouts, is reported as an error
// wrapping apperror.ErrRemote. The client never retries and never caches.
package sarh

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ingeweb/contactws/internal/apperror"
	"github.com/ingeweb/contactws/internal/model"
)

// SettingsSource supplies the connection settings. It is consulted on every
// call so administrators can change them without a restart.
type SettingsSource interface {
	ConnectionSettings(ctx context.Context) (model.ConnectionSettings, error)
}

// Config holds the client timeouts and limits.
type Config struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// DefaultConfig returns a 5s connect timeout, a 15s overall request timeout
// and a 64 MiB response cap, enough for a roster of tens of thousands.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 15 * time.Second,
		MaxBodyBytes:   64 << 20,
	}
}

// Client talks to the SARH directory. It is safe for concurrent use.
type Client struct {
	settings SettingsSource
	config   Config
	base     http.RoundTripper
	logger   *slog.Logger
}

func New(settings SettingsSource, cfg Config, logger *slog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout

	return &Client{
		settings: settings,
		config:   cfg,
		base:     transport,
		logger:   logger,
	}
}

// credentials is the body of /login and /usuario.
type credentials struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}

type tokenResponse struct {
	Token string `json:"Token"`
}

type envelope struct {
	RespuestaSolicitud *bool              `json:"RespuestaSolicitud"`
	Datos              []model.RemoteUser `json:"Datos"`
}

// Roster is the decoded /estados response. Raw keeps the body as received.
type Roster struct {
	Users []model.RemoteUser
	Raw   []byte
}

// Token obtains a bearer token with the configured service account.
func (c *Client) Token(ctx context.Context) (string, error) {
	s, err := c.connection(ctx, "login")
	if err != nil {
		return "", err
	}

	body, err := c.post(ctx, c.httpClient(""), endpoint(s.BaseURL, "login"),
		credentials{Username: s.APIUsername, Password: s.APIPassword})
	if err != nil {
		return "", apperror.Remote("login", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", apperror.Remote("login", fmt.Errorf("decoding response: %w", err))
	}
	if tr.Token == "" {
		return "", apperror.Remote("login", errors.New("response has no token"))
	}

	c.logger.Debug("sarh token obtained")
	return tr.Token, nil
}

// VerifyUser checks an end user's credentials and returns their record.
func (c *Client) VerifyUser(ctx context.Context, username, password, token string) (model.RemoteUser, error) {
	s, err := c.connection(ctx, "usuario")
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, c.httpClient(token), endpoint(s.BaseURL, "usuario"),
		credentials{Username: username, Password: password})
	if err != nil {
		return nil, apperror.Remote("usuario", err)
	}

	users, err := decodeEnvelope(body)
	if err != nil {
		return nil, apperror.Remote("usuario", err)
	}
	return users[0], nil
}

// Roster fetches every person known to the directory in a single call.
func (c *Client) Roster(ctx context.Context, token string) (*Roster, error) {
	s, err := c.connection(ctx, "estados")
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, c.httpClient(token), endpoint(s.BaseURL, "estados"), nil)
	if err != nil {
		return nil, apperror.Remote("estados", err)
	}

	users, err := decodeEnvelope(body)
	if err != nil {
		return nil, apperror.Remote("estados", err)
	}

	c.logger.Debug("sarh roster received", slog.Int("users", len(users)))
	return &Roster{Users: users, Raw: body}, nil
}

func (c *Client) connection(ctx context.Context, op string) (model.ConnectionSettings, error) {
	s, err := c.settings.ConnectionSettings(ctx)
	if err != nil {
		return s, apperror.Remote(op, fmt.Errorf("loading settings: %w", err))
	}
	if !s.Complete() {
		return s, apperror.Remote(op, errors.New("connection settings are incomplete"))
	}
	return s, nil
}

// httpClient returns a client that attaches token as a bearer credential.
// An empty token yields an unauthenticated client.
func (c *Client) httpClient(token string) *http.Client {
	rt := c.base
	if token != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.base,
		}
	}
	return &http.Client{Transport: rt, Timeout: c.config.RequestTimeout}
}

// post sends payload as JSON (or an empty body when payload is nil) and
// returns the response body of a 200 response.
func (c *Client) post(ctx context.Context, hc *http.Client, url string, payload any) ([]byte, error) {
	var reqBody io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", c.config.MaxBodyBytes)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

func decodeEnvelope(body []byte) ([]model.RemoteUser, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if env.RespuestaSolicitud == nil || !*env.RespuestaSolicitud {
		return nil, errors.New("request was not successful")
	}
	if len(env.Datos) == 0 {
		return nil, errors.New("response has no records")
	}
	return env.Datos, nil
}

func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + "/" + path
}
