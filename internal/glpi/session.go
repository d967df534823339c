package glpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Credentials identify the importer against GLPI. AppToken is static; the
// user is authenticated either by UserToken or by Username/Password.
type Credentials struct {
	AppToken  string
	Username  string
	Password  string
	UserToken string
}

// Session holds the credentials sent with every call. Token is empty until
// the handshake succeeds.
type Session struct {
	AppToken string
	Token    string
}

// SessionConfig configures a SessionManager.
type SessionConfig struct {
	Endpoint    string
	Credentials Credentials
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// SessionManager owns the authenticated session of a single job. It is not
// safe for concurrent use; each job builds its own.
type SessionManager struct {
	endpoint   string
	creds      Credentials
	httpClient *http.Client
	logger     *zap.Logger
	session    Session
}

// NewSessionManager validates cfg and builds a manager without contacting GLPI.
func NewSessionManager(cfg SessionConfig) (*SessionManager, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("glpi endpoint is required")
	}
	if cfg.Credentials.UserToken == "" && cfg.Credentials.Username == "" {
		return nil, errors.New("glpi user token or username is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		endpoint:   endpoint,
		creds:      cfg.Credentials,
		httpClient: client,
		logger:     logger,
		session:    Session{AppToken: cfg.Credentials.AppToken},
	}, nil
}

// Initialize performs the handshake. Any failure is an auth_init error.
func (m *SessionManager) Initialize(ctx context.Context) (*Session, error) {
	token, err := m.handshake(ctx, OpInitSession)
	if err != nil {
		err.Kind = KindAuthInit
		return nil, err
	}
	m.session.Token = token
	m.logger.Info("glpi session initialized")
	s := m.session
	return &s, nil
}

// Reinitialize repeats the handshake and replaces the session token in
// place. A failure is an auth_expired error and must not be retried.
func (m *SessionManager) Reinitialize(ctx context.Context) error {
	token, err := m.handshake(ctx, OpReinitSession)
	if err != nil {
		err.Kind = KindAuthExpired
		return err
	}
	m.session.Token = token
	m.logger.Info("glpi session re-initialized")
	return nil
}

// Headers returns the headers every API call carries.
func (m *SessionManager) Headers() http.Header {
	h := http.Header{}
	h.Set("App-Token", m.session.AppToken)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	if m.session.Token != "" {
		h.Set("Session-Token", m.session.Token)
	}
	return h
}

// Session returns a copy of the current session.
func (m *SessionManager) Session() Session {
	return m.session
}

// Close ends the remote session. It is a no-op when no session was obtained.
func (m *SessionManager) Close(ctx context.Context) error {
	if m.session.Token == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint+"/killSession", nil)
	if err != nil {
		return &Error{Kind: KindRemoteOperation, Op: OpKillSession, Err: err}
	}
	req.Header = m.Headers()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindRemoteOperation, Op: OpKillSession, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	m.session.Token = ""
	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindRemoteOperation, Op: OpKillSession, Status: resp.StatusCode}
	}
	return nil
}

func (m *SessionManager) handshake(ctx context.Context, op string) (string, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint+"/initSession", nil)
	if err != nil {
		return "", &Error{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("App-Token", m.creds.AppToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if m.creds.UserToken != "" {
		req.Header.Set("Authorization", "user_token "+m.creds.UserToken)
	} else {
		req.SetBasicAuth(m.creds.Username, m.creds.Password)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &Error{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if payload.SessionToken == "" {
		return "", &Error{Op: op, Status: resp.StatusCode, Err: errors.New("response without session_token")}
	}
	return payload.SessionToken, nil
}
