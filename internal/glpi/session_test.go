package glpi

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/spec-kit/ticket-importer/internal/config"
)

func TestSessionHeadersBeforeAndAfterInit(t *testing.T) {
	_, srv := newFakeGLPI(t)
	m, err := NewSessionManager(SessionConfig{
		Endpoint:    srv.URL,
		Credentials: Credentials{AppToken: "app", UserToken: "ut"},
	})
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	h := m.Headers()
	if h.Get("App-Token") != "app" || h.Get("Session-Token") != "" {
		t.Fatalf("unexpected headers before init: %v", h)
	}

	session, err := m.Initialize(t.Context())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if session.Token != "tok-1" || session.AppToken != "app" {
		t.Fatalf("unexpected session %+v", session)
	}
	h = m.Headers()
	if h.Get("Session-Token") != "tok-1" || h.Get("App-Token") != "app" || h.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected headers after init: %v", h)
	}
}

func TestSessionHandshakeCredentials(t *testing.T) {
	f, srv := newFakeGLPI(t)

	basic, _ := NewSessionManager(SessionConfig{Endpoint: srv.URL, Credentials: Credentials{AppToken: "app", Username: "glpi", Password: "pw"}})
	if _, err := basic.Initialize(t.Context()); err != nil {
		t.Fatalf("basic init: %v", err)
	}
	token, _ := NewSessionManager(SessionConfig{Endpoint: srv.URL, Credentials: Credentials{AppToken: "app", UserToken: "ut"}})
	if _, err := token.Initialize(t.Context()); err != nil {
		t.Fatalf("token init: %v", err)
	}

	inits := f.requestsTo("/initSession")
	if len(inits) != 2 {
		t.Fatalf("expected two handshakes, got %d", len(inits))
	}
	req := &http.Request{Header: inits[0].Header}
	if user, pw, ok := req.BasicAuth(); !ok || user != "glpi" || pw != "pw" {
		t.Fatalf("expected basic auth, got %q", inits[0].Header.Get("Authorization"))
	}
	if got := inits[1].Header.Get("Authorization"); got != "user_token ut" {
		t.Fatalf("expected user_token auth, got %q", got)
	}
	for _, r := range inits {
		if r.Header.Get("App-Token") != "app" {
			t.Fatalf("handshake without App-Token")
		}
	}
}

func TestSessionInitializeFailureIsAuthInit(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.handle(http.MethodGet, "/initSession", respond(http.StatusUnauthorized, `["ERROR_GLPI_LOGIN","Incorrect username or password"]`))

	m, _ := NewSessionManager(SessionConfig{Endpoint: srv.URL, Credentials: Credentials{AppToken: "app", Username: "glpi"}})
	_, err := m.Initialize(t.Context())
	if !IsKind(err, KindAuthInit) {
		t.Fatalf("expected auth_init, got %v", err)
	}
	if !IsFatal(err) {
		t.Fatalf("auth_init must be fatal")
	}
}

func TestSessionInitializeWithoutToken(t *testing.T) {
	f, srv := newFakeGLPI(t)
	f.handle(http.MethodGet, "/initSession", respond(http.StatusOK, `{}`))

	m, _ := NewSessionManager(SessionConfig{Endpoint: srv.URL, Credentials: Credentials{AppToken: "app", Username: "glpi"}})
	if _, err := m.Initialize(t.Context()); !IsKind(err, KindAuthInit) {
		t.Fatalf("expected auth_init, got %v", err)
	}
}

func TestSessionReinitializeReplacesToken(t *testing.T) {
	_, srv := newFakeGLPI(t)
	m, _ := NewSessionManager(SessionConfig{Endpoint: srv.URL, Credentials: Credentials{AppToken: "app", Username: "glpi"}})
	if _, err := m.Initialize(t.Context()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := m.Reinitialize(t.Context()); err != nil {
		t.Fatalf("reinitialize: %v", err)
	}
	if got := m.Session().Token; got != "tok-2" {
		t.Fatalf("expected replaced token, got %s", got)
	}
}

func TestSessionReinitializeFailureIsAuthExpired(t *testing.T) {
	f, srv := newFakeGLPI(t)
	m, _ := NewSessionManager(SessionConfig{Endpoint: srv.URL, Credentials: Credentials{AppToken: "app", Username: "glpi"}})
	if _, err := m.Initialize(t.Context()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	f.handle(http.MethodGet, "/initSession", respond(http.StatusInternalServerError, "boom"))
	if err := m.Reinitialize(t.Context()); !IsKind(err, KindAuthExpired) {
		t.Fatalf("expected auth_expired, got %v", err)
	}
}

func TestSessionCloseKillsSession(t *testing.T) {
	f, srv := newFakeGLPI(t)
	m, _ := NewSessionManager(SessionConfig{Endpoint: srv.URL, Credentials: Credentials{AppToken: "app", Username: "glpi"}})
	if err := m.Close(t.Context()); err != nil {
		t.Fatalf("close without session: %v", err)
	}
	if len(f.requestsTo("/killSession")) != 0 {
		t.Fatalf("no kill expected before init")
	}
	if _, err := m.Initialize(t.Context()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := m.Close(t.Context()); err != nil {
		t.Fatalf("close: %v", err)
	}
	kills := f.requestsTo("/killSession")
	if len(kills) != 1 || kills[0].Header.Get("Session-Token") != "tok-1" {
		t.Fatalf("expected one kill with the session token, got %+v", kills)
	}
	if m.Session().Token != "" {
		t.Fatalf("token must be cleared after close")
	}
}

func TestNewSessionManagerValidation(t *testing.T) {
	if _, err := NewSessionManager(SessionConfig{Credentials: Credentials{Username: "x"}}); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewSessionManager(SessionConfig{Endpoint: "http://glpi"}); err == nil {
		t.Fatalf("expected credentials error")
	}
}

func TestNewSessionConfigFromEnvironment(t *testing.T) {
	cfg := NewSessionConfig(config.GLPIConfig{
		Endpoint:              "http://glpi/apirest.php",
		AppToken:              "app",
		UserToken:             "ut",
		RequestTimeoutSeconds: 7,
	}, nil)
	if cfg.Endpoint != "http://glpi/apirest.php" || cfg.Credentials.AppToken != "app" || cfg.Credentials.UserToken != "ut" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Timeout != 7*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.Timeout)
	}
}

func TestConnectWithInvalidConfigIsAuthInit(t *testing.T) {
	_, err := Connect(t.Context(), SessionConfig{Credentials: Credentials{AppToken: "app"}})
	var gerr *Error
	if !errors.As(err, &gerr) || gerr.Kind != KindAuthInit {
		t.Fatalf("expected auth_init, got %v", err)
	}
}
