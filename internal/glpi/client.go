package glpi

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-importer/internal/config"
)

// Client bundles the session and gateway of one job.
type Client struct {
	*Gateway
	session *SessionManager
}

// NewSessionConfig maps the environment configuration onto a SessionConfig.
func NewSessionConfig(cfg config.GLPIConfig, logger *zap.Logger) SessionConfig {
	return SessionConfig{
		Endpoint: cfg.Endpoint,
		Credentials: Credentials{
			AppToken:  cfg.AppToken,
			Username:  cfg.Username,
			Password:  cfg.Password,
			UserToken: cfg.UserToken,
		},
		Timeout: cfg.RequestTimeout(),
		Logger:  logger,
	}
}

// Connect builds a SessionManager from cfg, performs the handshake and
// returns a ready client. The caller must Close it when the job ends.
func Connect(ctx context.Context, cfg SessionConfig) (*Client, error) {
	session, err := NewSessionManager(cfg)
	if err != nil {
		return nil, &Error{Kind: KindAuthInit, Op: OpInitSession, Err: err}
	}
	if _, err := session.Initialize(ctx); err != nil {
		return nil, err
	}
	return &Client{Gateway: NewGateway(session, cfg.Logger), session: session}, nil
}

// Close kills the remote session.
func (c *Client) Close(ctx context.Context) error {
	return c.session.Close(ctx)
}
