package connection

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/jackc/pgx/v5"

	"github.com/pgagents/pgagents/internal/azureauth"
	"github.com/pgagents/pgagents/internal/config"
)

// Provider supplies connection parameters for the database pool.
type Provider interface {
	ConnConfig(ctx context.Context) (*pgx.ConnConfig, error)
	// Describe returns a log-safe description of the target.
	Describe() string
}

// PasswordSource is implemented by providers whose password expires. The pool
// asks for a fresh password before dialing each physical connection.
type PasswordSource interface {
	Password(ctx context.Context) (string, error)
}

// Static connects with a fixed DSN taken from configuration.
type Static struct {
	DSN string
}

func (s Static) ConnConfig(context.Context) (*pgx.ConnConfig, error) {
	return parseDSN(s.DSN)
}

func (s Static) Describe() string {
	return Mask(s.DSN)
}

// Entra authenticates with a Microsoft Entra ID access token used as the
// PostgreSQL password.
type Entra struct {
	BaseDSN    string
	User       string
	Credential azcore.TokenCredential
}

func (e *Entra) ConnConfig(ctx context.Context) (*pgx.ConnConfig, error) {
	cfg, err := parseDSN(e.BaseDSN)
	if err != nil {
		return nil, err
	}
	if e.User != "" {
		cfg.User = e.User
	}
	password, err := e.Password(ctx)
	if err != nil {
		return nil, err
	}
	cfg.Password = password
	return cfg, nil
}

func (e *Entra) Password(ctx context.Context) (string, error) {
	if e.Credential == nil {
		return "", fmt.Errorf("entra credential is required")
	}
	token, err := e.Credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{azureauth.PostgresScope}})
	if err != nil {
		return "", fmt.Errorf("get entra token: %w", err)
	}
	return token.Token, nil
}

func (e *Entra) Describe() string {
	return fmt.Sprintf("%s (entra user=%s)", Mask(e.BaseDSN), e.User)
}

// FromConfig picks the provider for the configured auth mode.
func FromConfig(cfg config.DatabaseConfig) (Provider, error) {
	switch cfg.AuthMode {
	case "", config.DatabaseAuthPassword:
		return Static{DSN: cfg.DSN}, nil
	case config.DatabaseAuthEntra:
		cred, err := azureauth.NewCredential(cfg.EntraCredential)
		if err != nil {
			return nil, err
		}
		return &Entra{BaseDSN: cfg.DSN, User: cfg.EntraUser, Credential: cred}, nil
	default:
		return nil, fmt.Errorf("unsupported database auth mode %q", cfg.AuthMode)
	}
}

func parseDSN(dsn string) (*pgx.ConnConfig, error) {
	if isBlank(dsn) {
		return nil, ErrEmptyDSN
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn %s: %w", Mask(dsn), err)
	}
	return cfg, nil
}
