// Package app wires configuration into a running set of services. Both the
// server and the admin CLI build on it.
package app

import (
	"context"
	"fmt"

	"securefiles/server/internal/accounts"
	"securefiles/server/internal/blob"
	"securefiles/server/internal/config"
	"securefiles/server/internal/delivery"
	"securefiles/server/internal/files"
	"securefiles/server/internal/httpapi"
	"securefiles/server/internal/logging"
	"securefiles/server/internal/session"
	"securefiles/server/internal/store"
	"securefiles/server/internal/store/memory"
	"securefiles/server/internal/store/mongo"
	"securefiles/server/internal/store/postgres"
	"securefiles/server/internal/store/sqlite"
	"securefiles/server/internal/token"
)

type App struct {
	Config    config.Config
	Log       logging.Logger
	Store     store.Store
	Logins    *token.LoginEngine
	Downloads *token.DownloadEngine
	Signer    *session.Signer
	Binder    *session.Binder
	Accounts  *accounts.Service
	Files     *files.Service
	Sender    delivery.Sender
	Mailer    *delivery.Deliverer

	closers []func()
}

// OpenStore connects the backend named by cfg.StoreDriver. The returned
// func releases it.
func OpenStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory", "":
		return memory.NewStore(), func() {}, nil
	case "postgres":
		pg, err := postgres.NewStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return pg, pg.Close, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "mongo":
		m, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("init mongo store: %w", err)
		}
		return m, func() { _ = m.Close(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.StoreDriver)
	}
}

func OpenBlobStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	if cfg.BlobDriver == "s3" {
		return blob.NewS3Store(ctx, blob.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			User:     cfg.S3User,
			Password: cfg.S3Password,
		})
	}
	return blob.NewLocalStore(cfg.BlobDir)
}

// NewSender returns SMTP delivery when a host is configured and the log
// sender otherwise.
func NewSender(cfg config.Config, log logging.Logger) delivery.Sender {
	if cfg.SMTPHost == "" {
		log.Warn(context.Background(), "SMTP not configured, emails are only logged")
		return delivery.NewLogSender(log)
	}
	return delivery.NewSMTPSender(SMTPConfig(cfg))
}

func SMTPConfig(cfg config.Config) delivery.SMTPConfig {
	return delivery.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		StartTLS: cfg.SMTPStartTLS,
	}
}

// New builds every service from cfg. Call Close when done.
func New(ctx context.Context, cfg config.Config, log logging.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, closeStore, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, Store: st, closers: []func(){closeStore}}

	blobs, err := OpenBlobStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}

	a.Signer, err = session.NewSigner(cfg.SecretKey, cfg.SessionTTL)
	if err != nil {
		a.Close()
		return nil, err
	}

	policy := delivery.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.DeliveryMaxAttempts
	policy.Backoff = cfg.DeliveryBackoff
	a.Sender = NewSender(cfg, log)
	a.Mailer = delivery.NewDeliverer(a.Sender, policy, log)

	a.Logins = token.NewLoginEngine(st, log, token.WithTTL(cfg.LoginTokenTTL))
	a.Downloads = token.NewDownloadEngine(st)
	a.Binder = session.NewBinder(st, a.Logins, a.Mailer, a.Signer, cfg.BaseURL, log)
	a.Accounts = accounts.NewService(st, a.Signer, a.Mailer, cfg.BaseURL, log)
	a.Files = files.NewService(st, a.Downloads, blobs, cfg.BaseURL, log)
	return a, nil
}

func (a *App) HTTPServer() *httpapi.Server {
	return httpapi.NewServer(httpapi.Deps{
		Config:   a.Config,
		Users:    a.Store,
		Binder:   a.Binder,
		Signer:   a.Signer,
		Accounts: a.Accounts,
		Files:    a.Files,
		Log:      a.Log,
	})
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
