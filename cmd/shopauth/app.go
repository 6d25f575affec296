package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/internal/audit"
	"github.com/MrEthical07/shopauth/internal/db"
	"github.com/MrEthical07/shopauth/mail"
	"github.com/MrEthical07/shopauth/store/memory"
	"github.com/MrEthical07/shopauth/store/postgres"
)

// app owns the long-lived collaborators of one process.
type app struct {
	engine *shopauth.Engine
	store  shopauth.Store
	redis  redis.UniversalClient
	sqlDB  *sqlx.DB
	amqp   *audit.AMQPSink
}

func newApp(ctx context.Context, cfg shopauth.Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on exit")
		a.store = memory.New()
	case "postgres":
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.sqlDB = conn
		a.store = postgres.New(conn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		_ = a.close(context.Background())
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	sink, err := a.auditSink(cfg, logger)
	if err != nil {
		_ = a.close(context.Background())
		return nil, err
	}

	a.engine, err = shopauth.New().
		WithConfig(cfg).
		WithStore(a.store).
		WithRedis(a.redis).
		WithMailer(mail.NewSender(cfg.Mail, logger)).
		WithLogger(logger).
		WithAuditSink(sink).
		Build()
	if err != nil {
		_ = a.close(context.Background())
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return a, nil
}

func (a *app) auditSink(cfg shopauth.Config, logger *zap.Logger) (shopauth.AuditSink, error) {
	switch cfg.Audit.Sink {
	case "json":
		return shopauth.NewJSONAuditSink(os.Stdout), nil
	case "amqp":
		s, err := shopauth.DialAMQPAuditSink(cfg.Audit.AMQPURL, cfg.Audit.AMQPQueue, logger)
		if err != nil {
			return nil, fmt.Errorf("audit amqp: %w", err)
		}
		a.amqp = s
		return shopauth.MultiAuditSink(s, shopauth.NewLogAuditSink(logger)), nil
	default:
		return shopauth.NewLogAuditSink(logger), nil
	}
}

// close releases everything in reverse order of creation. ctx bounds the
// audit flush.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.engine != nil {
		if err := a.engine.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("audit flush: %w (%d events dropped)", err, a.engine.AuditDropped()))
		}
	}
	if a.amqp != nil {
		errs = append(errs, a.amqp.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.sqlDB != nil {
		errs = append(errs, a.sqlDB.Close())
	}
	return errors.Join(errs...)
}
