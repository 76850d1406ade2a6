package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	// Packages
	pg "github.com/mutablelogic/go-pg"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	httprouter "github.com/mutablelogic/go-server/pkg/httprouter"
	httpserver "github.com/mutablelogic/go-server/pkg/httpserver"
	backend "github.com/mutablelogic/go-upload/pkg/backend"
	catalog "github.com/mutablelogic/go-upload/pkg/catalog"
	httphandler "github.com/mutablelogic/go-upload/pkg/httphandler"
	manager "github.com/mutablelogic/go-upload/pkg/manager"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
	session "github.com/mutablelogic/go-upload/pkg/session"
	version "github.com/mutablelogic/go-upload/pkg/version"
	zerolog "github.com/rs/zerolog"
	hlog "github.com/rs/zerolog/hlog"
	otel "go.opentelemetry.io/otel"
	errgroup "golang.org/x/sync/errgroup"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type ServerCommands struct {
	Server RunServerCommand `cmd:"" name:"server" help:"Run HTTP server." group:"SERVER"`
}

type RunServerCommand struct {
	Storage          string        `name:"storage" env:"UPLOAD_STORAGE" default:"mem://uploads" help:"Storage URL (mem://bucket, file://bucket/path, s3://bucket)"`
	Endpoint         string        `name:"s3-endpoint" env:"S3_ENDPOINT" help:"S3 compatible endpoint URL"`
	Region           string        `name:"s3-region" env:"AWS_REGION" help:"S3 region"`
	AccessKey        string        `name:"s3-access-key" env:"AWS_ACCESS_KEY_ID" help:"S3 access key"`
	SecretKey        string        `name:"s3-secret-key" env:"AWS_SECRET_ACCESS_KEY" help:"S3 secret key"`
	PublicURL        string        `name:"public-url" env:"UPLOAD_PUBLIC_URL" help:"Base URL merged objects are served from"`
	KeyPrefix        string        `name:"key-prefix" env:"UPLOAD_KEY_PREFIX" default:"uploads" help:"Storage key prefix for new uploads"`
	Hash             string        `name:"hash" env:"UPLOAD_HASH" default:"md5" enum:"md5,sha256,blake3" help:"Content hash for dedup (md5, sha256, blake3)"`
	MaxPartSize      int64         `name:"max-part-size" env:"UPLOAD_MAX_PART_SIZE" default:"104857600" help:"Largest accepted part, in bytes"`
	StorageTimeout   time.Duration `name:"storage-timeout" env:"UPLOAD_STORAGE_TIMEOUT" default:"30s" help:"Timeout for each storage call"`
	MergeTimeout     time.Duration `name:"merge-timeout" env:"UPLOAD_MERGE_TIMEOUT" default:"10m" help:"Timeout for a background merge"`
	MergeConcurrency int           `name:"merge-concurrency" env:"UPLOAD_MERGE_CONCURRENCY" default:"4" help:"Merges which run at once"`
	SessionTTL       time.Duration `name:"session-ttl" env:"UPLOAD_SESSION_TTL" default:"24h" help:"Idle time before an upload session expires"`
	Redis            string        `name:"redis" env:"REDIS_URL" help:"Redis URL for upload sessions (in-memory when empty)"`
	Postgres         string        `name:"postgres" env:"PG_URL" help:"PostgreSQL URL for content records (in-memory when empty)"`
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *RunServerCommand) Run(ctx *Globals) error {
	if err := cmd.validate(); err != nil {
		return err
	}
	opts, cleanup, err := cmd.managerOpts(ctx)
	defer cleanup()
	if err != nil {
		return err
	}

	// Create manager
	mgr, err := manager.New(ctx.ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	defer mgr.Close()

	return serve(ctx, mgr)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// validate rejects flag combinations the manager cannot honour. A session
// must outlive its merge, or it could expire while still processing.
func (cmd *RunServerCommand) validate() error {
	if cmd.SessionTTL < cmd.MergeTimeout {
		return httpresponse.ErrBadRequest.Withf("--session-ttl (%v) is shorter than --merge-timeout (%v)", cmd.SessionTTL, cmd.MergeTimeout)
	}
	return nil
}

// managerOpts returns the manager options for the flags. The cleanup
// function closes any database pool which was opened.
func (cmd *RunServerCommand) managerOpts(ctx *Globals) ([]manager.Opt, func(), error) {
	cleanup := func() {}
	tracer := otel.Tracer(schema.SchemaName)

	// Storage
	backendOpts := []backend.Opt{backend.WithTracer(tracer)}
	if cmd.Endpoint != "" {
		backendOpts = append(backendOpts, backend.WithEndpoint(cmd.Endpoint))
	}
	if cmd.Region != "" {
		backendOpts = append(backendOpts, backend.WithRegion(cmd.Region))
	}
	if cmd.AccessKey != "" || cmd.SecretKey != "" {
		backendOpts = append(backendOpts, backend.WithCredentials(cmd.AccessKey, cmd.SecretKey))
	}
	if cmd.PublicURL != "" {
		backendOpts = append(backendOpts, backend.WithPublicURL(cmd.PublicURL))
	}

	opts := []manager.Opt{
		manager.WithBackend(ctx.ctx, cmd.Storage, backendOpts...),
		manager.WithLogger(ctx.logger),
		manager.WithTracer(tracer),
		manager.WithMeter(otel.Meter(schema.SchemaName)),
		manager.WithHash(cmd.Hash),
		manager.WithKeyPrefix(cmd.KeyPrefix),
		manager.WithMaxPartSize(cmd.MaxPartSize),
		manager.WithStorageTimeout(cmd.StorageTimeout),
		manager.WithMergeTimeout(cmd.MergeTimeout),
		manager.WithMergeConcurrency(cmd.MergeConcurrency),
		manager.WithSessionTTL(cmd.SessionTTL),
	}

	// Sessions
	if cmd.Redis != "" {
		store, err := session.NewRedis(ctx.ctx, cmd.Redis, cmd.SessionTTL)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect to redis: %w", err)
		}
		opts = append(opts, manager.WithSessionStore(store))
	}

	// Content records
	if cmd.Postgres != "" {
		pool, err := pg.NewPool(ctx.ctx, pg.WithURL(cmd.Postgres))
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		cleanup = func() { pool.Close() }
		store, err := catalog.NewPG(ctx.ctx, pool)
		if err != nil {
			return nil, cleanup, err
		}
		opts = append(opts, manager.WithContentStore(store))
	}

	// Return success
	return opts, cleanup, nil
}

// serve registers HTTP handlers and runs the server and the session
// expiry loop until the context is done.
func serve(ctx *Globals, mgr *manager.Manager) error {
	// Create the router
	router, err := httprouter.NewRouter(ctx.ctx, ctx.HTTP.Prefix, ctx.HTTP.Origin, "upload", version.Version())
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	// Register upload HTTP handlers
	if err := httphandler.RegisterHandlers(mgr, router); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}

	// Create the HTTP server, with access logging
	srv, err := httpserver.New(ctx.HTTP.Addr, accessLog(ctx.logger, router), nil)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx.logger.Info().Str("version", version.Version()).Str("addr", ctx.HTTP.Addr).Str("bucket", mgr.Storage().Bucket()).Msg("upload server started")
	g, gctx := errgroup.WithContext(ctx.ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		return mgr.Run(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	ctx.logger.Info().Msg("upload server stopped")
	return nil
}

// accessLog wraps a handler with request ids and one log line per request
func accessLog(logger zerolog.Logger, next http.Handler) http.Handler {
	h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(next)
	h = hlog.RemoteAddrHandler("remote")(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	return hlog.NewHandler(logger)(h)
}
