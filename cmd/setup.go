package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/civicdocs/docsync"
	"github.com/civicdocs/docsync/config"
	"github.com/civicdocs/docsync/internal/assets"
	"github.com/civicdocs/docsync/internal/cache"
	"github.com/civicdocs/docsync/internal/kvstore"
	redlock "github.com/civicdocs/docsync/internal/lock"
	"github.com/civicdocs/docsync/internal/notification"
	redis_db "github.com/civicdocs/docsync/internal/redis-db"
	"github.com/civicdocs/docsync/internal/remote"
	"github.com/civicdocs/docsync/internal/traces"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/log/global"
)

// docsyncInstance holds what a command needs at runtime.
type docsyncInstance struct {
	cnf    *config.Configuration
	queue  *docsync.OfflineQueue
	remote *remote.Client

	closers  []func(context.Context) error
	flushers []interface{ Flush() }
}

func (app *docsyncInstance) setup(ctx context.Context, cnf *config.Configuration) error {
	app.cnf = cnf

	shutdown, err := traces.SetupOTelSDK(ctx, traces.Options{
		ServiceName: cnf.Tracing.ServiceName,
		Endpoint:    cnf.Tracing.Endpoint,
		StdoutLogs:  cnf.Tracing.StdoutLogs,
	})
	if err != nil {
		return fmt.Errorf("error setting up OTel SDK: %w", err)
	}
	app.closers = append(app.closers, shutdown)

	store, redisClient, err := app.newStore(ctx)
	if err != nil {
		return fmt.Errorf("error opening store: %w", err)
	}

	sessionCache := cache.NewLocalCache()
	if redisClient != nil {
		sessionCache = cache.NewRedisCache(redisClient)
	}
	client, err := remote.NewClient(remote.Config{
		BaseURL:     cnf.Remote.Url,
		APIKey:      cnf.Remote.ApiKey,
		AccessToken: cnf.Remote.AccessToken,
		Bucket:      cnf.Remote.Bucket,
		Table:       cnf.Remote.Table,
		UserID:      cnf.Remote.UserId,
		Timeout:     cnf.RemoteTimeout(),
	}, remote.WithSessionCache(sessionCache))
	if err != nil {
		return fmt.Errorf("error creating backend client: %w", err)
	}
	app.remote = client

	uploader, err := app.newUploader(ctx)
	if err != nil {
		return fmt.Errorf("error creating asset uploader: %w", err)
	}

	opts := []docsync.Option{docsync.WithStoreKey(cnf.Store.Key)}
	if cnf.Queue.RejectPermanentFailures {
		opts = append(opts, docsync.WithRejectPermanentFailures())
	}
	if cnf.Queue.PersistEachRemoval {
		opts = append(opts, docsync.WithPersistEachRemoval())
	}
	if redisClient != nil {
		// several devices may point at one Redis key
		lockKey := cnf.Store.RedisPrefix + cnf.Store.Key
		opts = append(opts,
			docsync.WithPassLocker(redlock.NewLocker(redisClient, lockKey+":lock", ""), cnf.PassLockTTL()),
			docsync.WithSharedStore(redlock.NewLocker(redisClient, lockKey+":write", ""), cnf.WriteLockTTL()),
		)
	}

	app.queue = docsync.NewOfflineQueue(store, client, uploader, app.newNotifier(), opts...)
	app.queue.Initialize(ctx)
	return nil
}

func (app *docsyncInstance) newStore(ctx context.Context) (kvstore.Store, redis.UniversalClient, error) {
	cfg := app.cnf.Store
	switch cfg.Driver {
	case "memory":
		logrus.Warn("memory store selected, the queue will not survive a restart")
		return kvstore.NewMemoryStore(), nil, nil
	case "file":
		store, err := kvstore.NewFileStore(cfg.Path)
		return store, nil, err
	case "sqlite":
		store, err := kvstore.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		app.closers = append(app.closers, func(context.Context) error { return store.Close() })
		return store, nil, nil
	case "redis":
		client, err := redis_db.NewRedisClient(ctx, []string{cfg.RedisDns}, cfg.RedisSkipTLSVerify)
		if err != nil {
			return nil, nil, err
		}
		app.closers = append(app.closers, func(context.Context) error { return client.Close() })
		return kvstore.NewRedisStore(client, cfg.RedisPrefix), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (app *docsyncInstance) newUploader(ctx context.Context) (docsync.AssetUploader, error) {
	cfg := app.cnf.Assets
	if cfg.Driver != "s3" {
		return app.remote, nil
	}
	return assets.NewS3Uploader(ctx, assets.S3Config{
		Bucket:          cfg.S3BucketName,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AwsAccessKeyId,
		SecretAccessKey: cfg.AwsSecretAccessKey,
		PublicBaseURL:   cfg.PublicBaseUrl,
		Owner:           app.cnf.Remote.UserId,
	})
}

func (app *docsyncInstance) newNotifier() notification.Notifier {
	notifiers := []notification.Notifier{notification.LogNotifier{}}
	httpClient := &http.Client{Timeout: app.cnf.RemoteTimeout()}

	if url := app.cnf.Notification.Slack.WebhookUrl; url != "" {
		slack := notification.NewSlackNotifier(url, httpClient)
		app.flushers = append(app.flushers, slack)
		notifiers = append(notifiers, slack)
	}
	if url := app.cnf.Notification.Webhook.Url; url != "" {
		webhook := notification.NewWebhookNotifier(url, app.cnf.Notification.Webhook.Headers, httpClient)
		app.flushers = append(app.flushers, webhook)
		notifiers = append(notifiers, webhook)
	}
	if app.cnf.Tracing.StdoutLogs {
		notifiers = append(notifiers, notification.NewOTelNotifier(global.GetLoggerProvider()))
	}
	return notification.Multi(notifiers...)
}

// close waits for background work, then releases resources in reverse order.
func (app *docsyncInstance) close(ctx context.Context) error {
	if app.queue != nil {
		app.queue.Wait()
	}
	for _, f := range app.flushers {
		f.Flush()
	}
	var err error
	for i := len(app.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, app.closers[i](context.WithoutCancel(ctx)))
	}
	app.closers = nil
	return err
}
