package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gocql/gocql"

	"freightdesk/internal/app/changefeed"
	"freightdesk/internal/app/chatsvc"
	appoutbox "freightdesk/internal/app/outbox"
	"freightdesk/internal/domain/chat"
	"freightdesk/internal/infra/broker/kafka"
	"freightdesk/internal/infra/cache/redis"
	"freightdesk/internal/infra/config"
	"freightdesk/internal/infra/db/mongo"
	ginserver "freightdesk/internal/infra/http/gin"
	"freightdesk/internal/infra/inbox"
	"freightdesk/internal/infra/obs"
	"freightdesk/internal/infra/outbox"
	"freightdesk/internal/infra/realtime"
	"freightdesk/internal/infra/storage/memory"
	"freightdesk/internal/infra/storage/s3"
	"freightdesk/internal/infra/storage/scylla"
)

type outboxStore interface {
	appoutbox.Outbox
	outbox.Queue
}

type application struct {
	handlers ginserver.Handlers
	checks   map[string]obs.Check
	hub      *realtime.Hub
	worker   *outbox.Worker
	consumer *kafka.Consumer
	topics   []string
	closers  []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApplication selects a backend per concern: every unset service falls
// back to its in-memory variant.
func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{checks: map[string]obs.Check{}}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	var store chatsvc.Store = memory.NewChatStore()
	if cfg.UseScylla() {
		session, err := scylla.NewSession(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("scylla: %w", err)
		}
		app.closers = append(app.closers, session.Close)
		s := scylla.NewStore(session, logger)
		app.checks["scylla"] = s.Ping
		store = s
	} else {
		logger.Warn("SCYLLA_HOSTS not set, conversations are kept in memory")
	}

	var (
		box       outboxStore       = memory.NewOutbox()
		dedup     changefeed.Inbox  = memory.NewInbox()
		directory chatsvc.Directory = memory.NewDirectory()
	)
	if cfg.UseMongo() {
		client, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		app.closers = append(app.closers, func() { _ = client.Close(context.Background()) })
		app.checks["mongo"] = client.Ping

		ob, err := outbox.NewStore(ctx, client.DB)
		if err != nil {
			return nil, fmt.Errorf("outbox store: %w", err)
		}
		box = ob
		in, err := inbox.NewStore(ctx, client.DB, cfg.KafkaGroupID)
		if err != nil {
			return nil, fmt.Errorf("inbox store: %w", err)
		}
		dedup = in
		directory = mongo.NewUserDirectory(client.DB)
	}
	if cfg.UseRedis() {
		rc, err := redis.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		app.closers = append(app.closers, func() { _ = rc.Close() })
		app.checks["redis"] = rc.Ping
		directory = &redis.CachedDirectory{Cache: rc, Source: directory, TTL: cfg.UserCacheTTL, Logger: logger}
	}

	var uploader chatsvc.Uploader
	if cfg.UseS3() {
		s3c, err := s3.NewClient(s3.Config{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Bucket:         cfg.S3Bucket,
			UseSSL:         cfg.S3UseSSL,
		}, logger)
		if err != nil {
			return nil, err
		}
		app.checks["s3"] = s3c.Ping
		uploader = s3c
	} else {
		logger.Warn("S3_ENDPOINT not set, attachments are disabled")
	}

	app.hub = realtime.NewHub(logger, originChecker(cfg.AllowedOrigins))
	dispatcher := &changefeed.Dispatcher{Sink: app.hub, Inbox: dedup, Logger: logger}

	var producer outbox.Producer = changefeed.LocalProducer{Dispatcher: dispatcher}
	if cfg.UseKafka() {
		p, err := kafka.NewProducer(cfg.KafkaBrokers, "chatd")
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.closers = append(app.closers, func() { _ = p.Close() })
		producer = p

		c, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, kafka.ChangeFeedHandler{Next: dispatcher}, logger)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		app.closers = append(app.closers, func() { _ = c.Close() })
		app.consumer = c
		app.topics = []string{outbox.TopicFor(cfg.KafkaTopicPrefix, chat.MessagePosted{}.EventName())}
	} else {
		logger.Warn("KAFKA_BROKERS not set, change feed is delivered in-process")
	}

	app.worker = &outbox.Worker{
		Store:       box,
		Producer:    producer,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger,
	}

	svc := &chatsvc.Service{
		Store:     store,
		Outbox:    box,
		Encoder:   appoutbox.JSONEventEncoder{},
		Uploader:  uploader,
		Directory: directory,
		Logger:    logger,
	}
	app.handlers = ginserver.Handlers{
		Chat:     ginserver.ChatHandler{Service: svc, Logger: logger},
		Users:    ginserver.UsersHandler{Service: svc, Logger: logger},
		Realtime: ginserver.RealtimeHandler{Service: svc, Hub: app.hub, Logger: logger},
	}
	logger.Info("chatd configured",
		"scylla", cfg.UseScylla(),
		"mongo", cfg.UseMongo(),
		"redis", cfg.UseRedis(),
		"kafka", cfg.UseKafka(),
		"s3", cfg.UseS3(),
		"consistency", consistencyName(cfg.ScyllaConsistency),
	)
	return app, nil
}

// originChecker mirrors the CORS allow list for websocket upgrades.
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

func consistencyName(c gocql.Consistency) string {
	return strings.ToLower(c.String())
}
