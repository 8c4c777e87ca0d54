package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/showtime-ledger/internal/gateway"
	"github.com/prohmpiriya/showtime-ledger/internal/service"
	"github.com/prohmpiriya/showtime-ledger/pkg/config"
	"github.com/prohmpiriya/showtime-ledger/pkg/database"
	"github.com/prohmpiriya/showtime-ledger/pkg/kafka"
	"github.com/prohmpiriya/showtime-ledger/pkg/logger"
	"github.com/prohmpiriya/showtime-ledger/pkg/rabbitmq"
	pkgredis "github.com/prohmpiriya/showtime-ledger/pkg/redis"
	"go.uber.org/zap"
)

// NewDatabase opens the Postgres pool described by cfg
func NewDatabase(ctx context.Context, cfg *config.Config, maxConns, minConns int32) (*database.PostgresDB, error) {
	return database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        maxConns,
		MinConns:        minConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
}

// NewRedis connects to Redis, returning nil when Redis is disabled
func NewRedis(ctx context.Context, cfg *config.Config) (*pkgredis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	return pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
	})
}

// NewGateway builds the configured payment gateway
func NewGateway(cfg *config.Config) (gateway.Gateway, error) {
	switch cfg.Gateway.Provider {
	case "stripe":
		gw, err := gateway.NewStripeGateway(&gateway.StripeGatewayConfig{
			SecretKey:     cfg.Gateway.StripeSecretKey,
			WebhookSecret: cfg.Gateway.WebhookSecret,
		})
		if err != nil {
			return nil, err
		}
		return gw, nil
	case "mock", "":
		return gateway.NewMockGateway(gateway.DefaultMockGatewayConfig()), nil
	default:
		return nil, fmt.Errorf("unknown gateway provider: %s", cfg.Gateway.Provider)
	}
}

// NewWebhookVerifier returns the gateway itself when it verifies its own
// webhooks, and a shared-secret HMAC verifier otherwise.
func NewWebhookVerifier(cfg *config.Config, gw gateway.Gateway) gateway.WebhookVerifier {
	if v, ok := gw.(gateway.WebhookVerifier); ok {
		return v
	}
	return gateway.NewHMACVerifier(cfg.Gateway.WebhookSecret, cfg.Gateway.SignatureHeader)
}

// NewNotifier builds the configured notification transport wrapped so that
// delivery never blocks a committed transition. A broker that cannot be
// reached degrades to the no-op notifier.
func NewNotifier(ctx context.Context, cfg *config.Config) *service.AsyncNotifier {
	log := logger.Get().Named("di")

	var next service.Notifier
	switch cfg.Notifier.Driver {
	case "kafka":
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID,
			MaxRetries:    3,
			RetryInterval: time.Second,
			LingerMs:      5,
			BatchMaxBytes: 1 << 20,
		})
		if err != nil {
			log.Warn("Kafka connection failed, using no-op notifier", zap.Error(err))
			break
		}
		n, err := service.NewKafkaNotifier(producer, cfg.Notifier.Topic, cfg.App.Name)
		if err != nil {
			producer.Close()
			log.Warn("Kafka notifier unavailable, using no-op notifier", zap.Error(err))
			break
		}
		log.Info("Kafka notifier connected", zap.String("topic", cfg.Notifier.Topic))
		next = n
	case "rabbitmq":
		publisher, err := rabbitmq.NewPublisher(rabbitmq.Config{
			URL:   cfg.RabbitMQ.URL,
			Queue: cfg.Notifier.Queue,
		})
		if err != nil {
			log.Warn("RabbitMQ connection failed, using no-op notifier", zap.Error(err))
			break
		}
		n, err := service.NewRabbitMQNotifier(publisher)
		if err != nil {
			_ = publisher.Close()
			log.Warn("RabbitMQ notifier unavailable, using no-op notifier", zap.Error(err))
			break
		}
		log.Info("RabbitMQ notifier connected", zap.String("queue", cfg.Notifier.Queue))
		next = n
	}

	if next == nil {
		next = service.NewNoOpNotifier()
	}
	return service.NewAsyncNotifier(next, 5*time.Second)
}
