package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/VaibhavPrasad23/PayRs/internal/audit"
	"github.com/VaibhavPrasad23/PayRs/internal/bucketing"
	"github.com/VaibhavPrasad23/PayRs/internal/client"
	"github.com/VaibhavPrasad23/PayRs/internal/config"
	"github.com/VaibhavPrasad23/PayRs/internal/hashing"
	"github.com/VaibhavPrasad23/PayRs/internal/middleware"
	"github.com/VaibhavPrasad23/PayRs/internal/queue"
	"github.com/VaibhavPrasad23/PayRs/internal/repository/redis"
	"github.com/VaibhavPrasad23/PayRs/internal/repository/scylla"
	"github.com/VaibhavPrasad23/PayRs/internal/service"
	"github.com/VaibhavPrasad23/PayRs/internal/tls"
	"github.com/VaibhavPrasad23/PayRs/internal/token"
	"github.com/VaibhavPrasad23/PayRs/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher           *hashing.Hasher
	bucketingManager *bucketing.BucketingManager

	// Codecs
	otpCodec     *token.OTPCodec
	sessionCodec *token.SessionCodec

	// Repositories and caches
	accountRepository scylla.AccountRepository
	contactRepository scylla.ContactRepository
	userCache         *redis.UserCache
	tokenCache        *redis.TokenCache
	rateLimitCache    *redis.RateLimitCache

	// Messaging and audit
	otpDispatcher *queue.OTPDispatcher
	eventRecorder *audit.Recorder

	// HTTP plumbing
	guard       *middleware.Guard
	rateLimiter *middleware.RateLimiter

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		tlsConfig := &tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		}
		factory.tlsManager = tls.NewTLSManager(tlsConfig)
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// ClickHouse
	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, bucketing and the token codecs
func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewBucketingManager(f.config)

	f.otpCodec = token.NewOTPCodec(
		f.config.Auth.JWTSecret,
		f.hasher,
		f.config.Auth.OTPDigits,
		f.config.Auth.OTPTTL,
	)
	f.sessionCodec = token.NewSessionCodec(
		f.config.Auth.JWTSecret,
		f.config.Auth.LoginValidity,
		f.config.Auth.RefreshThreshold,
	)

	util.Info("Managers initialized successfully",
		util.Bool("hashing_initialized", f.hasher != nil),
		util.Bool("bucketing_initialized", f.bucketingManager != nil),
	)
}

// ==============================
// Repositories and caches
// ==============================

func (f *Factory) AccountRepository() scylla.AccountRepository {
	if f.accountRepository == nil {
		f.accountRepository = scylla.NewAccountRepository(f.ScyllaClient(), f.BucketingManager())
	}
	return f.accountRepository
}

func (f *Factory) ContactRepository() scylla.ContactRepository {
	if f.contactRepository == nil {
		f.contactRepository = scylla.NewContactRepository(f.ScyllaClient())
	}
	return f.contactRepository
}

func (f *Factory) UserCache() *redis.UserCache {
	if f.userCache == nil {
		f.userCache = redis.NewUserCache(f.redisClient)
	}
	return f.userCache
}

func (f *Factory) TokenCache() *redis.TokenCache {
	if f.tokenCache == nil {
		f.tokenCache = redis.NewTokenCache(f.redisClient)
	}
	return f.tokenCache
}

func (f *Factory) RateLimitCache() *redis.RateLimitCache {
	if f.rateLimitCache == nil {
		f.rateLimitCache = redis.NewRateLimitCache(f.redisClient)
	}
	return f.rateLimitCache
}

func (f *Factory) OTPDispatcher() *queue.OTPDispatcher {
	if f.otpDispatcher == nil {
		f.otpDispatcher = queue.NewOTPDispatcher(f.kafkaProducer, f.config)
	}
	return f.otpDispatcher
}

func (f *Factory) EventRecorder() *audit.Recorder {
	if f.eventRecorder == nil {
		f.eventRecorder = audit.NewRecorder(f.clickhouseClient)
	}
	return f.eventRecorder
}

// ==============================
// HTTP plumbing
// ==============================

func (f *Factory) Guard() *middleware.Guard {
	if f.guard == nil {
		loader := &middleware.CachedAccountLoader{
			Cache:    f.UserCache(),
			Accounts: f.AccountRepository(),
		}
		f.guard = middleware.NewGuard(f.sessionCodec, loader)
	}
	return f.guard
}

func (f *Factory) RateLimiter() *middleware.RateLimiter {
	if f.rateLimiter == nil {
		f.rateLimiter = middleware.NewRateLimiter(f.RateLimitCache())
	}
	return f.rateLimiter
}

// ==============================
// Service Factory
// ==============================

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.AccountRepository(),
			f.ContactRepository(),
			f.Hasher(),
			f.OTPCodec(),
			f.SessionCodec(),
			f.UserCache(),
			f.TokenCache(),
			f.OTPDispatcher(),
			f.EventRecorder(),
			f.config,
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	} else {
		healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	if f.hasher == nil {
		healthErrors["hasher"] = fmt.Errorf("hasher not initialized")
	}
	if f.bucketingManager == nil {
		healthErrors["bucketing"] = fmt.Errorf("bucketing manager not initialized")
	}

	return healthErrors
}

// ==============================
// Other Utility Methods
// ==============================

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.eventRecorder != nil {
			f.eventRecorder.Close()
			util.Info("Event recorder flushed and closed")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) ScyllaClient() *scylla.ScyllaClient {
	return f.scyllaClient
}

func (f *Factory) Hasher() *hashing.Hasher {
	return f.hasher
}

func (f *Factory) BucketingManager() *bucketing.BucketingManager {
	return f.bucketingManager
}

func (f *Factory) OTPCodec() *token.OTPCodec {
	return f.otpCodec
}

func (f *Factory) SessionCodec() *token.SessionCodec {
	return f.sessionCodec
}
