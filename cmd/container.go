// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis, SES) and composes
// the module services. This is the only place that knows about ALL modules.
package main

import (
	"context"
	"os"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/catalog/cataloginfra"
	"github.com/gridworks/gridcore/pkg/config"
	"github.com/gridworks/gridcore/pkg/iam/apikey"
	"github.com/gridworks/gridcore/pkg/iam/apikey/apikeyapi"
	"github.com/gridworks/gridcore/pkg/iam/apikey/apikeyinfra"
	"github.com/gridworks/gridcore/pkg/iam/apikey/apikeysrv"
	"github.com/gridworks/gridcore/pkg/iam/iamapi"
	"github.com/gridworks/gridcore/pkg/iam/iamsrv"
	"github.com/gridworks/gridcore/pkg/iam/org"
	"github.com/gridworks/gridcore/pkg/iam/org/orginfra"
	"github.com/gridworks/gridcore/pkg/iam/org/orgsrv"
	"github.com/gridworks/gridcore/pkg/iam/policy"
	"github.com/gridworks/gridcore/pkg/iam/policy/policyinfra"
	"github.com/gridworks/gridcore/pkg/iam/session"
	"github.com/gridworks/gridcore/pkg/iam/session/sessioninfra"
	"github.com/gridworks/gridcore/pkg/iam/user"
	"github.com/gridworks/gridcore/pkg/iam/user/userinfra"
	"github.com/gridworks/gridcore/pkg/logx"
	"github.com/gridworks/gridcore/pkg/notify"
	"github.com/gridworks/gridcore/pkg/notify/notifyconsole"
	"github.com/gridworks/gridcore/pkg/notify/notifyses"
	"github.com/gridworks/gridcore/pkg/pricing/pricingapi"
	"github.com/gridworks/gridcore/pkg/subscription"
	"github.com/gridworks/gridcore/pkg/subscription/reconcile"
	"github.com/gridworks/gridcore/pkg/subscription/subapi"
	"github.com/gridworks/gridcore/pkg/subscription/subinfra"
	"github.com/gridworks/gridcore/pkg/subscription/subsrv"
)

// Container holds shared infrastructure and composed module services.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB    *sqlx.DB
	Redis *redis.Client

	// Repositories
	OrgRepo     org.Repository
	UserRepo    user.Repository
	CatalogRepo catalog.Repository
	KeyRepo     apikey.Repository
	SubRepo     subscription.Repository

	// Services
	SignInService   *iamsrv.SignInService
	APIKeyService   *apikeysrv.APIKeyService
	Synchronizer    *subsrv.Synchronizer
	ReconcileWorker *reconcile.Worker
	SessionMW       *session.Middleware

	// HTTP handlers
	AuthHandlers    *iamapi.Handlers
	PricingHandlers *pricingapi.Handlers
	APIKeyHandlers  *apikeyapi.Handlers
	SubHandlers     *subapi.Handlers
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	memoryMode := getEnv("REPO_MODE", "postgres") == "memory"
	if memoryMode {
		logx.Info("  ⚠️ REPO_MODE=memory: using seeded in-memory fixtures")
		c.initMemoryInfrastructure()
	} else {
		c.initInfrastructure()
	}
	c.initModules(memoryMode)

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure — DB, Redis
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	db, err := sqlx.Connect("postgres", c.Config.Database.DSN())
	if err != nil {
		logx.Fatalf("Failed to connect to database: %v", err)
	}
	db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
	db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
	db.SetConnMaxLifetime(c.Config.Database.ConnMaxLifetime)
	c.DB = db
	logx.Info("  ✅ Database connected")

	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
		logx.Fatalf("Failed to connect to Redis: %v (Redis is required)", err)
	}
	logx.Info("  ✅ Redis connected")

	c.OrgRepo = orginfra.NewPostgresOrgRepository(c.DB)
	c.UserRepo = userinfra.NewPostgresUserRepository(c.DB)
	c.CatalogRepo = cataloginfra.NewPostgresCatalogRepository(c.DB)
	c.KeyRepo = apikeyinfra.NewPostgresKeyRepository(c.DB)
	c.SubRepo = subinfra.NewPostgresSubscriptionRepository(c.DB)

	logx.Info("✅ Infrastructure initialized")
}

func (c *Container) initMemoryInfrastructure() {
	c.OrgRepo = orginfra.NewSeededOrgRepository()
	c.UserRepo = userinfra.NewSeededUserRepository()
	c.CatalogRepo = cataloginfra.NewSeededCatalogRepository()
	c.KeyRepo = apikeyinfra.NewMemoryKeyRepository()
	c.SubRepo = subinfra.NewMemorySubscriptionRepository()
}

// ---------------------------------------------------------------------------
// Module composition — each bounded context wires itself
// ---------------------------------------------------------------------------

func (c *Container) initModules(memoryMode bool) {
	logx.Info("📦 Initializing modules...")

	// IAM: policy, sessions, sign-in
	var audit policy.AuditService
	if memoryMode {
		audit = policyinfra.NewLogxAuditService()
	} else {
		audit = policyinfra.NewPostgresAuditService(c.DB)
	}
	enforcer := policy.NewEnforcer(audit)

	var revoked session.RevocationList
	if memoryMode {
		revoked = sessioninfra.NewLRURevocationList(65536, c.Config.Auth.SessionTTL)
	} else {
		revoked = sessioninfra.NewRedisRevocationList(c.Redis)
	}
	sessions := session.NewJWTService(
		c.Config.Auth.JWTSecret,
		c.Config.Auth.SessionTTL,
		c.Config.Auth.Issuer,
		revoked,
	)
	c.SessionMW = session.NewMiddleware(sessions)

	resolver := orgsrv.NewResolver(c.OrgRepo)
	c.SignInService = iamsrv.NewSignInService(resolver, c.UserRepo, enforcer, sessions, c.SubRepo)
	logx.Info("  ✅ IAM module ready")

	// Notifications
	notifier := c.buildNotifier(memoryMode)

	// API keys
	var usage apikey.UsageStore
	var cache apikey.MetadataCache
	if memoryMode {
		usage = apikeyinfra.NewMemoryUsageStore()
	} else {
		usage = apikeyinfra.NewRedisUsageStore(c.Redis)
		cache = apikeyinfra.NewRedisMetadataCache(c.Redis, c.Config.Quota.CacheTTL)
	}
	c.APIKeyService = apikeysrv.NewAPIKeyService(
		c.KeyRepo, usage, cache, c.OrgRepo, c.CatalogRepo, notifier, c.Config.Quota,
	)
	logx.Info("  ✅ API key module ready")

	// Subscriptions
	var provider subscription.Provider
	if memoryMode {
		provider = subinfra.NewFakeProvider()
	} else {
		provider = subinfra.NewHTTPProvider(c.Config.Billing)
	}

	var events subscription.ProcessedEventStore
	if memoryMode {
		events = subinfra.NewMemoryEventStore()
	} else {
		events = subinfra.NewPostgresEventStore(c.DB)
	}

	c.Synchronizer = subsrv.NewSynchronizer(
		c.SubRepo, provider, c.CatalogRepo, c.OrgRepo, events, notifier, c.Config.Billing,
	)

	var queue reconcile.Queue
	if memoryMode {
		queue = reconcile.NewMemoryQueue()
	} else {
		queue = reconcile.NewRedisQueue(c.Redis)
	}
	c.ReconcileWorker = reconcile.NewWorker(queue, c.Synchronizer)
	c.Synchronizer.SetResyncQueue(c.ReconcileWorker)
	logx.Info("  ✅ Subscription module ready")

	// HTTP handlers
	c.AuthHandlers = iamapi.NewHandlers(c.SignInService)
	c.PricingHandlers = pricingapi.NewHandlers(c.CatalogRepo)
	c.APIKeyHandlers = apikeyapi.NewHandlers(c.APIKeyService)
	c.SubHandlers = subapi.NewHandlers(c.Synchronizer)
}

func (c *Container) buildNotifier(memoryMode bool) notify.Notifier {
	resolver := func(ctx context.Context, alert notify.Alert) ([]string, error) {
		users, err := c.UserRepo.FindByOrg(ctx, alert.OrgID)
		if err != nil {
			return nil, err
		}
		var to []string
		for _, u := range users {
			if u.Role == user.RoleAdmin && u.Active {
				to = append(to, u.Email)
			}
		}
		return to, nil
	}

	var sender notify.EmailSender
	if memoryMode || c.Config.Notify.Provider == "console" {
		sender = notifyconsole.NewConsoleSender()
	} else {
		awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(),
			awsConfig.WithRegion(c.Config.Notify.AWSRegion))
		if err != nil {
			logx.Fatalf("Unable to load AWS SDK config: %v", err)
		}
		sender = notifyses.NewSESSender(ses.NewFromConfig(awsCfg), c.Config.Notify.FromAddress)
	}

	notifier, err := notify.NewEmailNotifier(sender, c.Config.Notify.FromAddress, resolver)
	if err != nil {
		logx.Fatalf("Failed to build notifier: %v", err)
	}
	return notifier
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) StartBackgroundServices(ctx context.Context) {
	logx.Info("🔄 Starting background services...")
	go func() {
		if err := c.ReconcileWorker.Start(ctx); err != nil {
			logx.WithError(err).Error("Reconcile worker stopped")
		}
	}()
}

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
