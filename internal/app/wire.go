package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/floorbot/internal/blob/s3"
	"github.com/alanyoungcy/floorbot/internal/cache/redis"
	"github.com/alanyoungcy/floorbot/internal/config"
	"github.com/alanyoungcy/floorbot/internal/crypto"
	"github.com/alanyoungcy/floorbot/internal/domain"
	"github.com/alanyoungcy/floorbot/internal/executor"
	"github.com/alanyoungcy/floorbot/internal/matcher"
	"github.com/alanyoungcy/floorbot/internal/notify"
	"github.com/alanyoungcy/floorbot/internal/platform/coingecko"
	"github.com/alanyoungcy/floorbot/internal/platform/magiceden"
	"github.com/alanyoungcy/floorbot/internal/service"
	"github.com/alanyoungcy/floorbot/internal/store/postgres"
	"github.com/alanyoungcy/floorbot/internal/wallet"
)

// Dependencies bundles every dependency that the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	WatchStore domain.WatchStore
	AuditStore domain.AuditStore

	// Settled query view for the archiver (backed by the same watch store).
	SettledSource s3blob.SettledSource

	// Caches and coordination
	ListingCache domain.ListingCache
	RateCache    domain.RateCache
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	EventBus     domain.EventBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Platform clients
	Marketplace *magiceden.Client
	Oracle      *coingecko.Client

	// Execution
	Wallets  map[domain.ChainID]domain.Wallet
	Executor *executor.Executor
	Matcher  *matcher.Matcher

	// Services
	WatchService *service.WatchService
	TradeService *service.TradeService

	// Notifications
	Notifier *notify.Notifier
}

// needsWallet returns true for modes that execute on-chain transactions.
func needsWallet(mode string) bool {
	switch mode {
	case "watch", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	watchStore := postgres.NewWatchStore(pool)
	deps.WatchStore = watchStore
	deps.SettledSource = watchStore
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	limiter := redis.NewRateLimiter(redisClient)
	deps.ListingCache = redis.NewListingCache(redisClient)
	deps.RateCache = redis.NewRateCache(redisClient)
	deps.RateLimiter = limiter
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient)

	// --- S3 blob storage (only when archiving is enabled) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.SettledSource, deps.AuditStore)
	}

	// --- Platform clients ---
	marketChain := domain.ChainID(cfg.Marketplace.Chain)
	deps.Marketplace = magiceden.NewClient(
		cfg.Marketplace.BaseURL,
		cfg.Marketplace.ApiKey,
		marketChain,
		limiter,
	)
	deps.Oracle = coingecko.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.ApiKey)

	// --- Wallets and executor ---
	deps.Wallets = map[domain.ChainID]domain.Wallet{}
	if needsWallet(cfg.Mode) {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}

		rpcURLs := map[domain.ChainID]string{
			domain.ChainArbitrum: cfg.Chains.ArbitrumRPCURL,
			domain.ChainApechain: cfg.Chains.ApechainRPCURL,
		}
		for chain, rpcURL := range rpcURLs {
			if rpcURL == "" {
				continue
			}
			w, err := wallet.NewLocal(ctx, keyHex, rpcURL, logger)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: wallet %s: %w", chain, err)
			}
			closers = append(closers, w.Close)
			deps.Wallets[chain] = w
		}
	}
	deps.Executor = executor.New(deps.Wallets, logger)

	if w, ok := deps.Wallets[marketChain]; ok {
		deps.Matcher = matcher.New(deps.Marketplace, w.Address(), logger)
	}

	// --- Services ---
	deps.WatchService = service.NewWatchService(deps.WatchStore, deps.AuditStore, deps.Marketplace, logger)
	deps.TradeService = service.NewTradeService(
		deps.Marketplace,
		deps.Oracle,
		deps.Executor,
		deps.Wallets,
		deps.ListingCache,
		deps.RateCache,
		logger,
	)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	var owner notify.OwnerSender
	if cfg.Notify.SMTPHost != "" {
		owner = notify.NewEmailSender(
			cfg.Notify.SMTPHost,
			cfg.Notify.SMTPPort,
			cfg.Notify.SMTPFrom,
			cfg.Notify.SMTPUsername,
			cfg.Notify.SMTPPassword,
		)
	}
	deps.Notifier = notify.NewNotifier(senders, owner, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// marketplaceChain returns the chain the marketplace client settles on.
func marketplaceChain(cfg *config.Config) domain.ChainID {
	return domain.ChainID(cfg.Marketplace.Chain)
}

// configuredChains lists the chains with an RPC endpoint configured.
func configuredChains(cfg *config.Config) []string {
	var chains []string
	if cfg.Chains.ArbitrumRPCURL != "" {
		chains = append(chains, string(domain.ChainArbitrum))
	}
	if cfg.Chains.ApechainRPCURL != "" {
		chains = append(chains, string(domain.ChainApechain))
	}
	return chains
}
