// Package bootstrap 按配置组装各个服务, settlement-server 与 settlement-cli 共用
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"settlement-core/internal/model"
	"settlement-core/internal/service/allocation"
	"settlement-core/internal/service/approval"
	"settlement-core/internal/service/chain"
	"settlement-core/internal/service/directory"
	"settlement-core/internal/service/game"
	"settlement-core/internal/service/mq"
	"settlement-core/internal/service/settlement"
	"settlement-core/internal/service/transfer"
	"settlement-core/pkg/cache"
	"settlement-core/pkg/config"
	"settlement-core/pkg/database"
	"settlement-core/pkg/keystore"
	"settlement-core/pkg/logger"
)

// Infra 外部连接
type Infra struct {
	DB    *gorm.DB
	Redis *redis.Client
	Eth   *ethclient.Client
}

// Connect 连接数据库、Redis 与链 RPC
func Connect(cfg config.Config) (*Infra, error) {
	db, err := database.ConnectPostgres(cfg.DB.DSN(), cfg.App.Env == "development")
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	rdb, err := database.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	eth, err := ethclient.Dial(cfg.Chain.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}

	// 开发环境自动建表, 生产环境使用 migrate 工具
	if cfg.App.Env == "development" {
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		logger.Info("database auto-migrated (development)")
	}

	return &Infra{DB: db, Redis: rdb, Eth: eth}, nil
}

func (i *Infra) Close() {
	if sqlDB, err := i.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = i.Redis.Close()
	i.Eth.Close()
}

// Communities 每个社区的奖励代币与质押排序
func Communities(cfg config.Config) (map[string]settlement.Community, map[string]directory.StakeOrdering) {
	communities := make(map[string]settlement.Community, len(cfg.Communities)+1)
	orderings := make(map[string]directory.StakeOrdering, len(cfg.Communities)+1)

	for name, cc := range cfg.Communities {
		c := settlement.Community{Token: cc.Token}
		if cc.Token == "" {
			c.Token = cfg.Chain.DefaultToken
		}
		if cc.StakeContract != "" {
			o := directory.StakeOrdering{Contract: cc.StakeContract, Function: cc.StakeFunction, Decimals: cc.StakeDecimals}
			c.Ordering = &o
			orderings[name] = o
		}
		communities[name] = c
	}
	if _, ok := communities["default"]; !ok {
		communities["default"] = settlement.Community{Token: cfg.Chain.DefaultToken}
	}
	return communities, orderings
}

// NewDirectory 地址目录: Neynar + 链上质押排序 + 两级缓存
// TransferBudget 单笔转账的时间上限, 未配置时按确认超时加余量计算
func TransferBudget(cfg config.Config) time.Duration {
	if cfg.Settlement.TransferBudget > 0 {
		return cfg.Settlement.TransferBudget
	}
	confirm := cfg.Chain.ConfirmTimeout
	if confirm <= 0 {
		confirm = 90 * time.Second
	}
	return confirm + 30*time.Second
}

func NewDirectory(cfg config.Config, infra *Infra) *directory.Directory {
	profiles := directory.NewNeynarClient(cfg.Directory.BaseURL, cfg.Directory.ApiKey, cfg.Directory.Timeout)
	c := cache.NewMultiLevelCache(
		cache.NewMemoryCache(cfg.Directory.CacheTTL, 2*cfg.Directory.CacheTTL),
		cache.NewRedisCache(infra.Redis, "directory:"),
	)
	return directory.NewDirectory(profiles, chain.NewStakeReader(infra.Eth), c, cfg.Directory.CacheTTL)
}

// NewExecutor 加载热钱包私钥并创建转账执行器
func NewExecutor(ctx context.Context, cfg config.Config, infra *Infra) (*transfer.Executor, error) {
	key, err := keystore.LoadPayoutKey(cfg.Chain.KeystorePath, cfg.Chain.Password, cfg.Chain.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("load payout key: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	chainID, err := infra.Eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}

	exec := transfer.NewExecutor(infra.Eth, key, chainID, transfer.Options{
		DefaultToken:   cfg.Chain.DefaultToken,
		ConfirmTimeout: cfg.Chain.ConfirmTimeout,
		PollInterval:   cfg.Chain.PollInterval,
		GasLimit:       cfg.Chain.GasLimit,
	})
	logger.Info("payout wallet loaded", zap.String("address", exec.From().Hex()), zap.String("chain_id", chainID.String()))
	return exec, nil
}

// Services 业务服务
type Services struct {
	Settlement   *settlement.Service
	Participants *settlement.ParticipantEligibility
	Approvals    *approval.Coordinator
	Games        *game.Creator
	Claims       *allocation.ClaimService
}

func NewServices(ctx context.Context, cfg config.Config, infra *Infra) (*Services, error) {
	dir := NewDirectory(cfg, infra)
	exec, err := NewExecutor(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}
	communities, orderings := Communities(cfg)

	participants := settlement.NewParticipantEligibility(infra.DB)
	settleSvc := settlement.NewService(settlement.NewLedger(infra.DB), dir, exec, participants, settlement.Options{
		LeaseTTL:       cfg.Settlement.LeaseTTL,
		TransferBudget: TransferBudget(cfg),
		Communities:    communities,
	})

	games := game.NewCreator(infra.DB)
	coord := approval.NewCoordinator(infra.DB)
	coord.Register(model.RequestKindGame, games.Action())

	return &Services{
		Settlement:   settleSvc,
		Participants: participants,
		Approvals:    coord,
		Games:        games,
		Claims:       allocation.NewClaimService(infra.DB, dir, orderings),
	}, nil
}

// NewProducer 按配置选择 Kafka 或 Redis Streams
func NewProducer(cfg config.Config, infra *Infra) mq.Producer {
	if cfg.Redis.MQType == "kafka" {
		logger.Info("using kafka as message queue", zap.Strings("brokers", cfg.Kafka.Brokers))
		return mq.NewKafkaProducer(cfg.Kafka.Brokers)
	}
	logger.Info("using redis streams as message queue")
	return mq.NewRedisProducer(infra.Redis)
}

// NewConsumer group 为消费组名, name 为组内消费者名 (只对 Redis 有意义)
func NewConsumer(cfg config.Config, rdb *redis.Client, group, name string) mq.Consumer {
	if cfg.Redis.MQType == "kafka" {
		return mq.NewKafkaConsumer(cfg.Kafka.Brokers, group)
	}
	return mq.NewRedisConsumer(rdb, group, name)
}
