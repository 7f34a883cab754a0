package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/metrics"
	"github.com/Layr-Labs/fundtracer/internal/metrics/metricsTypes"
	"github.com/Layr-Labs/fundtracer/internal/metrics/prometheus"
	"github.com/Layr-Labs/fundtracer/pkg/abiResolver"
	"github.com/Layr-Labs/fundtracer/pkg/abiSource"
	etherscanAbiSource "github.com/Layr-Labs/fundtracer/pkg/abiSource/etherscan"
	"github.com/Layr-Labs/fundtracer/pkg/abiSource/ipfs"
	"github.com/Layr-Labs/fundtracer/pkg/addressClassifier"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore/levelDbCacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore/memoryCacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/cacheStore/postgresCacheStore"
	"github.com/Layr-Labs/fundtracer/pkg/clients/coingecko"
	"github.com/Layr-Labs/fundtracer/pkg/clients/ethereum"
	"github.com/Layr-Labs/fundtracer/pkg/clients/etherscan"
	"github.com/Layr-Labs/fundtracer/pkg/knownWallets"
	"github.com/Layr-Labs/fundtracer/pkg/pacer"
	"github.com/Layr-Labs/fundtracer/pkg/pathTraversal"
	"github.com/Layr-Labs/fundtracer/pkg/postgres"
	"github.com/Layr-Labs/fundtracer/pkg/postgres/migrations"
	"github.com/Layr-Labs/fundtracer/pkg/priceOracle"
	"github.com/Layr-Labs/fundtracer/pkg/report"
	"github.com/Layr-Labs/fundtracer/pkg/transactionContext"
	"github.com/Layr-Labs/fundtracer/pkg/valueComparator"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// tracer holds every service a trace needs, wired from the global config.
type tracer struct {
	config      *config.Config
	chainInfo   *config.ChainInfo
	logger      *zap.Logger
	metricsSink *metrics.MetricsSink

	store      cacheStore.CacheStore
	chain      *ethereum.Client
	classifier *addressClassifier.AddressClassifier
	engine     *pathTraversal.Engine
	sinks      *report.MultiSink
	progress   *progressbar.ProgressBar
}

func newTracer(ctx context.Context, cfg *config.Config, l *zap.Logger) (*tracer, error) {
	chainInfo, err := cfg.GetChainInfo()
	if err != nil {
		return nil, err
	}

	ms, err := newMetricsSink(ctx, cfg, l)
	if err != nil {
		return nil, err
	}

	store, err := newCacheStore(cfg, l)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	chain := ethereum.NewClient(ethereum.ConvertGlobalConfigToEthereumConfig(cfg), pacer.NewPacer("rpc", cfg.PacingConfig.Rpc), ms, l)
	explorer := etherscan.NewEtherscanClient(httpClient, pacer.NewPacer("explorer", cfg.PacingConfig.Explorer), ms, l, cfg)
	prices := coingecko.NewCoinGeckoClient(httpClient, pacer.NewPacer("price", cfg.PacingConfig.Price), ms, l, cfg)

	wallets, err := knownWallets.LoadKnownWallets(cfg.KnownWalletsFile, l)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	classifier := addressClassifier.NewAddressClassifier(chain, store, cfg.ChainId, ms, l)

	sources := []abiSource.AbiSource{
		etherscanAbiSource.NewEtherscan(explorer, l),
		ipfs.NewIpfs(httpClient, l, cfg),
	}
	resolver := abiResolver.NewAbiResolver(classifier, chain, sources, store, cfg.ChainId, ms, l)

	builder := transactionContext.NewTransactionContextBuilder(&transactionContext.TransactionContextBuilderConfig{
		Chain:       chain,
		Names:       chain,
		Classifier:  classifier,
		AbiResolver: resolver,
		Wallets:     wallets,
		Store:       store,
		ChainInfo:   chainInfo,
	}, ms, l)

	oracle, err := priceOracle.NewCachedOracle(prices, store, cfg, ms, l)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	comparator := valueComparator.NewValueComparator(oracle, valueComparator.ValueComparatorConfigFromConfig(cfg), l)

	engineConfig, err := pathTraversal.EngineConfigFromConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	engine := pathTraversal.NewEngine(builder, explorer, comparator, wallets, engineConfig, ms, l)

	progress := progressbar.Default(-1, "expanding transactions")
	engine.OnNodeExpanded = func(_ *pathTraversal.PathNode) {
		_ = progress.Add(1)
	}

	sinks, err := newReportSinks(cfg, l)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &tracer{
		config:      cfg,
		chainInfo:   chainInfo,
		logger:      l,
		metricsSink: ms,
		store:       store,
		chain:       chain,
		classifier:  classifier,
		engine:      engine,
		sinks:       sinks,
		progress:    progress,
	}, nil
}

func newMetricsSink(ctx context.Context, cfg *config.Config, l *zap.Logger) (*metrics.MetricsSink, error) {
	clients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
	if err != nil {
		return nil, err
	}
	ms, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{
		DefaultLabels: []metricsTypes.MetricsLabel{
			{Name: "chain_id", Value: strconv.FormatUint(cfg.ChainId, 10)},
		},
	}, clients)
	if err != nil {
		return nil, err
	}

	if cfg.PrometheusConfig.Enabled {
		server := prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{Port: cfg.PrometheusConfig.Port}, l)
		if err := server.Start(ctx); err != nil {
			return nil, err
		}
	}
	return ms, nil
}

func newCacheStore(cfg *config.Config, l *zap.Logger) (cacheStore.CacheStore, error) {
	switch cfg.CacheConfig.Backend {
	case config.CacheBackend_LevelDb:
		store, err := levelDbCacheStore.NewLevelDbCacheStore(cfg.CacheConfig.Path, l)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.CacheBackend_Postgres:
		pgConfig := postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig)
		pgConfig.CreateDbIfNotExists = true

		pg, err := postgres.NewPostgres(pgConfig)
		if err != nil {
			l.Sugar().Errorw("Failed to setup postgres connection", zap.Error(err))
			return nil, err
		}
		grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
		if err != nil {
			l.Sugar().Errorw("Failed to create gorm instance", zap.Error(err))
			return nil, err
		}
		migrator := migrations.NewMigrator(pg.Db, grm, l)
		if err := migrator.MigrateAll(); err != nil {
			l.Sugar().Errorw("Failed to migrate", zap.Error(err))
			return nil, err
		}
		return postgresCacheStore.NewPostgresCacheStore(grm, l), nil
	default:
		return memoryCacheStore.NewMemoryCacheStore(), nil
	}
}

func newReportSinks(cfg *config.Config, l *zap.Logger) (*report.MultiSink, error) {
	sinks := []report.ReportSink{report.NewFileSink(cfg.ReportConfig.OutputDir, l)}
	if len(cfg.ReportConfig.KafkaBrokers) > 0 {
		kafkaSink, err := report.NewKafkaSink(cfg.ReportConfig.KafkaBrokers, cfg.ReportConfig.KafkaTopic, l)
		if err != nil {
			l.Sugar().Errorw("Failed to create kafka report sink", zap.Error(err))
			return nil, err
		}
		sinks = append(sinks, kafkaSink)
	}
	return report.NewMultiSink(sinks...), nil
}

// resolveAsset describes the native currency when token is empty, otherwise the ERC-20 at token.
func (t *tracer) resolveAsset(ctx context.Context, token string) (pathTraversal.Asset, error) {
	if token == "" {
		return pathTraversal.Asset{
			Symbol:   t.chainInfo.NativeCurrency.Symbol,
			Decimals: t.chainInfo.NativeCurrency.Decimals,
		}, nil
	}
	token = strings.ToLower(token)
	addressCtx, err := t.classifier.Classify(ctx, token)
	if err != nil {
		return pathTraversal.Asset{}, err
	}
	if !addressCtx.IsContract() || addressCtx.TokenInfo == nil || addressCtx.TokenInfo.Symbol == "" {
		return pathTraversal.Asset{}, fmt.Errorf("address '%s' is not an ERC-20 token", token)
	}
	return pathTraversal.Asset{
		Token:    token,
		Symbol:   addressCtx.TokenInfo.Symbol,
		Decimals: addressCtx.TokenInfo.Decimals,
	}, nil
}

// writeReport files the tree even when the run context was cancelled.
func (t *tracer) writeReport(wallet string, asset pathTraversal.Asset, depth int, tree *pathTraversal.PathNode) (*report.Report, error) {
	_ = t.progress.Finish()

	if wallet == "" && tree.Transaction != nil && tree.Transaction.From != nil {
		wallet = tree.Transaction.From.Address
	}
	r, err := report.NewReport(&report.ReportInput{
		Wallet:  wallet,
		ChainId: t.config.ChainId,
		Asset:   asset,
		Depth:   depth,
		Tree:    tree,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := t.sinks.Write(ctx, r); err != nil {
		return r, err
	}
	return r, nil
}

func (t *tracer) Close() {
	if err := t.sinks.Close(); err != nil {
		t.logger.Sugar().Warnw("Failed to close report sinks", zap.Error(err))
	}
	if err := t.store.Close(); err != nil {
		t.logger.Sugar().Warnw("Failed to close cache store", zap.Error(err))
	}
}
