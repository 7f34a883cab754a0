package cmd

import (
	"context"
	"strings"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/logger"
	"github.com/Layr-Labs/fundtracer/internal/shutdown"
	"github.com/Layr-Labs/fundtracer/pkg/attackPath"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	TraceTxHash = "tx"
	TraceToken  = "token"
	TraceDepth  = "depth"
	TraceWallet = "wallet"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Trace funds forward from a theft transaction",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		if err := cfg.Validate(); err != nil {
			l.Sugar().Fatalw("Invalid configuration", zap.Error(err))
		}

		rootHash := strings.ToLower(viper.GetString(config.KebabToSnakeCase(TraceTxHash)))
		if !attackPath.IsTransactionHash(rootHash) {
			l.Sugar().Fatalw("A valid --tx transaction hash is required", zap.String("tx", rootHash))
		}
		depth := cfg.TraversalConfig.Depth
		if cmd.Flags().Changed(TraceDepth) {
			depth = viper.GetInt(config.KebabToSnakeCase(TraceDepth))
		}

		ctx, cancel := shutdown.CancelOnShutdown(context.Background(), l)
		defer cancel()

		t, err := newTracer(ctx, cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup tracer", zap.Error(err))
		}
		defer t.Close()

		asset, err := t.resolveAsset(ctx, viper.GetString(config.KebabToSnakeCase(TraceToken)))
		if err != nil {
			t.Close()
			l.Sugar().Fatalw("Failed to resolve the traced asset", zap.Error(err))
		}

		l.Sugar().Infow("Starting trace",
			zap.String("tx", rootHash),
			zap.String("asset", asset.Symbol),
			zap.Int("depth", depth),
		)
		tree, err := t.engine.Trace(ctx, rootHash, asset, depth)
		if err != nil {
			t.Close()
			l.Sugar().Fatalw("Failed to trace root transaction", zap.String("tx", rootHash), zap.Error(err))
		}
		if ctx.Err() != nil {
			l.Sugar().Warnw("Trace was interrupted, writing the partial tree", zap.Error(ctx.Err()))
		}

		r, err := t.writeReport(viper.GetString(config.KebabToSnakeCase(TraceWallet)), asset, depth, tree)
		if err != nil {
			l.Sugar().Errorw("Failed to write report", zap.Error(err))
			return
		}
		l.Sugar().Infow("Trace complete",
			zap.String("runId", r.RunId),
			zap.Int("nodes", r.NodeCount),
			zap.Int("attackerWallets", len(r.AttackerWallets)),
			zap.String("evidenceRoot", r.EvidenceRoot),
		)
	},
}
