package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/Layr-Labs/fundtracer/internal/logger"
	"github.com/Layr-Labs/fundtracer/internal/shutdown"
	"github.com/Layr-Labs/fundtracer/pkg/attackPath"
	"github.com/Layr-Labs/fundtracer/pkg/pathTraversal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	PathsInput      = "input"
	PathsExtraDepth = "extra-depth"
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Hydrate hand-curated attack paths and trace below their ends",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		if err := cfg.Validate(); err != nil {
			l.Sugar().Fatalw("Invalid configuration", zap.Error(err))
		}

		input := viper.GetString(config.KebabToSnakeCase(PathsInput))
		if input == "" {
			l.Sugar().Fatal("--input is required")
		}
		attack, err := attackPath.LoadRawTransactionAttack(input)
		if err != nil {
			l.Sugar().Fatalw("Failed to load attack paths", zap.String("input", input), zap.Error(err))
		}
		extraDepth := viper.GetInt(config.KebabToSnakeCase(PathsExtraDepth))

		ctx, cancel := shutdown.CancelOnShutdown(context.Background(), l)
		defer cancel()

		t, err := newTracer(ctx, cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup tracer", zap.Error(err))
		}
		defer t.Close()

		asset, err := attackAsset(ctx, t, attack)
		if err != nil {
			t.Close()
			l.Sugar().Fatalw("Failed to resolve the traced asset", zap.Error(err))
		}

		skeleton := attack.BuildSkeleton()
		tree, err := t.engine.TraceSkeleton(ctx, skeleton, asset, extraDepth)
		if err != nil {
			t.Close()
			l.Sugar().Fatalw("Failed to hydrate attack paths", zap.String("tx", skeleton.Hash), zap.Error(err))
		}

		r, err := t.writeReport(viper.GetString(config.KebabToSnakeCase(TraceWallet)), asset, tree.Depth(), tree)
		if err != nil {
			l.Sugar().Errorw("Failed to write report", zap.Error(err))
			return
		}
		l.Sugar().Infow("Attack paths hydrated",
			zap.String("runId", r.RunId),
			zap.Int("nodes", r.NodeCount),
			zap.Int("attackerWallets", len(r.AttackerWallets)),
		)
	},
}

// attackAsset resolves the token of the attack description, falling back to the native
// currency when no token address is given.
func attackAsset(ctx context.Context, t *tracer, attack *attackPath.RawTransactionAttack) (pathTraversal.Asset, error) {
	asset, err := t.resolveAsset(ctx, attack.Token)
	if err != nil {
		return asset, err
	}
	if attack.TokenSymbol != "" && !strings.EqualFold(attack.TokenSymbol, asset.Symbol) {
		return asset, fmt.Errorf("token symbol '%s' does not match the traced asset '%s'", attack.TokenSymbol, asset.Symbol)
	}
	return asset, nil
}
