package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/Layr-Labs/fundtracer/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "fundtracer",
	Short: "fundtracer follows stolen funds forward from a theft transaction",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	defaults := config.NewDefaultConfig()

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)
	rootCmd.PersistentFlags().Uint64(config.ChainId, config.Chain_Ethereum, `The chain id to trace on (1, 10, 100, 137, 250, 42161)`)

	rootCmd.PersistentFlags().String(config.EthereumRpcUrl, "", `e.g. "http://<hostname>:8545"`)
	rootCmd.PersistentFlags().String(config.EthereumRpcRetryDelays, "", `Comma separated delays between retries of transient RPC failures, e.g. "1s,3s"`)

	rootCmd.PersistentFlags().StringSlice(config.EtherscanApiKeys, []string{}, `Block explorer API keys, used round-robin`)
	rootCmd.PersistentFlags().String(config.EtherscanUrl, "", `Block explorer API url (defaults to the chain's explorer)`)
	rootCmd.PersistentFlags().Int(config.EtherscanPageSize, defaults.EtherscanConfig.PageSize, `Rows requested per explorer page`)
	rootCmd.PersistentFlags().Int(config.EtherscanMaxPages, defaults.EtherscanConfig.MaxPages, `Maximum explorer pages read per listing`)

	rootCmd.PersistentFlags().String(config.CoinGeckoUrl, defaults.CoinGeckoConfig.Url, `Price oracle API url`)
	rootCmd.PersistentFlags().String(config.CoinGeckoApiKey, "", `Price oracle API key`)
	rootCmd.PersistentFlags().StringSlice(config.CoinGeckoAssetIds, []string{}, `Token symbol to price oracle id, e.g. "PEPE=pepe"`)

	rootCmd.PersistentFlags().String(config.IpfsUrl, defaults.IpfsConfig.Url, `IPFS gateway used to fetch contract metadata`)

	rootCmd.PersistentFlags().String(config.CacheBackendKey, string(defaults.CacheConfig.Backend), `Cache backend (memory, leveldb, postgres)`)
	rootCmd.PersistentFlags().String(config.CachePath, "", `Directory of the leveldb cache`)

	rootCmd.PersistentFlags().String(config.DatabaseHost, "localhost", `PostgreSQL host`)
	rootCmd.PersistentFlags().Int(config.DatabasePort, 5432, `PostgreSQL port`)
	rootCmd.PersistentFlags().String(config.DatabaseUser, "fundtracer", `PostgreSQL username`)
	rootCmd.PersistentFlags().String(config.DatabasePassword, "", `PostgreSQL password`)
	rootCmd.PersistentFlags().String(config.DatabaseDbName, "fundtracer", `PostgreSQL database name`)
	rootCmd.PersistentFlags().String(config.DatabaseSchemaName, "", `PostgreSQL schema name (default "public")`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLMode, "disable", `PostgreSQL SSL mode`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLCert, "", `PostgreSQL client certificate`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLKey, "", `PostgreSQL client key`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLRootCert, "", `PostgreSQL root certificate`)

	rootCmd.PersistentFlags().Int(config.TraversalDepth, defaults.TraversalConfig.Depth, `Maximum number of hops followed from the root transaction`)
	rootCmd.PersistentFlags().Int(config.TraversalWindowDays, defaults.TraversalConfig.WindowDays, `Forward window in days searched for successor transfers`)
	rootCmd.PersistentFlags().Int(config.TraversalMaxCandidates, defaults.TraversalConfig.MaxCandidates, `Maximum successor candidates examined per node`)
	rootCmd.PersistentFlags().Float64(config.TraversalTolerancePercent, defaults.TraversalConfig.TolerancePercent, `Relative tolerance for value matching, in percent`)
	rootCmd.PersistentFlags().Float64(config.TraversalToleranceUsd, defaults.TraversalConfig.ToleranceUsd, `Absolute USD tolerance for direct forwards`)
	rootCmd.PersistentFlags().Int(config.TraversalMaxSubsetPool, defaults.TraversalConfig.MaxSubsetPool, `Maximum transfers considered when matching splits and sums`)
	rootCmd.PersistentFlags().Int(config.TraversalConcurrency, defaults.TraversalConfig.Concurrency, `Siblings expanded in parallel (1 is sequential)`)
	rootCmd.PersistentFlags().Duration(config.TraversalRunTimeout, defaults.TraversalConfig.RunTimeout, `Deadline for a whole trace`)
	rootCmd.PersistentFlags().Duration(config.TraversalCallTimeout, defaults.TraversalConfig.CallTimeout, `Deadline for one external lookup`)

	rootCmd.PersistentFlags().Duration(config.PacingExplorer, defaults.PacingConfig.Explorer, `Minimum spacing between block explorer calls`)
	rootCmd.PersistentFlags().Duration(config.PacingPrice, defaults.PacingConfig.Price, `Minimum spacing between price oracle calls`)
	rootCmd.PersistentFlags().Duration(config.PacingRpc, defaults.PacingConfig.Rpc, `Minimum spacing between RPC calls`)

	rootCmd.PersistentFlags().String(config.KnownWalletsFile, "", `CSV file (address,label,type) extending the built-in known wallets`)

	rootCmd.PersistentFlags().String(config.ReportOutputDir, defaults.ReportConfig.OutputDir, `Directory reports are written to`)
	rootCmd.PersistentFlags().StringSlice(config.ReportKafkaBrokers, []string{}, `Kafka brokers reports are published to`)
	rootCmd.PersistentFlags().String(config.ReportKafkaTopic, defaults.ReportConfig.KafkaTopic, `Kafka topic reports are published to`)

	rootCmd.PersistentFlags().Bool(config.DataDogStatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.DataDogStatsdUrl, "", `e.g. "localhost:8125"`)
	rootCmd.PersistentFlags().Float64(config.DataDogStatsdSampleRate, 1.0, `The sample rate to use for statsd metrics`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	// setup sub commands
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(pathsCmd)
	rootCmd.AddCommand(runVersionCmd)

	// bind any subcommand flags
	traceCmd.PersistentFlags().String(TraceTxHash, "", `Hash of the theft transaction (required)`)
	traceCmd.PersistentFlags().String(TraceToken, "", `ERC-20 token address to trace (native currency when empty)`)
	traceCmd.PersistentFlags().Int(TraceDepth, 0, `Override of --traversal.depth for this trace`)
	traceCmd.PersistentFlags().String(TraceWallet, "", `Victim wallet the report is filed under (defaults to the root sender)`)

	pathsCmd.PersistentFlags().String(PathsInput, "", `JSON file describing the attack paths (required)`)
	pathsCmd.PersistentFlags().String(TraceWallet, "", `Victim wallet the report is filed under (defaults to the root sender)`)
	pathsCmd.PersistentFlags().Int(PathsExtraDepth, 1, `Hops traced automatically below the end of each described path`)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}

// bindCommandFlags binds a subcommand's own flags the same way the root flags are bound.
func bindCommandFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(config.KebabToSnakeCase(f.Name)); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
