package main

import cli "github.com/jawher/mow.cli"

// initGlobalOptions defines some global CLI options, that are useful for most parts of the app.
// Before adding option to there, consider moving it into the actual Cmd.
func initGlobalOptions(
	envName **string,
	appLogLevel **string,
	configPath **string,
) {
	*envName = app.String(cli.StringOpt{
		Name:   "e env",
		Desc:   "The environment name this app runs in. Used for metrics and error reporting.",
		EnvVar: "ORACLE_ENV",
		Value:  "local",
	})

	*appLogLevel = app.String(cli.StringOpt{
		Name:   "l log-level",
		Desc:   "Available levels: error, warn, info, debug.",
		EnvVar: "ORACLE_LOG_LEVEL",
		Value:  "info",
	})

	*configPath = app.String(cli.StringOpt{
		Name:   "c config",
		Desc:   "Path to the oracle configuration file in TOML format.",
		EnvVar: "ORACLE_CONFIG",
		Value:  "oracle.toml",
	})
}

func initEthOptions(
	cmd *cli.Cmd,
	ethRPC **string,
) {
	*ethRPC = cmd.String(cli.StringOpt{
		Name:   "eth-rpc",
		Desc:   "EVM JSON-RPC endpoint for on-chain feeds, overrides eth_rpc of the config file.",
		EnvVar: "ORACLE_ETH_RPC",
	})
}

func iniAPIOptions(
	cmd *cli.Cmd,
	listenAddress **string,
	requestTimeout **string,
	apiKey **string,
) {
	*listenAddress = cmd.String(cli.StringOpt{
		Name:   "api-listen-addr",
		Desc:   "HTTP and grpc-web listen address, overrides api.listen_addr of the config file.",
		EnvVar: "ORACLE_API_LISTEN_ADDR",
	})

	*requestTimeout = cmd.String(cli.StringOpt{
		Name:   "api-request-timeout",
		Desc:   "Timeout of a single grpc-web request.",
		EnvVar: "ORACLE_API_REQUEST_TIMEOUT",
		Value:  "10s",
	})

	*apiKey = cmd.String(cli.StringOpt{
		Name:   "api-key",
		Desc:   "Key expected in the X-Api-Key header of admin calls, overrides api.api_key of the config file.",
		EnvVar: "ORACLE_API_KEY",
	})
}

// initStatsdOptions sets options for StatsD metrics.
func initStatsdOptions(
	cmd *cli.Cmd,
	statsdPrefix **string,
	statsdAddr **string,
	statsdAgent **string,
	statsdStuckDur **string,
	statsdMocking **string,
	statsdDisabled **string,
) {
	*statsdPrefix = cmd.String(cli.StringOpt{
		Name:   "statsd-prefix",
		Desc:   "Specify StatsD compatible metrics prefix.",
		EnvVar: "ORACLE_STATSD_PREFIX",
		Value:  "lending_oracle",
	})

	*statsdAddr = cmd.String(cli.StringOpt{
		Name:   "statsd-addr",
		Desc:   "UDP address of a StatsD compatible metrics aggregator.",
		EnvVar: "ORACLE_STATSD_ADDR",
		Value:  "localhost:8125",
	})

	*statsdAgent = cmd.String(cli.StringOpt{
		Name:   "statsd-agent",
		Desc:   "Specify StatsD agent: telegraf or datadog.",
		EnvVar: "ORACLE_STATSD_AGENT",
		Value:  "datadog",
	})

	*statsdStuckDur = cmd.String(cli.StringOpt{
		Name:   "statsd-stuck-func",
		Desc:   "Sets a duration to consider a function to be stuck (e.g. in deadlock).",
		EnvVar: "ORACLE_STATSD_STUCK_DUR",
		Value:  "5m",
	})

	*statsdMocking = cmd.String(cli.StringOpt{
		Name:   "statsd-mocking",
		Desc:   "If enabled replaces statsd client with a mock one that simply logs values.",
		EnvVar: "ORACLE_STATSD_MOCKING",
		Value:  "false",
	})

	*statsdDisabled = cmd.String(cli.StringOpt{
		Name:   "statsd-disabled",
		Desc:   "Force disabling statsd reporting completely.",
		EnvVar: "ORACLE_STATSD_DISABLED",
		Value:  "true",
	})
}

func initStorkOptions(
	cmd *cli.Cmd,
	websocketURL **string,
	websocketHeader **string,
) {
	*websocketURL = cmd.String(cli.StringOpt{
		Name:   "stork-websocket-url",
		Desc:   "Stork websocket URL, overrides stork.websocket_url of the config file.",
		EnvVar: "STORK_WEBSOCKET_URL",
	})

	*websocketHeader = cmd.String(cli.StringOpt{
		Name:   "stork-websocket-header",
		Desc:   "Stork websocket basic auth credentials, overrides stork.websocket_header of the config file.",
		EnvVar: "STORK_WEBSOCKET_HEADER",
	})
}
