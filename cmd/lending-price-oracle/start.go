package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	cli "github.com/jawher/mow.cli"
	"github.com/xlab/closer"

	"github.com/InjectiveLabs/lending-price-oracle/internal/config"
	"github.com/InjectiveLabs/lending-price-oracle/internal/server"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/health"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle"
)

// startCmd action runs the service
//
// $ lending-price-oracle start
func startCmd(cmd *cli.Cmd) {
	var (
		ethRPC *string

		// API
		listenAddress  *string
		requestTimeout *string
		apiKey         *string

		// Metrics
		statsdPrefix   *string
		statsdAddr     *string
		statsdAgent    *string
		statsdStuckDur *string
		statsdMocking  *string
		statsdDisabled *string

		// Stork Oracle websocket params
		websocketURL    *string
		websocketHeader *string
	)

	initEthOptions(
		cmd,
		&ethRPC,
	)

	iniAPIOptions(
		cmd,
		&listenAddress,
		&requestTimeout,
		&apiKey,
	)

	initStatsdOptions(
		cmd,
		&statsdPrefix,
		&statsdAddr,
		&statsdAgent,
		&statsdStuckDur,
		&statsdMocking,
		&statsdDisabled,
	)

	initStorkOptions(
		cmd,
		&websocketURL,
		&websocketHeader,
	)

	cmd.Action = func() {
		// ensure a clean exit
		defer closer.Close()

		startMetricsGathering(
			statsdPrefix,
			statsdAddr,
			statsdAgent,
			statsdStuckDur,
			statsdMocking,
			statsdDisabled,
		)

		cfg, err := config.LoadFile(*configPath)
		if err != nil {
			log.WithError(err).WithField("config", *configPath).Fatalln("failed to load config")
		}

		overrideString(&cfg.EthRPC, *ethRPC)
		overrideString(&cfg.API.ListenAddr, *listenAddress)
		overrideString(&cfg.API.APIKey, *apiKey)
		overrideString(&cfg.Stork.WebsocketURL, *websocketURL)
		overrideString(&cfg.Stork.WebsocketHeader, *websocketHeader)

		ctx, cancelFn := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancelFn()

		svc, err := oracle.NewService(ctx, cfg, nil)
		if err != nil {
			log.WithError(err).Fatalln("failed to init oracle service")
		}

		closer.Bind(func() {
			cancelFn()
			svc.Close()
		})

		go func() {
			if err := svc.Start(ctx); err != nil {
				log.Errorln(err)

				// signal there that the app failed
				os.Exit(1)
			}
		}()

		probes := make(map[string]health.Probe)
		for name, probe := range svc.Probes() {
			probes[name] = probe
		}

		healthSvc := health.NewHealthService(log.DefaultLogger, metrics.Tags{
			"svc": "health",
		}, probes)

		timeout, err := time.ParseDuration(*requestTimeout)
		panicIf(err, "invalid api request timeout")

		srv := server.New(cfg.API.ListenAddr, timeout, oracle.NewAPIService(svc, cfg.API.APIKey), healthSvc)
		if err := srv.ListenAndServe(ctx); err != nil {
			log.WithError(err).Fatalln("api server failed")
		}
	}
}

func overrideString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
