package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/InjectiveLabs/suplog"
	"github.com/ethereum/go-ethereum/common"
	cli "github.com/jawher/mow.cli"
	"github.com/xlab/closer"

	"github.com/InjectiveLabs/lending-price-oracle/internal/config"
	"github.com/InjectiveLabs/lending-price-oracle/internal/service/oracle"
)

// priceCmd action resolves the prices of the given assets once through the
// configured chain and prints them.
//
// $ lending-price-oracle price <ASSET>...
func priceCmd(cmd *cli.Cmd) {
	cmd.Spec = "[--eth-rpc] [--timeout] ASSET..."

	var ethRPC *string
	initEthOptions(cmd, &ethRPC)

	timeout := cmd.String(cli.StringOpt{
		Name:  "timeout",
		Desc:  "Resolution timeout.",
		Value: "15s",
	})

	assets := cmd.StringsArg("ASSET", nil, "Asset addresses to price")

	cmd.Action = func() {
		// ensure a clean exit
		defer closer.Close()

		cfg, err := config.LoadFile(*configPath)
		if err != nil {
			log.WithError(err).WithField("config", *configPath).Fatalln("failed to load config")
		}
		overrideString(&cfg.EthRPC, *ethRPC)

		resolveTimeout := duration(*timeout, 15*time.Second)
		ctx, cancelFn := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancelFn()

		svc, err := oracle.NewService(ctx, cfg, nil)
		if err != nil {
			log.WithError(err).Fatalln("failed to init oracle service")
		}
		closer.Bind(svc.Close)

		go func() {
			if err := svc.Start(ctx); err != nil {
				log.WithError(err).Warningln("streaming feeds stopped")
			}
		}()

		// leave half of the budget for resolution itself
		waitCtx, waitCancelFn := context.WithTimeout(ctx, resolveTimeout/2)
		if err := svc.WaitReady(waitCtx); err != nil {
			log.WithError(err).Warningln("streaming feeds not ready, their assets resolve through the fallback tiers")
		}
		waitCancelFn()

		primary := svc.Primary()
		for _, raw := range *assets {
			if !common.IsHexAddress(raw) {
				log.WithField("asset", raw).Errorln("not a hex address")
				continue
			}

			asset := common.HexToAddress(raw)
			price, err := primary.GetAssetPrice(ctx, asset)
			if err != nil {
				log.WithError(err).WithField("asset", asset.Hex()).Errorln("failed to resolve price")
				continue
			}

			fmt.Printf("%s\t%s\t%s\n", asset.Hex(), price.String(), oracle.FormatPrice(price, primary.BaseCurrencyUnit()))
		}
	}
}
