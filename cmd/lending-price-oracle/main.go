package main

import (
	"fmt"
	"os"

	log "github.com/InjectiveLabs/suplog"
	cli "github.com/jawher/mow.cli"

	"github.com/InjectiveLabs/lending-price-oracle/version"
)

var app = cli.App("lending-price-oracle", "Tiered price oracle for a lending protocol: primary feed, indexed fallback with staleness check, manual prices.")

var (
	envName     *string
	appLogLevel *string
	configPath  *string
)

func panicIf(err error, msg ...interface{}) {
	if err != nil {
		log.WithError(err).Errorln(msg...)
		panic(err)
	}
}

func main() {
	readEnv()
	initGlobalOptions(
		&envName,
		&appLogLevel,
		&configPath,
	)

	app.Before = func() {
		log.DefaultLogger.SetLevel(logLevel(*appLogLevel))
	}

	app.Command("start", "Starts the oracle service and its API.", startCmd)
	app.Command("price", "Resolves asset prices once and prints them.", priceCmd)
	app.Command("version", "Print the version information and exit.", versionCmd)

	_ = app.Run(os.Args)
}

func versionCmd(c *cli.Cmd) {
	c.Action = func() {
		fmt.Println(version.Version())
	}
}
