package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X".
var (
	AppVersion = "dev"
	GitCommit  = ""
	BuildDate  = ""

	GoVersion = runtime.Version()
	GoArch    = runtime.GOARCH
)

func Version() string {
	return fmt.Sprintf(
		"Version %s (%s)\nCompiled at %s using Go %s (%s)",
		AppVersion,
		GitCommit,
		BuildDate,
		GoVersion,
		GoArch,
	)
}
