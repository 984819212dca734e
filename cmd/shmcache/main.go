// Command shmcache attaches to a named shared-memory cache region and
// performs one operation against it per invocation.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/shmcache/cmd/shmcache/commands"
	"github.com/marmos91/shmcache/pkg/shmcache"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a returned command error to a process exit code: 2 for
// configuration and use-after-destroy errors, so scripts can tell those
// apart from the generic 1 used for everything else (missing keys, bad
// values, I/O failures).
func exitCodeFor(err error) int {
	if errors.Is(err, shmcache.ErrConfig) || errors.Is(err, shmcache.ErrUseAfterDestroy) {
		return 2
	}
	return 1
}
