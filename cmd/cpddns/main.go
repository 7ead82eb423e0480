// Command cpddns points a cPanel-hosted DNS "A" record at this host's public IP address.
//
// Each invocation performs one update and exits; run it from cron or a systemd timer.
// The exit status tells the scheduler what went wrong:
//
//	0  success, including "nothing to do"
//	1  unexpected error
//	2  configuration error
//	3  public IP could not be determined
//	4  zone records could not be fetched
//	5  the record could not be added or edited
//	6  the IP cache file could not be read or written
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Travis-Britz/cpanel-ddns"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("cpddns failed", "error", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ddns.ErrConfig):
		return 2
	case errors.Is(err, ddns.ErrResolve):
		return 3
	case errors.Is(err, ddns.ErrFetch):
		return 4
	case errors.Is(err, ddns.ErrUpdate):
		return 5
	case errors.Is(err, ddns.ErrCache):
		return 6
	default:
		return 1
	}
}
