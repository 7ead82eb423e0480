package main

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"time"

	"github.com/Travis-Britz/cpanel-ddns"
	"github.com/fatih/color"
	"github.com/likexian/doh"
	"github.com/likexian/doh/dns"
	"github.com/spf13/cobra"
)

const dohTimeout = 10 * time.Second

// lookupA returns the A records currently published for name.
// It is a variable so tests can avoid the network.
var lookupA = func(ctx context.Context, name string) ([]netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, dohTimeout)
	defer cancel()
	c := doh.Use(doh.CloudflareProvider, doh.GoogleProvider)
	defer c.Close()

	resp, err := c.Query(ctx, dns.Domain(strings.TrimSuffix(name, ".")), dns.TypeA)
	if err != nil {
		return nil, err
	}
	var addrs []netip.Addr
	for _, a := range resp.Answer {
		if a.Type != 1 {
			continue
		}
		if ip, err := netip.ParseAddr(a.Data); err == nil {
			addrs = append(addrs, ip.Unmap())
		}
	}
	return addrs, nil
}

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compare the public IP, the cached IP and the published record without changing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			resolver, err := newResolver(cfg, opts, newHTTPClient(cfg, nil))
			if err != nil {
				return err
			}
			cache := ddns.NewFileCache(cfg.Local.IPFile)
			cache.SetLogger(log)

			ctx := cmd.Context()
			public, err := resolver.Resolve(ctx)
			if err != nil {
				return fmt.Errorf("%w: %w", ddns.ErrResolve, err)
			}
			cached, err := cache.Load(ctx)
			if err != nil {
				return fmt.Errorf("%w: %w", ddns.ErrCache, err)
			}
			published, err := lookupA(ctx, cfg.DNS.RecordName)
			if err != nil {
				log.Warn("DNS-over-HTTPS lookup failed", "name", cfg.DNS.RecordName, "error", err)
			}
			report(cmd.OutOrStdout(), cfg.DNS.RecordName, public.Unmap(), cached, published)
			return nil
		},
	}
}

// report prints the three views of the address and whether they agree.
func report(w io.Writer, name string, public, cached netip.Addr, published []netip.Addr) bool {
	fmt.Fprintf(w, "%-10s %s\n", "record", name)
	fmt.Fprintf(w, "%-10s %s\n", "public", show(public))
	fmt.Fprintf(w, "%-10s %s\n", "cached", show(cached))
	if len(published) == 0 {
		fmt.Fprintf(w, "%-10s %s\n", "published", "-")
	}
	for _, ip := range published {
		fmt.Fprintf(w, "%-10s %s\n", "published", ip)
	}

	inSync := public.IsValid() && public == cached && len(published) == 1 && published[0] == public
	switch {
	case inSync:
		fmt.Fprintln(w, color.GreenString("in sync"))
	case public == cached:
		fmt.Fprintln(w, color.YellowString("cache matches but DNS differs; run with --force to rewrite the record"))
	default:
		fmt.Fprintln(w, color.YellowString("out of sync; the next run will update the record"))
	}
	return inSync
}

func show(ip netip.Addr) string {
	if !ip.IsValid() {
		return "-"
	}
	return ip.String()
}
