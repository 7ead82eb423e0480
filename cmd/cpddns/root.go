package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Travis-Britz/cpanel-ddns"
	"github.com/Travis-Britz/cpanel-ddns/internal/config"
	"github.com/Travis-Britz/cpanel-ddns/internal/logger"
	"github.com/Travis-Britz/cpanel-ddns/internal/metrics"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/cobra"
)

// flags shared by the subcommands
type options struct {
	configPath string
	ip         string
	iface      string
	force      bool
	dryRun     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "cpddns",
		Short:         "cpddns keeps a cPanel DNS 'A' record pointed at your public IP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.ini", "Path to the INI configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.ip, "ip", "", "Use this IPv4 address instead of asking the IP service")
	rootCmd.PersistentFlags().StringVar(&opts.iface, "interface", "", "Use the IPv4 address of this network interface instead of asking the IP service")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Update the record once if the public IP has changed (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts)
		},
	}
	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().BoolVar(&opts.force, "force", false, "Update the record even if the cached IP matches")
		c.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Decide between add and edit, but change nothing")
	}

	rootCmd.AddCommand(runCmd, newSetupCmd(opts), newCheckCmd(opts), newVersionCmd())
	return rootCmd
}

// loadConfig reads and validates the configuration and sets up logging.
// Every error it returns wraps ddns.ErrConfig.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ddns.ErrConfig, err)
	}
	log := logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ddns.ErrConfig, err)
	}
	if opts.ip != "" && opts.iface != "" {
		return nil, nil, fmt.Errorf("%w: --ip and --interface cannot be used together", ddns.ErrConfig)
	}
	return cfg, log, nil
}

// newResolver picks the IP source: --ip, then --interface, then the configured web service.
// The web service is queried with hc.
func newResolver(cfg *config.Config, opts *options, hc *http.Client) (ddns.Resolver, error) {
	var (
		r   ddns.Resolver
		err error
	)
	switch {
	case opts.ip != "":
		r, err = ddns.FromString(opts.ip)
	case opts.iface != "":
		r = ddns.InterfaceResolver(opts.iface)
	default:
		r, err = ddns.WebResolver(cfg.IPService.ProviderURL)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ddns.ErrConfig, err)
	}
	if s, ok := r.(interface{ SetHTTPClient(*http.Client) }); ok {
		s.SetHTTPClient(hc)
	}
	return r, nil
}

// newHTTPClient returns a client bounded by http.timeout, counting requests in m when it is not nil.
func newHTTPClient(cfg *config.Config, m *metrics.Metrics) *http.Client {
	c := cleanhttp.DefaultClient()
	c.Timeout = cfg.HTTP.Timeout
	if m != nil {
		c.Transport = m.InstrumentTransport(c.Transport)
	}
	return c
}

func runUpdate(cmd *cobra.Command, opts *options) error {
	cfg, log, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	token, err := cfg.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ddns.ErrConfig, err)
	}
	m := metrics.New()
	hc := newHTTPClient(cfg, m)
	resolver, err := newResolver(cfg, opts, hc)
	if err != nil {
		return err
	}

	client, err := ddns.New(cfg.DNS.Domain, cfg.DNS.RecordName,
		ddns.UsingCPanel(cfg.CPanel.URL, cfg.CPanel.User, token),
		ddns.UsingResolver(resolver),
		ddns.UsingFileCache(cfg.Local.IPFile),
		ddns.WithTTL(cfg.DNS.TTL),
		ddns.WithLogger(log),
		ddns.Force(opts.force),
		ddns.DryRun(opts.dryRun),
		ddns.UsingHTTPClient(hc),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ddns.ErrConfig, err)
	}

	start := time.Now()
	res, err := client.RunDDNS(cmd.Context())
	m.ObserveRun(res.Action.String(), res.DryRun, err, time.Since(start))
	if cfg.Metrics.Textfile != "" {
		if werr := m.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			log.Warn("unable to write metrics textfile", "path", cfg.Metrics.Textfile, "error", werr)
		}
	}
	if err != nil {
		return err
	}

	log.Info("run complete",
		"name", res.Name,
		"action", res.Action,
		"previous", res.Previous,
		"current", res.Current,
		"dry_run", res.DryRun,
	)
	return nil
}
