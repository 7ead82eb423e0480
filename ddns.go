package ddns

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const (
	// DefaultTTL is applied to created and edited records unless WithTTL is used.
	DefaultTTL = 300

	// DefaultIPService is queried when no resolver option is given.
	DefaultIPService = "https://api.ipify.org"

	// requestTimeout caps outbound requests made with a client that has no Timeout of its own.
	requestTimeout = 15 * time.Second
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var defaultHTTPClient = func() *http.Client {
	c := cleanhttp.DefaultClient()
	c.Timeout = requestTimeout
	return c
}()

// requestContext bounds ctx by requestTimeout unless c enforces its own timeout.
func requestContext(ctx context.Context, c *http.Client) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, requestTimeout)
}

//go:generate mockgen -destination=internal/mock/mock_ddns.go -package=mock . Cache,Provider,Resolver

type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

type Provider interface {
	FetchRecords(ctx context.Context, domain string) ([]Record, error)
	UpsertRecord(ctx context.Context, domain string, record Record) error
}

type Cache interface {
	// Load returns the last stored address, or the zero Addr if there is none.
	Load(ctx context.Context) (netip.Addr, error)
	// Store records next as the applied address, provided the cache still holds prev.
	Store(ctx context.Context, prev, next netip.Addr) error
}

// New constructs a client that keeps the A record name in zone pointed at the public IP.
//
// A provider must be registered with UsingCPanel (or UsingProvider)
// and a cache with UsingFileCache (or UsingCache).
// The resolver defaults to a web resolver for DefaultIPService.
func New(zone, name string, options ...ClientOption) (DDNSClient, error) {
	if zone == "" {
		return nil, fmt.Errorf("ddns.New: zone cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("ddns.New: record name cannot be empty")
	}
	c := &client{
		zone: zone,
		name: Fqdn(name),
		ttl:  DefaultTTL,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("ddns.New: option %d returned an error: %s", i, err)
		}
	}

	if c.Provider == nil {
		return nil, fmt.Errorf("ddns.New: no DNS provider was registered - use ddns.UsingCPanel")
	}
	if c.Cache == nil {
		return nil, fmt.Errorf("ddns.New: no IP cache was registered - use ddns.UsingFileCache")
	}
	if c.Resolver == nil {
		r, err := WebResolver(DefaultIPService)
		if err != nil {
			return nil, fmt.Errorf("ddns.New: %w", err)
		}
		c.Resolver = r
		if c.httpClient != nil {
			UsingHTTPClient(c.httpClient)(c)
		}
	}

	// this lets us propagate the logger to dependencies that use one if WithLogger was called before all of the dependencies were registered
	withLogger(c.logger)(c)
	return c, nil
}

// Fqdn appends the trailing dot cPanel uses for fully qualified names.
func Fqdn(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

// ClientOption configures a client built by New.
type ClientOption func(*client) error

// UsingCPanel registers the cPanel ZoneEdit API at baseURL as the DNS provider.
func UsingCPanel(baseURL, user, token string) ClientOption {
	return func(c *client) (err error) {
		if c.Provider, err = newCPanelProvider(baseURL, user, token); err != nil {
			return fmt.Errorf("ddns.UsingCPanel: error creating cPanel DNS provider: %w", err)
		}
		if c.httpClient != nil {
			UsingHTTPClient(c.httpClient)(c)
		}
		return nil
	}
}

func UsingProvider(provider Provider) ClientOption {
	return func(c *client) error {
		c.Provider = provider
		return nil
	}
}

func UsingResolver(resolver Resolver) ClientOption {
	return func(c *client) error {
		c.Resolver = resolver
		return nil
	}
}

func UsingWebResolver(serviceURL string) ClientOption {
	return func(c *client) (err error) {
		if c.Resolver, err = WebResolver(serviceURL); err != nil {
			return err
		}
		if c.httpClient != nil {
			UsingHTTPClient(c.httpClient)(c)
		}
		return nil
	}
}

func UsingCache(cache Cache) ClientOption {
	return func(c *client) error {
		c.Cache = cache
		return nil
	}
}

func UsingFileCache(path string) ClientOption {
	return func(c *client) error {
		if path == "" {
			return fmt.Errorf("cache file path cannot be empty")
		}
		c.Cache = NewFileCache(path)
		return nil
	}
}

// WithTTL sets the TTL in seconds for created and edited records.
func WithTTL(ttl int) ClientOption {
	return func(c *client) error {
		if ttl <= 0 {
			return fmt.Errorf("ttl must be positive; got %d", ttl)
		}
		c.ttl = ttl
		return nil
	}
}

// DryRun makes RunDDNS stop after deciding between add and edit.
// Neither DNS nor the cache is modified.
func DryRun(enabled bool) ClientOption {
	return func(c *client) error {
		c.dryRun = enabled
		return nil
	}
}

// Force makes RunDDNS update the record even when the cached IP matches.
func Force(enabled bool) ClientOption {
	return func(c *client) error {
		c.force = enabled
		return nil
	}
}

func withLogger(logger *slog.Logger) ClientOption {
	return func(c *client) error {
		if logger == nil {
			logger = discard
		}
		c.logger = logger
		type setLogger interface {
			SetLogger(*slog.Logger)
		}

		switch p := c.Provider.(type) {
		case *cpanelProvider:
			p.logger = logger
		case setLogger:
			p.SetLogger(logger)
		}

		if r, ok := c.Resolver.(setLogger); ok {
			r.SetLogger(logger)
		}

		if cache, ok := c.Cache.(setLogger); ok {
			cache.SetLogger(logger)
		}

		return nil
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *client) error {
		c.logger = logger
		return nil
	}
}

// UsingHTTPClient sets the client for the built-in resolver and provider.
// Options registered after it pick it up as well.
func UsingHTTPClient(httpclient *http.Client) ClientOption {
	return func(c *client) error {
		if httpclient == nil {
			httpclient = defaultHTTPClient
		}
		c.httpClient = httpclient
		type setHTTPClient interface {
			SetHTTPClient(*http.Client)
		}
		if r, ok := c.Resolver.(setHTTPClient); ok {
			r.SetHTTPClient(httpclient)
		}
		switch p := c.Provider.(type) {
		case *cpanelProvider:
			p.httpClient = httpclient
		case setHTTPClient:
			p.SetHTTPClient(httpclient)
		}
		return nil
	}
}

type DDNSClient interface {
	RunDDNS(ctx context.Context) (Result, error)
}

// Action describes what a run did to the DNS record.
type Action int

const (
	ActionNone      Action = iota // the run failed before deciding
	ActionUnchanged               // cached IP matched; nothing was called
	ActionCreated                 // the record was added
	ActionUpdated                 // an existing record was edited
)

func (a Action) String() string {
	switch a {
	case ActionUnchanged:
		return "unchanged"
	case ActionCreated:
		return "created"
	case ActionUpdated:
		return "updated"
	default:
		return "none"
	}
}

// Result summarizes one RunDDNS call.
type Result struct {
	Action   Action
	Name     string
	Previous netip.Addr // cached address, zero if there was none
	Current  netip.Addr // resolved address
	Line     string     // line of the edited record
	DryRun   bool       // Action was decided but not applied
}

type client struct {
	Resolver
	Provider
	Cache
	logger     *slog.Logger
	httpClient *http.Client
	zone       string
	name       string
	ttl        int
	dryRun     bool
	force      bool
}

// RunDDNS performs one synchronization:
// resolve the public IP, compare it with the cache, fetch the zone,
// add or edit the A record, and store the new IP.
//
// The cache is written only after the provider confirms the update.
// Errors wrap ErrResolve, ErrCache, ErrFetch or ErrUpdate.
func (c *client) RunDDNS(ctx context.Context) (Result, error) {
	res := Result{Name: c.name, DryRun: c.dryRun}

	ip, err := c.Resolve(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrResolve, err)
	}
	ip = ip.Unmap()
	if !ip.Is4() {
		return res, fmt.Errorf("%w: %s is not an IPv4 address", ErrResolve, ip)
	}
	res.Current = ip
	c.logger.Debug("got external IP", "ip", ip)

	cached, err := c.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrCache, err)
	}
	res.Previous = cached
	if cached == ip && !c.force {
		c.logger.Info("IP address has not changed, no update needed", "ip", ip)
		res.Action = ActionUnchanged
		return res, nil
	}
	c.logger.Info("IP address changed", "previous", addrString(cached), "current", ip)

	records, err := c.FetchRecords(ctx, c.zone)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	c.logger.Debug("found zone records", "zone", c.zone, "count", len(records))

	record := Record{Name: c.name, Type: "A", Address: ip.String(), TTL: c.ttl}
	action := ActionCreated
	if existing, found := FindARecord(records, c.name); found {
		if existing.Line == "" {
			return res, fmt.Errorf("%w: 'A' record for %s has no line number", ErrFetch, c.name)
		}
		record.Line = existing.Line
		action = ActionUpdated
		c.logger.Info("updating existing 'A' record", "name", c.name, "line", existing.Line, "address", existing.Address)
	} else {
		c.logger.Info("'A' record not found, creating new record", "name", c.name)
	}
	res.Line = record.Line

	if c.dryRun {
		res.Action = action
		c.logger.Info("dry run, not applying change", "action", action, "name", c.name, "address", record.Address, "line", record.Line)
		return res, nil
	}

	if err := c.UpsertRecord(ctx, c.zone, record); err != nil {
		return res, fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	res.Action = action
	c.logger.Info("DNS 'A' record successfully updated", "name", c.name, "address", ip, "action", action)

	if err := c.Store(ctx, cached, ip); err != nil {
		return res, fmt.Errorf("%w: %w", ErrCache, err)
	}
	return res, nil
}
