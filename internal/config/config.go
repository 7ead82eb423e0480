package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

const (
	defaultTTL         = 300
	defaultIPFile      = "last_ip.txt"
	defaultIPService   = "https://api.ipify.org"
	defaultHTTPTimeout = 10 * time.Second
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"

	envPrefix = "CPDDNS_"
)

// Config holds the settings for one run. It is not modified after Load.
type Config struct {
	CPanel    CPanel
	DNS       DNS
	Local     Local
	IPService IPService
	HTTP      HTTP
	Log       Log
	Metrics   Metrics
}

// CPanel holds the control panel API settings
type CPanel struct {
	URL          string
	User         string
	APIToken     string
	APITokenFile string
}

// DNS holds the managed record
type DNS struct {
	Domain     string
	RecordName string // always ends with a dot
	TTL        int
}

type Local struct {
	IPFile string
}

type IPService struct {
	ProviderURL string
}

type HTTP struct {
	Timeout time.Duration
}

type Log struct {
	Level  string
	Format string
}

// Metrics holds the optional Prometheus textfile output
type Metrics struct {
	Textfile string
}

// Load reads the INI file at path with environment variable override.
//
// Values are taken from CPDDNS_<SECTION>_<KEY> first, then the file, then defaults.
// A .env file in the working directory is loaded into the environment beforehand.
// A missing file is not an error, so a run can be configured from the environment alone.
func Load(path string) (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfgFile := ini.Empty()
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		slog.Default().Warn("config file not found, using environment only", "path", path)
	} else {
		if cfgFile, err = ini.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// priority: environment variable, INI file, default
	lookup := func(section, key string) (string, bool) {
		if value := strings.TrimSpace(os.Getenv(envKey(section, key))); value != "" {
			return value, true
		}
		if cfgFile.Section(section).HasKey(key) {
			if value := strings.TrimSpace(cfgFile.Section(section).Key(key).String()); value != "" {
				return value, true
			}
		}
		return "", false
	}
	getValue := func(section, key, defaultValue string) string {
		if value, ok := lookup(section, key); ok {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		CPanel: CPanel{
			URL:          strings.TrimSuffix(getValue("cpanel", "url", ""), "/"),
			User:         getValue("cpanel", "user", ""),
			APIToken:     getValue("cpanel", "api_token", ""),
			APITokenFile: getValue("cpanel", "api_token_file", ""),
		},
		DNS: DNS{
			Domain:     getValue("dns", "domain", ""),
			RecordName: getValue("dns", "record_name", ""),
			TTL:        defaultTTL,
		},
		Local: Local{
			IPFile: getValue("local", "ip_file", defaultIPFile),
		},
		IPService: IPService{
			ProviderURL: getValue("ip_service", "provider_url", defaultIPService),
		},
		HTTP: HTTP{
			Timeout: defaultHTTPTimeout,
		},
		Log: Log{
			Level:  strings.ToLower(getValue("log", "level", defaultLogLevel)),
			Format: strings.ToLower(getValue("log", "format", defaultLogFormat)),
		},
		Metrics: Metrics{
			Textfile: getValue("metrics", "textfile", ""),
		},
	}

	if cfg.DNS.RecordName != "" && !strings.HasSuffix(cfg.DNS.RecordName, ".") {
		cfg.DNS.RecordName += "."
	}

	if value, ok := lookup("dns", "ttl"); ok {
		ttl, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("dns.ttl: %q is not an integer", value)
		}
		cfg.DNS.TTL = ttl
	}
	if value, ok := lookup("http", "timeout"); ok {
		timeout, err := parseTimeout(value)
		if err != nil {
			return nil, fmt.Errorf("http.timeout: %w", err)
		}
		cfg.HTTP.Timeout = timeout
	}

	return cfg, nil
}

// Validate checks that every required setting is present and well formed.
func (c *Config) Validate() error {
	var errs []error
	if err := validateURL("cpanel.url", c.CPanel.URL); err != nil {
		errs = append(errs, err)
	}
	if c.CPanel.User == "" {
		errs = append(errs, errors.New("cpanel.user is required"))
	}
	if c.CPanel.APIToken == "" && c.CPanel.APITokenFile == "" {
		errs = append(errs, errors.New("cpanel.api_token or cpanel.api_token_file is required"))
	}
	if c.DNS.Domain == "" {
		errs = append(errs, errors.New("dns.domain is required"))
	}
	if c.DNS.RecordName == "" {
		errs = append(errs, errors.New("dns.record_name is required"))
	}
	if c.DNS.TTL <= 0 {
		errs = append(errs, fmt.Errorf("dns.ttl must be a positive number of seconds; got %d", c.DNS.TTL))
	}
	if c.Local.IPFile == "" {
		errs = append(errs, errors.New("local.ip_file is required"))
	}
	if err := validateURL("ip_service.provider_url", c.IPService.ProviderURL); err != nil {
		errs = append(errs, err)
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("http.timeout must be positive; got %s", c.HTTP.Timeout))
	}
	return errors.Join(errs...)
}

// Token returns the API token, reading it from the token file when it is not set directly.
func (c *Config) Token() (string, error) {
	if c.CPanel.APIToken != "" {
		return c.CPanel.APIToken, nil
	}
	if c.CPanel.APITokenFile == "" {
		return "", errors.New("no API token configured")
	}
	if err := VerifyPermissions(c.CPanel.APITokenFile); err != nil {
		return "", err
	}
	return readKey(c.CPanel.APITokenFile)
}

func envKey(section, key string) string {
	return envPrefix + strings.ToUpper(section) + "_" + strings.ToUpper(key)
}

// parseTimeout accepts a Go duration ("5s") or a bare number of seconds.
func parseTimeout(value string) (time.Duration, error) {
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%q is not a duration", value)
	}
	return d, nil
}

func validateURL(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: %q must be an http or https URL", name, value)
	}
	return nil
}

func readKey(path string) (key string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	key = strings.TrimSpace(string(keyb))
	if key == "" {
		return "", fmt.Errorf("key file %q is empty", path)
	}
	return key, nil
}

// VerifyPermissions checks that the key file at path is only readable by its owner.
func VerifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": %w", path, permissionError(perms))
	}

	return nil
}

type permissionError fs.FileMode

func (pe permissionError) Error() string {
	return fmt.Sprintf("expected file permissions \"-rw-------\"; found \"%s\"", fs.FileMode(pe))
}
