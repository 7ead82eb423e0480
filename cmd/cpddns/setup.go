package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Travis-Britz/cpanel-ddns"
	"github.com/Travis-Britz/cpanel-ddns/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newSetupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Prompt for the cPanel API token, verify it, and save it to cpanel.api_token_file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.CPanel.APITokenFile == "" {
				return fmt.Errorf("%w: cpanel.api_token_file must be set to run setup", ddns.ErrConfig)
			}
			log.Debug("running setup", "token_file", cfg.CPanel.APITokenFile)

			key, err := readToken(cmd.ErrOrStderr(), cfg.CPanel.User)
			if err != nil {
				return err
			}
			return runSetup(cmd.Context(), cfg, key, cmd.OutOrStdout())
		},
	}
}

// readToken prompts on w and reads the token from the terminal without echo.
func readToken(w io.Writer, user string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: setup must be run from a terminal", ddns.ErrConfig)
	}
	fmt.Fprint(w, color.CyanString("Enter cPanel API token for %s: ", user))
	bytekey, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("error reading from stdin: %w", err)
	}
	return string(bytekey), nil
}

// runSetup checks key against the configured zone and writes it to the token file.
// An existing token file is never overwritten.
func runSetup(ctx context.Context, cfg *config.Config, key string, out io.Writer) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: the API token cannot be empty", ddns.ErrConfig)
	}
	path := cfg.CPanel.APITokenFile
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %q already exists; remove it to run setup again", ddns.ErrConfig, path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w", ddns.ErrConfig, err)
	}

	p, err := ddns.NewCPanel(cfg.CPanel.URL, cfg.CPanel.User, key, newHTTPClient(cfg, nil))
	if err != nil {
		return fmt.Errorf("%w: %w", ddns.ErrConfig, err)
	}
	fmt.Fprintln(out, color.YellowString("verifying token..."))
	records, err := p.FetchRecords(ctx, cfg.DNS.Domain)
	if err != nil {
		return fmt.Errorf("%w: unable to verify API token: %w", ddns.ErrFetch, err)
	}
	fmt.Fprintln(out, color.GreenString("token verified: zone %s lists %d records", cfg.DNS.Domain, len(records)))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create %q: %w", path, err)
	}
	if _, err := fmt.Fprintln(f, key); err != nil {
		f.Close()
		return fmt.Errorf("unable to write %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("unable to write %q: %w", path, err)
	}
	if err := config.VerifyPermissions(path); err != nil {
		return err
	}
	fmt.Fprintln(out, color.GreenString("token written to %q", path))
	return nil
}
