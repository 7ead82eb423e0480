package ddns

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
)

// WebResolver constructs a resolver which uses an external web service to look up a "public" IP address.
//
// The service must speak http and return status "200 OK",
// with a valid IPv4 or IPv6 address as the first line of the response body.
// All other responses are considered an error.
//
// Services commonly answer over whichever address family the connection used.
// Since only A records are managed, prefer an IPv4-only endpoint such as https://api.ipify.org.
func WebResolver(serviceURL string) (Resolver, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("IP service URL %q must use http or https", serviceURL)
	}
	return &webResolver{serviceURL: u}, nil
}

type webResolver struct {
	httpClient *http.Client
	serviceURL *url.URL
}

// SetHTTPClient replaces the client used for lookups.
func (wr *webResolver) SetHTTPClient(c *http.Client) {
	wr.httpClient = c
}

// Resolve implements ddns.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	if wr.serviceURL == nil {
		return netip.Addr{}, errors.New("no external IP lookup service was provided")
	}
	return wr.lookup(ctx, wr.serviceURL)
}

func (wr *webResolver) lookup(ctx context.Context, url *url.URL) (netip.Addr, error) {
	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = defaultHTTPClient
	}
	ctx, cancel := requestContext(ctx, httpclient)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := httpclient.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("http request to %s failed: %w", url.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("http request to %s returned %s", url.Host, resp.Status)
	}

	scanner := bufio.NewReader(io.LimitReader(resp.Body, 1024))
	ipstring, _ := scanner.ReadString('\n')
	ip, err := netip.ParseAddr(strings.TrimSpace(ipstring))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error parsing IP address from response body: %w", err)
	}
	return ip.Unmap(), nil
}
