package ddns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/google/go-querystring/query"
)

const (
	cpanelAPIPath    = "/json-api/cpanel"
	cpanelAPIVersion = 2
	cpanelModule     = "ZoneEdit"

	funcFetchZone  = "fetchzone"
	funcAddRecord  = "add_zone_record"
	funcEditRecord = "edit_zone_record"

	// zone listings are small, but this keeps a misbehaving server from exhausting memory
	maxResponseSize = 4 << 20
)

// NewCPanel returns the cPanel ZoneEdit provider on its own,
// for callers that need to talk to the API outside of RunDDNS.
// Requests use httpClient, or a default client with a timeout when it is nil.
func NewCPanel(baseURL, user, token string, httpClient *http.Client) (Provider, error) {
	p, err := newCPanelProvider(baseURL, user, token)
	if err != nil {
		return nil, err
	}
	p.httpClient = httpClient
	return p, nil
}

func newCPanelProvider(baseURL, user, token string) (*cpanelProvider, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing cPanel URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("cPanel URL %q must include a scheme and host", baseURL)
	}
	if user == "" || token == "" {
		return nil, errors.New("cPanel user and API token are required")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + cpanelAPIPath
	u.RawQuery = ""
	return &cpanelProvider{
		endpoint: u,
		user:     user,
		token:    token,
		logger:   discard,
	}, nil
}

// cpanelProvider implements ddns.Provider against the cPanel API 2 ZoneEdit module.
type cpanelProvider struct {
	endpoint   *url.URL
	user       string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

type zoneEditParams struct {
	User       string `url:"cpanel_jsonapi_user"`
	APIVersion int    `url:"cpanel_jsonapi_apiversion"`
	Module     string `url:"cpanel_jsonapi_module"`
	Func       string `url:"cpanel_jsonapi_func"`
	Domain     string `url:"domain"`
}

type zoneRecordParams struct {
	zoneEditParams
	Name    string `url:"name"`
	Type    string `url:"type"`
	Address string `url:"address"`
	TTL     int    `url:"ttl"`
	Line    string `url:"line,omitempty"`
}

func (p *cpanelProvider) params(fn, domain string) zoneEditParams {
	return zoneEditParams{
		User:       p.user,
		APIVersion: cpanelAPIVersion,
		Module:     cpanelModule,
		Func:       fn,
		Domain:     domain,
	}
}

// FetchRecords implements ddns.Provider.
//
// A failed call is always an error.
// An empty slice with a nil error means the zone really has no records.
func (p *cpanelProvider) FetchRecords(ctx context.Context, domain string) ([]Record, error) {
	p.logger.Debug("fetching zone records", "domain", domain)
	start := time.Now()

	obj, err := p.call(ctx, p.params(funcFetchZone, domain))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", funcFetchZone, err)
	}
	data, err := firstData(obj)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", funcFetchZone, err)
	}
	if status, err := data.GetInt64("status"); err == nil && status != 1 {
		msg, _ := data.GetString("statusmsg")
		return nil, fmt.Errorf("%s returned status %d: %s", funcFetchZone, status, msg)
	}

	if v, err := data.GetValue("record"); err != nil || v.Null() == nil {
		p.logger.Debug("zone listing has no record array", "domain", domain)
		return []Record{}, nil
	}
	entries, err := data.GetObjectArray("record")
	if err != nil {
		return nil, fmt.Errorf("%s: unexpected record list: %w", funcFetchZone, err)
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, parseRecord(e))
	}
	p.logger.Debug("fetched zone records", "domain", domain, "count", len(records), "duration", time.Since(start))
	return records, nil
}

// UpsertRecord implements ddns.Provider.
//
// Records with a Line are edited in place; records without one are added.
func (p *cpanelProvider) UpsertRecord(ctx context.Context, domain string, r Record) error {
	fn := funcAddRecord
	if r.Line != "" {
		fn = funcEditRecord
	}
	if r.Type == "" {
		r.Type = "A"
	}
	p.logger.Debug("calling zone edit", "func", fn, "domain", domain, "name", r.Name, "address", r.Address, "line", r.Line)

	obj, err := p.call(ctx, zoneRecordParams{
		zoneEditParams: p.params(fn, domain),
		Name:           r.Name,
		Type:           r.Type,
		Address:        r.Address,
		TTL:            r.TTL,
		Line:           r.Line,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	data, err := firstData(obj)
	if err != nil {
		return fmt.Errorf("%s: %w", fn, err)
	}
	status, err := data.GetInt64("result", "status")
	if err != nil {
		return fmt.Errorf("%s: response has no numeric result status: %w", fn, err)
	}
	if status != 1 {
		msg, _ := data.GetString("result", "statusmsg")
		return fmt.Errorf("%s returned status %d: %s", fn, status, msg)
	}
	return nil
}

func (p *cpanelProvider) call(ctx context.Context, params any) (*jason.Object, error) {
	v, err := query.Values(params)
	if err != nil {
		return nil, fmt.Errorf("error encoding query: %w", err)
	}
	u := *p.endpoint
	u.RawQuery = v.Encode()

	httpclient := p.httpClient
	if httpclient == nil {
		httpclient = defaultHTTPClient
	}
	ctx, cancel := requestContext(ctx, httpclient)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "cpanel "+p.user+":"+p.token)
	req.Header.Set("Accept", "application/json")
	resp, err := httpclient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http request returned %s: %s", resp.Status, snippet(body))
	}

	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("error parsing response body: %w", err)
	}
	if msg, err := obj.GetString("cpanelresult", "error"); err == nil && msg != "" {
		return nil, fmt.Errorf("cPanel returned an error: %s", msg)
	}
	return obj, nil
}

// firstData returns cpanelresult.data[0], which holds the payload of every API 2 call.
func firstData(obj *jason.Object) (*jason.Object, error) {
	data, err := obj.GetObjectArray("cpanelresult", "data")
	if err != nil {
		return nil, fmt.Errorf("unexpected response shape: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("unexpected response shape: cpanelresult.data is empty")
	}
	return data[0], nil
}

func parseRecord(o *jason.Object) Record {
	var r Record
	r.Name, _ = o.GetString("name")
	r.Type, _ = o.GetString("type")
	r.Address, _ = o.GetString("address")
	if v, err := o.GetValue("line"); err == nil {
		r.Line = scalarString(v)
	}
	if v, err := o.GetValue("ttl"); err == nil {
		r.TTL, _ = strconv.Atoi(scalarString(v))
	}
	return r
}

// scalarString returns numbers and strings in their textual form.
// cPanel is not consistent about quoting numeric fields.
func scalarString(v *jason.Value) string {
	if n, err := v.Number(); err == nil {
		return n.String()
	}
	if s, err := v.String(); err == nil {
		return s
	}
	return ""
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
