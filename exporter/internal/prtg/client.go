package prtg

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/config"
)

const (
	tablePath      = "/api/table.json"
	sensorColumns  = "objid,device,name,group,tags,lastvalue"
	channelColumns = "objid,name,lastvalue"

	// channelPageSize is large enough to return every channel of a sensor.
	channelPageSize = 10000
)

// Client issues requests against the PRTG table API.
// It is safe for concurrent use.
type Client struct {
	baseURL  string
	username string
	passhash string
	http     *http.Client
	limiter  *rate.Limiter
}

// New returns a Client for the given PRTG settings.
// It builds the HTTP client once and reuses it across requests.
func New(cfg config.PRTGConfig) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("prtg: parse url %q: %w", cfg.URL, err)
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	return &Client{
		baseURL:  strings.TrimRight(u.String(), "/"),
		username: cfg.Username,
		passhash: cfg.Passhash(),
		http:     &http.Client{Transport: transport, Timeout: cfg.Timeout},
		limiter:  newLimiter(cfg.RequestsPerSecond),
	}, nil
}

// newLimiter returns an unlimited limiter when rps is zero.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// sensorPage is the JSON shape of content=sensors.
type sensorPage struct {
	Sensors []Sensor `json:"sensors"`
}

// channelPage is the JSON shape of content=channels.
type channelPage struct {
	Channels []Channel `json:"channels"`
}

// Sensors fetches count sensors starting at offset start.
func (c *Client) Sensors(ctx context.Context, start, count int) ([]Sensor, error) {
	body, err := c.get(ctx, c.SensorsURL(start, count))
	if err != nil {
		return nil, err
	}
	var page sensorPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: sensors start=%d: %w", ErrParse, start, err)
	}
	if page.Sensors == nil {
		return nil, fmt.Errorf("%w: sensors start=%d: missing \"sensors\" key", ErrParse, start)
	}
	return page.Sensors, nil
}

// Channels fetches every channel of the sensor with the given object id.
func (c *Client) Channels(ctx context.Context, sensorID int64) ([]Channel, error) {
	body, err := c.get(ctx, c.ChannelsURL(sensorID))
	if err != nil {
		return nil, err
	}
	var page channelPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: channels of sensor %d: %w", ErrParse, sensorID, err)
	}
	if page.Channels == nil {
		return nil, fmt.Errorf("%w: channels of sensor %d: missing \"channels\" key", ErrParse, sensorID)
	}
	return page.Channels, nil
}

// SensorsURL builds the sensor table query for one page.
func (c *Client) SensorsURL(start, count int) string {
	var q query
	q.add("content", "sensors")
	q.add("columns", sensorColumns)
	q.add("start", strconv.Itoa(start))
	q.add("count", strconv.Itoa(count))
	q.add("filter_active", "-1")
	c.credentials(&q)
	return c.baseURL + tablePath + "?" + q.encode()
}

// ChannelsURL builds the channel table query for one sensor.
func (c *Client) ChannelsURL(sensorID int64) string {
	var q query
	q.add("content", "channels")
	q.add("columns", channelColumns)
	q.add("count", strconv.Itoa(channelPageSize))
	q.add("start", "0")
	q.add("filter_active", "-1")
	q.add("id", strconv.FormatInt(sensorID, 10))
	c.credentials(&q)
	return c.baseURL + tablePath + "?" + q.encode()
}

func (c *Client) credentials(q *query) {
	q.add("username", c.username)
	q.add("passhash", c.passhash)
}

// get performs one rate-limited GET and returns the response body.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The url.Error carries the full URL including the passhash.
		return nil, fmt.Errorf("%w: GET %s: %v", ErrNetwork, redact(req.URL), unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: unexpected status %d", ErrNetwork, redact(req.URL), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: read body: %w", ErrNetwork, redact(req.URL), err)
	}
	return body, nil
}

func unwrapURLError(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}

// redact renders u for logs with the passhash masked.
func redact(u *url.URL) string {
	q := u.Query()
	if q.Get("passhash") == "" {
		return u.String()
	}
	q.Set("passhash", "xxxxx")
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}

// query is an ordered list of query parameters. Blank values are dropped.
type query []param

type param struct{ key, value string }

func (q *query) add(key, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	*q = append(*q, param{key, value})
}

func (q query) encode() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}
