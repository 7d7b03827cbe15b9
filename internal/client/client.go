// Package client is a typed HTTP client for the marketplace ledger API.
//
// It mirrors the server's wire format with its own types so that tools
// built on it do not import the server packages.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// CallerHeader carries the address a mutating request acts as.
const CallerHeader = "X-Caller-Address"

// APIError is a non-2xx reply.
type APIError struct {
	Status    int    `json:"-"`
	Code      string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Details)
	}
	return fmt.Sprintf("HTTP %d %s", e.Status, e.Code)
}

// Span is a duration or expiry as sent by the server: decimal seconds or
// "forever".
type Span string

func (s *Span) UnmarshalJSON(b []byte) error {
	*s = Span(strings.Trim(string(b), `"`))
	return nil
}

func (s Span) Forever() bool { return s == "forever" }

type Service struct {
	Sid            string `json:"sid"`
	Owner          string `json:"owner"`
	CreateTime     uint64 `json:"create_time"`
	VersionsCount  int    `json:"versions_count"`
	OffersCount    int    `json:"offers_count"`
	PurchasesCount int    `json:"purchases_count"`
}

type Location struct {
	Kind         string `json:"kind"`
	CID          string `json:"cid,omitempty"`
	HashFunction string `json:"hash_function,omitempty"`
	URL          string `json:"url,omitempty"`
	Error        string `json:"error,omitempty"`
}

type Version struct {
	Sid              string   `json:"sid"`
	Index            int      `json:"index"`
	Hash             string   `json:"hash"`
	Manifest         string   `json:"manifest"`
	ManifestProtocol string   `json:"manifest_protocol"`
	CreateTime       uint64   `json:"create_time"`
	Location         Location `json:"location"`
}

type Offer struct {
	Sid        string   `json:"sid"`
	Index      int      `json:"index"`
	Price      *big.Int `json:"price"`
	Duration   Span     `json:"duration"`
	Active     bool     `json:"active"`
	CreateTime uint64   `json:"create_time"`
}

type Purchase struct {
	Sid        string `json:"sid"`
	Index      int    `json:"index"`
	Purchaser  string `json:"purchaser"`
	Expire     Span   `json:"expire"`
	CreateTime uint64 `json:"create_time"`
	Authorized bool   `json:"authorized"`
}

// Envelope is one committed event.
type Envelope struct {
	Seq   uint64          `json:"seq"`
	Time  uint64          `json:"time"`
	Kind  string          `json:"kind"`
	Event json.RawMessage `json:"event"`
}

// Committed is the reply to a successful mutation.
type Committed struct {
	RequestID string     `json:"request_id"`
	At        uint64     `json:"at"`
	Events    []Envelope `json:"events"`
}

type Admin struct {
	Owner    string   `json:"owner"`
	Paused   bool     `json:"paused"`
	Pausers  []string `json:"pausers"`
	Services int      `json:"services"`
	Now      uint64   `json:"now"`
}

type Authorization struct {
	Sid        string `json:"sid"`
	Address    string `json:"address"`
	At         uint64 `json:"at"`
	Authorized bool   `json:"authorized"`
}

type ServicePage struct {
	Total    int       `json:"total"`
	Offset   int       `json:"offset"`
	Limit    int       `json:"limit"`
	Services []Service `json:"services"`
}

// Client talks to one ledger. Caller is sent with every request and is
// required for mutations.
type Client struct {
	base       string
	Caller     string
	httpClient *http.Client
}

// New returns a client for the ledger at baseURL.
func New(baseURL, caller string) *Client {
	return &Client{
		base:       strings.TrimRight(baseURL, "/"),
		Caller:     caller,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Caller != "" {
		req.Header.Set(CallerHeader, c.Caller)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Details = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) commit(ctx context.Context, method, path string, body any) (Committed, error) {
	var out Committed
	err := c.do(ctx, method, path, body, &out)
	return out, err
}

func svcPath(sid string, rest ...string) string {
	p := "/services/" + url.PathEscape(sid)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *Client) Services(ctx context.Context, offset, limit int) (ServicePage, error) {
	var out ServicePage
	q := url.Values{"offset": {strconv.Itoa(offset)}, "limit": {strconv.Itoa(limit)}}
	err := c.get(ctx, "/services?"+q.Encode(), &out)
	return out, err
}

func (c *Client) Service(ctx context.Context, sid string) (Service, error) {
	var out Service
	err := c.get(ctx, svcPath(sid), &out)
	return out, err
}

func (c *Client) Versions(ctx context.Context, sid string) ([]Version, error) {
	var out struct {
		Versions []Version `json:"versions"`
	}
	err := c.get(ctx, svcPath(sid, "versions"), &out)
	return out.Versions, err
}

func (c *Client) VersionByHash(ctx context.Context, hash string) (Version, error) {
	var out Version
	err := c.get(ctx, "/versions/"+url.PathEscape(hash), &out)
	return out, err
}

func (c *Client) Offers(ctx context.Context, sid string) ([]Offer, error) {
	var out struct {
		Offers []Offer `json:"offers"`
	}
	err := c.get(ctx, svcPath(sid, "offers"), &out)
	return out.Offers, err
}

func (c *Client) Purchases(ctx context.Context, sid string) ([]Purchase, error) {
	var out struct {
		Purchases []Purchase `json:"purchases"`
	}
	err := c.get(ctx, svcPath(sid, "purchases"), &out)
	return out.Purchases, err
}

// Authorized asks whether address may use sid, at the ledger's current
// time when at is zero.
func (c *Client) Authorized(ctx context.Context, sid, address string, at uint64) (Authorization, error) {
	var out Authorization
	path := svcPath(sid, "authorized", url.PathEscape(address))
	if at > 0 {
		path += "?at=" + strconv.FormatUint(at, 10)
	}
	err := c.get(ctx, path, &out)
	return out, err
}

func (c *Client) Admin(ctx context.Context) (Admin, error) {
	var out Admin
	err := c.get(ctx, "/admin", &out)
	return out, err
}

func (c *Client) CreateService(ctx context.Context, sid string) (Committed, error) {
	return c.commit(ctx, http.MethodPost, "/services", map[string]string{"sid": sid})
}

func (c *Client) TransferService(ctx context.Context, sid, newOwner string) (Committed, error) {
	return c.commit(ctx, http.MethodPost, svcPath(sid, "owner"), map[string]string{"new_owner": newOwner})
}

func (c *Client) CreateVersion(ctx context.Context, sid, hash, manifest, protocol string) (Committed, error) {
	return c.commit(ctx, http.MethodPost, svcPath(sid, "versions"), map[string]string{
		"hash": hash, "manifest": manifest, "manifest_protocol": protocol,
	})
}

// CreateOffer publishes an offer. duration is decimal seconds or "forever".
func (c *Client) CreateOffer(ctx context.Context, sid, price, duration string) (Committed, error) {
	return c.commit(ctx, http.MethodPost, svcPath(sid, "offers"), map[string]string{"price": price, "duration": duration})
}

func (c *Client) DisableOffer(ctx context.Context, sid string, index int) (Committed, error) {
	return c.commit(ctx, http.MethodPost, svcPath(sid, "offers", strconv.Itoa(index), "disable"), nil)
}

func (c *Client) Purchase(ctx context.Context, sid string, offer int) (Committed, error) {
	return c.commit(ctx, http.MethodPost, svcPath(sid, "purchases"), map[string]int{"offer_index": offer})
}

func (c *Client) Pause(ctx context.Context) (Committed, error) {
	return c.commit(ctx, http.MethodPost, "/admin/pause", nil)
}

func (c *Client) Unpause(ctx context.Context) (Committed, error) {
	return c.commit(ctx, http.MethodPost, "/admin/unpause", nil)
}

func (c *Client) AddPauser(ctx context.Context, account string) (Committed, error) {
	return c.commit(ctx, http.MethodPost, "/admin/pausers", map[string]string{"account": account})
}

// Approve lets spender move amount of the caller's tokens. It needs the
// ledger to run the local token backend.
func (c *Client) Approve(ctx context.Context, spender, amount string) error {
	return c.do(ctx, http.MethodPost, "/token/approve", map[string]string{"spender": spender, "amount": amount}, nil)
}

func (c *Client) Transfer(ctx context.Context, to, amount string) error {
	return c.do(ctx, http.MethodPost, "/token/transfer", map[string]string{"to": to, "amount": amount}, nil)
}

func (c *Client) Balance(ctx context.Context, address string) (*big.Int, error) {
	var out struct {
		Balance *big.Int `json:"balance"`
	}
	err := c.get(ctx, "/token/balances/"+url.PathEscape(address), &out)
	return out.Balance, err
}

// Watch streams committed events of the given kinds (all when empty) to fn
// until ctx is done, the server closes the stream or fn returns an error.
func (c *Client) Watch(ctx context.Context, kinds []string, fn func(Envelope) error) error {
	u, err := url.Parse(c.base + "/events/stream")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if len(kinds) > 0 {
		u.RawQuery = url.Values{"kinds": {strings.Join(kinds, ",")}}.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		if err := fn(env); err != nil {
			return err
		}
	}
}
