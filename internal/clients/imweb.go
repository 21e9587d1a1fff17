// internal/clients/imweb.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	imwebProvider = "imweb"

	// Tokens are refreshed this long before the provider would reject them.
	imwebTokenMargin = 5 * time.Minute
	imwebTokenTTL    = time.Hour
)

// ImwebClient exchanges the API key/secret for an access token and reads members and orders.
type ImwebClient struct {
	http      *resty.Client
	apiKey    string
	apiSecret string
	now       func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type ImwebMember struct {
	MemberCode string `json:"member_code"`
	UID        string `json:"uid"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Call       string `json:"callnum"`
	JoinTime   int64  `json:"join_time"`
}

type ImwebOrderer struct {
	MemberCode string `json:"member_code"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Call       string `json:"call"`
}

type ImwebOrderItem struct {
	ProdNo   string `json:"prod_no"`
	ProdName string `json:"prod_name"`
	Price    int64  `json:"price"`
	Count    int    `json:"count"`
}

type ImwebOrder struct {
	OrderNo    string           `json:"order_no"`
	OrderTime  int64            `json:"order_time"`
	Status     string           `json:"status"`
	Orderer    ImwebOrderer     `json:"orderer"`
	TotalPrice int64            `json:"total_price"`
	Items      []ImwebOrderItem `json:"items"`
}

type imwebEnvelope[T any] struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data T      `json:"data"`
}

type imwebAuthResponse struct {
	Code        int    `json:"code"`
	Msg         string `json:"msg"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func NewImwebClient(baseURL, apiKey, apiSecret string, timeout time.Duration) *ImwebClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &ImwebClient{
		http:      client,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		now:       time.Now,
	}
}

// Configured reports whether API credentials are present.
func (c *ImwebClient) Configured() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

func (c *ImwebClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var auth imwebAuthResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"key":    c.apiKey,
			"secret": c.apiSecret,
		}).
		SetResult(&auth).
		Post("/v2/auth")
	if err != nil {
		return "", fmt.Errorf("imweb auth request failed: %w", err)
	}
	if resp.IsError() || auth.AccessToken == "" || (auth.Code != 0 && auth.Code != http.StatusOK) {
		return "", newProviderError(imwebProvider, resp, fmt.Sprint(auth.Code), auth.Msg)
	}

	ttl := imwebTokenTTL
	if auth.ExpiresIn > 0 {
		ttl = time.Duration(auth.ExpiresIn) * time.Second
	}
	c.token = auth.AccessToken
	c.tokenExpiry = c.now().Add(ttl - imwebTokenMargin)
	return c.token, nil
}

// invalidateToken drops a token the provider rejected so the next call re-authenticates.
func (c *ImwebClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func imwebGet[T any](ctx context.Context, c *ImwebClient, path string) (T, error) {
	var zero T

	token, err := c.accessToken(ctx)
	if err != nil {
		return zero, err
	}

	var envelope imwebEnvelope[T]
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("access-token", token).
		SetResult(&envelope).
		Get(path)
	if err != nil {
		return zero, fmt.Errorf("imweb request %s failed: %w", path, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if resp.IsError() || (envelope.Code != 0 && envelope.Code != http.StatusOK) {
		return zero, newProviderError(imwebProvider, resp, fmt.Sprint(envelope.Code), envelope.Msg)
	}

	return envelope.Data, nil
}

func (c *ImwebClient) GetMember(ctx context.Context, memberCode string) (*ImwebMember, error) {
	member, err := imwebGet[ImwebMember](ctx, c, "/v2/member/members/"+url.PathEscape(memberCode))
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *ImwebClient) GetOrder(ctx context.Context, orderNo string) (*ImwebOrder, error) {
	order, err := imwebGet[ImwebOrder](ctx, c, "/v2/shop/orders/"+url.PathEscape(orderNo))
	if err != nil {
		return nil, err
	}
	return &order, nil
}
