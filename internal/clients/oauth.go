// internal/clients/oauth.go
package clients

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/classroom-app/classroom-backend/internal/config"
)

// OAuthProfile is the provider-neutral view of a social login account.
type OAuthProfile struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Phone         string
}

// OAuthClient runs the authorization-code flow against one provider.
type OAuthClient interface {
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code, state string) (string, error)
	Profile(ctx context.Context, accessToken string) (*OAuthProfile, error)
}

type oauthTokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type oauthClient struct {
	name string
	cfg  config.OAuthProviderConfig
	http *resty.Client
}

func newOAuthClient(name string, cfg config.OAuthProviderConfig, timeout time.Duration) oauthClient {
	return oauthClient{
		name: name,
		cfg:  cfg,
		http: resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json"),
	}
}

func (c oauthClient) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("state", state)
	return c.cfg.AuthURL + "?" + q.Encode()
}

func (c oauthClient) Exchange(ctx context.Context, code, state string) (string, error) {
	form := map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"redirect_uri":  c.cfg.RedirectURL,
		"code":          code,
	}
	if state != "" {
		form["state"] = state
	}

	var token oauthTokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&token).
		SetError(&token).
		Post(c.cfg.TokenURL)
	if err != nil {
		return "", fmt.Errorf("%s token request failed: %w", c.name, err)
	}
	if resp.IsError() || token.AccessToken == "" {
		return "", newProviderError(c.name, resp, token.Error, token.ErrorDescription)
	}
	return token.AccessToken, nil
}

// KakaoClient implements OAuthClient for Kakao Login.
type KakaoClient struct {
	oauthClient
}

func NewKakaoClient(cfg config.OAuthProviderConfig, timeout time.Duration) *KakaoClient {
	return &KakaoClient{oauthClient: newOAuthClient("kakao", cfg, timeout)}
}

type kakaoProfile struct {
	ID           int64 `json:"id"`
	KakaoAccount struct {
		Email           string `json:"email"`
		IsEmailVerified bool   `json:"is_email_verified"`
		Name            string `json:"name"`
		PhoneNumber     string `json:"phone_number"`
		Profile         struct {
			Nickname string `json:"nickname"`
		} `json:"profile"`
	} `json:"kakao_account"`
}

func (c *KakaoClient) Profile(ctx context.Context, accessToken string) (*OAuthProfile, error) {
	var profile kakaoProfile
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&profile).
		Get(c.cfg.ProfileURL)
	if err != nil {
		return nil, fmt.Errorf("kakao profile request failed: %w", err)
	}
	if resp.IsError() || profile.ID == 0 {
		return nil, newProviderError(c.name, resp, "", "")
	}

	name := profile.KakaoAccount.Name
	if name == "" {
		name = profile.KakaoAccount.Profile.Nickname
	}
	return &OAuthProfile{
		ID:            strconv.FormatInt(profile.ID, 10),
		Email:         profile.KakaoAccount.Email,
		EmailVerified: profile.KakaoAccount.IsEmailVerified,
		Name:          name,
		Phone:         profile.KakaoAccount.PhoneNumber,
	}, nil
}

// NaverClient implements OAuthClient for Naver Login.
type NaverClient struct {
	oauthClient
}

func NewNaverClient(cfg config.OAuthProviderConfig, timeout time.Duration) *NaverClient {
	return &NaverClient{oauthClient: newOAuthClient("naver", cfg, timeout)}
}

type naverProfile struct {
	ResultCode string `json:"resultcode"`
	Message    string `json:"message"`
	Response   struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Name     string `json:"name"`
		Nickname string `json:"nickname"`
		Mobile   string `json:"mobile"`
	} `json:"response"`
}

func (c *NaverClient) Profile(ctx context.Context, accessToken string) (*OAuthProfile, error) {
	var profile naverProfile
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&profile).
		Get(c.cfg.ProfileURL)
	if err != nil {
		return nil, fmt.Errorf("naver profile request failed: %w", err)
	}
	if resp.IsError() || profile.ResultCode != "00" || profile.Response.ID == "" {
		return nil, newProviderError(c.name, resp, profile.ResultCode, profile.Message)
	}

	name := profile.Response.Name
	if name == "" {
		name = profile.Response.Nickname
	}
	// Naver only returns addresses it has verified.
	return &OAuthProfile{
		ID:            profile.Response.ID,
		Email:         profile.Response.Email,
		EmailVerified: profile.Response.Email != "",
		Name:          name,
		Phone:         profile.Response.Mobile,
	}, nil
}
