package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-app/classroom-backend/internal/config"
)

func providerServer(t *testing.T, profile string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			assert.NoError(t, r.ParseForm())
			if r.PostForm.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant","error_description":"bad code"}`))
				return
			}
			assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
			assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
			w.Write([]byte(`{"access_token":"provider-token","token_type":"bearer"}`))
		case "/me":
			assert.Equal(t, "Bearer provider-token", r.Header.Get("Authorization"))
			w.Write([]byte(profile))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func providerConfig(baseURL string) config.OAuthProviderConfig {
	return config.OAuthProviderConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/callback",
		AuthURL:      baseURL + "/authorize",
		TokenURL:     baseURL + "/token",
		ProfileURL:   baseURL + "/me",
	}
}

func TestAuthorizeURL(t *testing.T) {
	client := NewKakaoClient(providerConfig("https://kauth.example.com"), time.Second)

	raw := client.AuthorizeURL("state-123")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/authorize", parsed.Path)
	assert.Equal(t, "code", parsed.Query().Get("response_type"))
	assert.Equal(t, "client-id", parsed.Query().Get("client_id"))
	assert.Equal(t, "state-123", parsed.Query().Get("state"))
}

func TestKakaoLogin(t *testing.T) {
	server := providerServer(t, `{"id":12345,"kakao_account":{"email":"kakao@example.com","is_email_verified":true,"profile":{"nickname":"kakaofriend"}}}`)
	defer server.Close()

	client := NewKakaoClient(providerConfig(server.URL), 5*time.Second)
	token, err := client.Exchange(context.Background(), "good-code", "")
	require.NoError(t, err)

	profile, err := client.Profile(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "12345", profile.ID)
	assert.Equal(t, "kakao@example.com", profile.Email)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "kakaofriend", profile.Name)

	_, err = client.Exchange(context.Background(), "bad-code", "")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "invalid_grant", pe.Code)
}

func TestNaverLogin(t *testing.T) {
	server := providerServer(t, `{"resultcode":"00","message":"success","response":{"id":"nv-1","email":"naver@example.com","name":"Naver User","mobile":"010-1234-5678"}}`)
	defer server.Close()

	client := NewNaverClient(providerConfig(server.URL), 5*time.Second)
	token, err := client.Exchange(context.Background(), "good-code", "state")
	require.NoError(t, err)

	profile, err := client.Profile(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "nv-1", profile.ID)
	assert.True(t, profile.EmailVerified)
	assert.Equal(t, "010-1234-5678", profile.Phone)
}

func TestNaverProfileFailure(t *testing.T) {
	server := providerServer(t, `{"resultcode":"024","message":"Authentication failed"}`)
	defer server.Close()

	client := NewNaverClient(providerConfig(server.URL), 5*time.Second)
	_, err := client.Profile(context.Background(), "provider-token")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "024", pe.Code)
}
