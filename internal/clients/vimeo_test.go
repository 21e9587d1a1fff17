package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVimeoOEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") != "https://vimeo.com/76979871" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"video_id":76979871,"title":"The New Vimeo Player","duration":62,"thumbnail_url":"https://i.vimeocdn.com/video/452001751_295x166.jpg"}`))
	}))
	defer server.Close()

	client := NewVimeoClient(server.URL, 5*time.Second)

	meta, err := client.OEmbed(context.Background(), "https://vimeo.com/76979871")
	require.NoError(t, err)
	assert.Equal(t, "76979871", meta.VideoIDString())
	assert.Equal(t, 62, meta.Duration)
	assert.Equal(t, "The New Vimeo Player", meta.Title)

	_, err = client.OEmbed(context.Background(), "https://vimeo.com/0")
	pe, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "vimeo", pe.Provider)
	assert.Equal(t, http.StatusNotFound, pe.Status)

	assert.Empty(t, (&VimeoOEmbed{}).VideoIDString())
}
