// internal/clients/vimeo.go
package clients

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// VimeoOEmbed is the subset of the oEmbed answer stored on lessons.
type VimeoOEmbed struct {
	VideoID      int64  `json:"video_id"`
	Title        string `json:"title"`
	Duration     int    `json:"duration"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (o *VimeoOEmbed) VideoIDString() string {
	if o.VideoID == 0 {
		return ""
	}
	return strconv.FormatInt(o.VideoID, 10)
}

type VimeoClient struct {
	http      *resty.Client
	oembedURL string
}

func NewVimeoClient(oembedURL string, timeout time.Duration) *VimeoClient {
	return &VimeoClient{
		http:      resty.New().SetTimeout(timeout),
		oembedURL: oembedURL,
	}
}

// OEmbed fetches public metadata for a video page URL.
func (c *VimeoClient) OEmbed(ctx context.Context, videoURL string) (*VimeoOEmbed, error) {
	var result VimeoOEmbed
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("url", videoURL).
		SetResult(&result).
		Get(c.oembedURL)
	if err != nil {
		return nil, fmt.Errorf("vimeo oembed request failed: %w", err)
	}
	if resp.IsError() {
		return nil, newProviderError("vimeo", resp, "", "")
	}
	return &result, nil
}
