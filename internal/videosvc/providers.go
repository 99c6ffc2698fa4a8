// Package videosvc registers the supported video platforms as resolution
// groups backed by RapidAPI download providers.
package videosvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Provider names double as config override keys.
const (
	ProviderInstagram120        = "INSTAGRAM120"
	ProviderInstagramLooter2    = "INSTAGRAM_LOOTER2"
	ProviderInstagramDownloader = "INSTAGRAM_DOWNLOADER"
	ProviderTikTokAPI1          = "TIKTOK_API1"
	ProviderTikTokNoWatermark2  = "TIKTOK_NOWATERMARK2"
)

// rapidAPIClient holds what every RapidAPI provider needs: key, host and
// a shared HTTP client.
type rapidAPIClient struct {
	apiKey     string
	apiHost    string
	httpClient *http.Client
	logger     *slog.Logger
}

func newRapidAPIClient(log *slog.Logger, apiKey, apiHost string, timeout time.Duration) rapidAPIClient {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return rapidAPIClient{
		apiKey:     apiKey,
		apiHost:    apiHost,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("component", "videosvc"), slog.String("api_host", apiHost)),
	}
}

func (c rapidAPIClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+c.apiHost+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.apiHost)
	return c.do(req)
}

func (c rapidAPIClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+c.apiHost+path, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.apiHost)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c rapidAPIClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("provider API error",
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", prefix(string(data), 300)))
		return nil, fmt.Errorf("provider API returned status %d", resp.StatusCode)
	}
	return data, nil
}

func prefix(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// --- Instagram providers ---

// Instagram120 posts the page URL to instagram120's links endpoint.
// Response shape: [{"urls": [{"url": "..."}]}].
type Instagram120 struct {
	client rapidAPIClient
}

// NewInstagram120 creates the primary Instagram provider.
func NewInstagram120(log *slog.Logger, apiKey string, timeout time.Duration) *Instagram120 {
	return &Instagram120{client: newRapidAPIClient(log, apiKey, "instagram120.p.rapidapi.com", timeout)}
}

func (p *Instagram120) Name() string { return ProviderInstagram120 }

// Resolve returns the direct video URL for an Instagram page URL.
func (p *Instagram120) Resolve(ctx context.Context, pageURL string) (string, error) {
	data, err := p.client.post(ctx, "/api/instagram/links", map[string]string{"url": pageURL})
	if err != nil {
		return "", err
	}
	var parsed []struct {
		URLs []struct {
			URL string `json:"url"`
		} `json:"urls"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("unexpected response shape: %w", err)
	}
	if len(parsed) == 0 || len(parsed[0].URLs) == 0 || parsed[0].URLs[0].URL == "" {
		return "", fmt.Errorf("response contains no download URLs")
	}
	return parsed[0].URLs[0].URL, nil
}

// InstagramLooter2 queries instagram-looter2's post-dl endpoint.
// Response shape: {"status": true, "data": {"medias": [{"type": "video", "link": "..."}]}}.
type InstagramLooter2 struct {
	client rapidAPIClient
}

// NewInstagramLooter2 creates a fallback Instagram provider.
func NewInstagramLooter2(log *slog.Logger, apiKey string, timeout time.Duration) *InstagramLooter2 {
	return &InstagramLooter2{client: newRapidAPIClient(log, apiKey, "instagram-looter2.p.rapidapi.com", timeout)}
}

func (p *InstagramLooter2) Name() string { return ProviderInstagramLooter2 }

func (p *InstagramLooter2) Resolve(ctx context.Context, pageURL string) (string, error) {
	data, err := p.client.get(ctx, "/post-dl?url="+url.QueryEscape(pageURL))
	if err != nil {
		return "", err
	}
	var parsed struct {
		Status bool `json:"status"`
		Data   struct {
			Medias []struct {
				Type string `json:"type"`
				Link string `json:"link"`
			} `json:"medias"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("unexpected response shape: %w", err)
	}
	if !parsed.Status {
		return "", fmt.Errorf("provider reported failure status")
	}
	for _, m := range parsed.Data.Medias {
		if m.Type == "video" && m.Link != "" {
			return m.Link, nil
		}
	}
	return "", fmt.Errorf("no video among %d media items", len(parsed.Data.Medias))
}

// InstagramDownloader queries the instagram-downloader get-info endpoint.
// On success the error field is boolean false; on failure it carries a
// message string, so it is decoded as raw JSON.
type InstagramDownloader struct {
	client rapidAPIClient
}

// NewInstagramDownloader creates a fallback Instagram provider.
func NewInstagramDownloader(log *slog.Logger, apiKey string, timeout time.Duration) *InstagramDownloader {
	return &InstagramDownloader{client: newRapidAPIClient(log, apiKey,
		"instagram-downloader-download-instagram-videos-stories1.p.rapidapi.com", timeout)}
}

func (p *InstagramDownloader) Name() string { return ProviderInstagramDownloader }

func (p *InstagramDownloader) Resolve(ctx context.Context, pageURL string) (string, error) {
	data, err := p.client.get(ctx, "/get-info-rapidapi?url="+url.QueryEscape(pageURL))
	if err != nil {
		return "", err
	}
	var parsed struct {
		Error  json.RawMessage `json:"error"`
		Medias []struct {
			Type        string `json:"type"`
			DownloadURL string `json:"download_url"`
		} `json:"medias"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("unexpected response shape: %w", err)
	}
	if string(parsed.Error) != "false" {
		return "", fmt.Errorf("provider reported error: %s", strings.Trim(string(parsed.Error), `"`))
	}
	for _, m := range parsed.Medias {
		if m.Type == "video" && m.DownloadURL != "" {
			return m.DownloadURL, nil
		}
	}
	return "", fmt.Errorf("no video among %d media items", len(parsed.Medias))
}

// --- TikTok providers ---

type tiktokResponse struct {
	Code int `json:"code"`
	Data struct {
		HDPlay string `json:"hdplay"`
		Play   string `json:"play"`
		WMPlay string `json:"wmplay"`
	} `json:"data"`
}

// TikTokAPI1 queries tiktok-scraper7. Prefers the watermark-free play
// URL, falls back to the watermarked one.
type TikTokAPI1 struct {
	client rapidAPIClient
}

// NewTikTokAPI1 creates the primary TikTok provider.
func NewTikTokAPI1(log *slog.Logger, apiKey string, timeout time.Duration) *TikTokAPI1 {
	return &TikTokAPI1{client: newRapidAPIClient(log, apiKey, "tiktok-scraper7.p.rapidapi.com", timeout)}
}

func (p *TikTokAPI1) Name() string { return ProviderTikTokAPI1 }

func (p *TikTokAPI1) Resolve(ctx context.Context, pageURL string) (string, error) {
	data, err := p.client.get(ctx, "/?url="+url.QueryEscape(pageURL))
	if err != nil {
		return "", err
	}
	var parsed tiktokResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("unexpected response shape: %w", err)
	}
	if parsed.Code != 0 {
		return "", fmt.Errorf("provider returned code %d", parsed.Code)
	}
	if u := firstNonEmpty(parsed.Data.Play, parsed.Data.WMPlay); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("no play URL in response")
}

// TikTokNoWatermark2 queries tiktok-video-no-watermark2 with hd=1,
// preferring HD over standard over watermarked.
type TikTokNoWatermark2 struct {
	client rapidAPIClient
}

// NewTikTokNoWatermark2 creates a fallback TikTok provider.
func NewTikTokNoWatermark2(log *slog.Logger, apiKey string, timeout time.Duration) *TikTokNoWatermark2 {
	return &TikTokNoWatermark2{client: newRapidAPIClient(log, apiKey, "tiktok-video-no-watermark2.p.rapidapi.com", timeout)}
}

func (p *TikTokNoWatermark2) Name() string { return ProviderTikTokNoWatermark2 }

func (p *TikTokNoWatermark2) Resolve(ctx context.Context, pageURL string) (string, error) {
	data, err := p.client.get(ctx, "/?url="+url.QueryEscape(pageURL)+"&hd=1")
	if err != nil {
		return "", err
	}
	var parsed tiktokResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("unexpected response shape: %w", err)
	}
	if parsed.Code != 0 {
		return "", fmt.Errorf("provider returned code %d", parsed.Code)
	}
	if u := firstNonEmpty(parsed.Data.HDPlay, parsed.Data.Play, parsed.Data.WMPlay); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("no play URL in response")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
