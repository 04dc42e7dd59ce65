package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// GoogleAerial fetches overhead satellite imagery via the Maps Static API.
type GoogleAerial struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewGoogleAerial returns a client against the production Maps API.
func NewGoogleAerial(apiKey string) *GoogleAerial {
	return &GoogleAerial{APIKey: apiKey, BaseURL: mapsBaseURL, Client: http.DefaultClient}
}

// ImageURL constructs the satellite static-map URL for an address.
func (g *GoogleAerial) ImageURL(address, size string, zoom int) string {
	q := url.Values{}
	q.Set("center", address)
	q.Set("size", size)
	q.Set("zoom", strconv.Itoa(zoom))
	q.Set("maptype", "satellite")
	q.Set("key", g.APIKey)
	return g.BaseURL + "/maps/api/staticmap?" + q.Encode()
}

// Fetch downloads the satellite image for an address.
func (g *GoogleAerial) Fetch(ctx context.Context, address, size string, zoom int) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.ImageURL(address, size, zoom), nil)
	if err != nil {
		return Image{}, fmt.Errorf("create aerial request: %w", err)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("fetch aerial image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("aerial image returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Image{}, fmt.Errorf("read aerial image: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/png"
	}
	return Image{Data: data, MimeType: mime}, nil
}
