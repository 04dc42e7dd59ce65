package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const mapsBaseURL = "https://maps.googleapis.com"

// GoogleStreetView talks to the Street View Static API.
type GoogleStreetView struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewGoogleStreetView returns a client against the production Maps API.
func NewGoogleStreetView(apiKey string) *GoogleStreetView {
	return &GoogleStreetView{APIKey: apiKey, BaseURL: mapsBaseURL, Client: http.DefaultClient}
}

// Coverage queries the metadata endpoint; status "OK" means usable imagery
// exists for the address. Metadata requests are free of charge.
func (g *GoogleStreetView) Coverage(ctx context.Context, address string) (Coverage, error) {
	q := url.Values{}
	q.Set("location", address)
	q.Set("key", g.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.BaseURL+"/maps/api/streetview/metadata?"+q.Encode(), nil)
	if err != nil {
		return Coverage{}, fmt.Errorf("create metadata request: %w", err)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return Coverage{}, fmt.Errorf("street view metadata: %w", err)
	}
	defer resp.Body.Close()

	var meta struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return Coverage{}, fmt.Errorf("decode metadata: %w", err)
	}

	return Coverage{Status: meta.Status, Available: meta.Status == "OK"}, nil
}

// ImageURL constructs the signed static-image URL for an address.
func (g *GoogleStreetView) ImageURL(address, size string, fov, pitch, heading int) string {
	q := url.Values{}
	q.Set("location", address)
	q.Set("size", size)
	q.Set("fov", strconv.Itoa(fov))
	q.Set("pitch", strconv.Itoa(pitch))
	q.Set("heading", strconv.Itoa(heading))
	q.Set("key", g.APIKey)
	return g.BaseURL + "/maps/api/streetview?" + q.Encode()
}

// Fetch downloads the street-level image for an address.
func (g *GoogleStreetView) Fetch(ctx context.Context, address, size string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.ImageURL(address, size, 80, 0, 0), nil)
	if err != nil {
		return Image{}, fmt.Errorf("create street view request: %w", err)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("fetch street view: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("street view returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Image{}, fmt.Errorf("read street view image: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return Image{Data: data, MimeType: mime}, nil
}
