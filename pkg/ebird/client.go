package ebird

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"birdtrip/pkg/config"
	"birdtrip/pkg/request"
	"birdtrip/pkg/tracker"
)

// API-side limits. Values beyond these are clamped client-side so we
// never send a request eBird will reject with a 400.
const (
	MaxBackDays   = 30
	MaxDistanceKm = 50
	MaxResults    = 3000
)

// Client is a typed client for the eBird API v2.
//
// All calls go through the shared request.Client, which serializes
// requests per provider and paces them, so concurrent fetch workers can
// share one Client safely. Observation and hotspot listings are never
// cached (freshness matters); the taxonomy and hotspot-info lookups are.
type Client struct {
	rc      *request.Client
	tracker *tracker.Tracker
	baseURL string
	token   string
}

// New creates an eBird client. It fails when no API token is
// configured because every v2 endpoint requires one.
func New(cfg config.EBirdConfig, rc *request.Client, t *tracker.Tracker) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.ebird.org/v2"
	}
	return &Client{
		rc:      rc,
		tracker: t,
		baseURL: base,
		token:   cfg.Token,
	}, nil
}

// RecentObservations returns recent observations of any species in a
// region (e.g. "US-MA"), up to back days old. Provisional records are
// included; the constraint filter grades quality downstream.
func (c *Client) RecentObservations(ctx context.Context, regionCode string, back int) ([]Observation, error) {
	q := url.Values{}
	q.Set("back", fmt.Sprintf("%d", clampBack(back)))
	q.Set("includeProvisional", "true")
	u := fmt.Sprintf("%s/data/obs/%s/recent?%s", c.baseURL, url.PathEscape(regionCode), q.Encode())
	return c.getObservations(ctx, u)
}

// RecentNearbyObservations returns recent observations of any species
// within distKm of a point.
func (c *Client) RecentNearbyObservations(ctx context.Context, lat, lng float64, distKm float64, back int) ([]Observation, error) {
	q := nearbyQuery(lat, lng, distKm, back)
	u := fmt.Sprintf("%s/data/obs/geo/recent?%s", c.baseURL, q.Encode())
	return c.getObservations(ctx, u)
}

// RecentNearbySpeciesObservations returns recent observations of one
// species within distKm of a point. This is the primary Stage-2 call
// when the request carries a start location.
func (c *Client) RecentNearbySpeciesObservations(ctx context.Context, speciesCode string, lat, lng float64, distKm float64, back int) ([]Observation, error) {
	q := nearbyQuery(lat, lng, distKm, back)
	u := fmt.Sprintf("%s/data/obs/geo/recent/%s?%s", c.baseURL, url.PathEscape(speciesCode), q.Encode())
	return c.getObservations(ctx, u)
}

// SpeciesObservations returns recent observations of one species
// anywhere in a region. Used when no start location is given. hotspot
// is false so private locations come back too; the clusterer merges
// official hotspots on its own.
func (c *Client) SpeciesObservations(ctx context.Context, regionCode, speciesCode string, back int) ([]Observation, error) {
	q := url.Values{}
	q.Set("back", fmt.Sprintf("%d", clampBack(back)))
	q.Set("hotspot", "false")
	u := fmt.Sprintf("%s/data/obs/%s/recent/%s?%s", c.baseURL, url.PathEscape(regionCode), url.PathEscape(speciesCode), q.Encode())
	return c.getObservations(ctx, u)
}

// NearestSpeciesObservations returns the nearest recent observations of
// one species relative to a point, capped at maxResults.
func (c *Client) NearestSpeciesObservations(ctx context.Context, speciesCode string, lat, lng, distKm float64, back, maxResults int) ([]Observation, error) {
	q := nearbyQuery(lat, lng, distKm, back)
	if maxResults > 0 {
		if maxResults > MaxResults {
			maxResults = MaxResults
		}
		q.Set("maxResults", fmt.Sprintf("%d", maxResults))
	}
	u := fmt.Sprintf("%s/data/nearest/geo/recent/%s?%s", c.baseURL, url.PathEscape(speciesCode), q.Encode())
	return c.getObservations(ctx, u)
}

// RegionalHotspots returns all registered hotspots in a region.
func (c *Client) RegionalHotspots(ctx context.Context, regionCode string) ([]Hotspot, error) {
	u := fmt.Sprintf("%s/ref/hotspot/%s?fmt=json", c.baseURL, url.PathEscape(regionCode))
	return c.getHotspots(ctx, u)
}

// NearbyHotspots returns hotspots within distKm of a point.
func (c *Client) NearbyHotspots(ctx context.Context, lat, lng float64, distKm float64) ([]Hotspot, error) {
	q := url.Values{}
	q.Set("lat", formatCoord(lat))
	q.Set("lng", formatCoord(lng))
	q.Set("dist", fmt.Sprintf("%d", clampDist(distKm)))
	q.Set("fmt", "json")
	u := fmt.Sprintf("%s/ref/hotspot/geo?%s", c.baseURL, q.Encode())
	return c.getHotspots(ctx, u)
}

// HotspotInfo returns metadata for one hotspot. Responses are cached
// indefinitely; hotspot records rarely change.
func (c *Client) HotspotInfo(ctx context.Context, locID string) (*Hotspot, error) {
	u := fmt.Sprintf("%s/ref/hotspot/info/%s", c.baseURL, url.PathEscape(locID))
	body, err := c.get(ctx, u, "ebird_hotspot_info_"+locID)
	if err != nil {
		return nil, err
	}
	var h Hotspot
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("ebird: failed to parse hotspot info for %s: %w", locID, err)
	}
	// The info endpoint omits locId in some payloads.
	if h.LocID == "" {
		h.LocID = locID
	}
	return &h, nil
}

// Taxonomy returns the full eBird taxonomy. The response is several MB,
// so it is cached; the taxonomy changes only with annual updates.
func (c *Client) Taxonomy(ctx context.Context, locale string) ([]TaxonEntry, error) {
	if locale == "" {
		locale = "en"
	}
	q := url.Values{}
	q.Set("fmt", "json")
	q.Set("locale", locale)
	u := fmt.Sprintf("%s/ref/taxonomy/ebird?%s", c.baseURL, q.Encode())

	body, err := c.get(ctx, u, "ebird_taxonomy_"+locale)
	if err != nil {
		return nil, err
	}
	var entries []TaxonEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("ebird: failed to parse taxonomy: %w", err)
	}
	slog.Debug("Taxonomy loaded", "entries", len(entries), "locale", locale)
	return entries, nil
}

// RegionSpeciesList returns the species codes ever reported in a region.
func (c *Client) RegionSpeciesList(ctx context.Context, regionCode string) ([]string, error) {
	u := fmt.Sprintf("%s/product/spplist/%s", c.baseURL, url.PathEscape(regionCode))
	body, err := c.get(ctx, u, "ebird_spplist_"+regionCode)
	if err != nil {
		return nil, err
	}
	var codes []string
	if err := json.Unmarshal(body, &codes); err != nil {
		return nil, fmt.Errorf("ebird: failed to parse species list for %s: %w", regionCode, err)
	}
	return codes, nil
}

func (c *Client) getObservations(ctx context.Context, u string) ([]Observation, error) {
	body, err := c.get(ctx, u, "")
	if err != nil {
		return nil, err
	}
	var obs []Observation
	if err := json.Unmarshal(body, &obs); err != nil {
		return nil, fmt.Errorf("ebird: failed to parse observations: %w", err)
	}
	if len(obs) == 0 && c.tracker != nil {
		c.tracker.TrackAPIZero("ebird")
	}
	return obs, nil
}

func (c *Client) getHotspots(ctx context.Context, u string) ([]Hotspot, error) {
	body, err := c.get(ctx, u, "")
	if err != nil {
		return nil, err
	}
	var spots []Hotspot
	if err := json.Unmarshal(body, &spots); err != nil {
		return nil, fmt.Errorf("ebird: failed to parse hotspots: %w", err)
	}
	if len(spots) == 0 && c.tracker != nil {
		c.tracker.TrackAPIZero("ebird")
	}
	return spots, nil
}

func (c *Client) get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	headers := map[string]string{"X-eBirdApiToken": c.token}
	body, err := c.rc.GetWithHeaders(ctx, u, headers, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("ebird request failed: %w", err)
	}
	return body, nil
}

func nearbyQuery(lat, lng, distKm float64, back int) url.Values {
	q := url.Values{}
	q.Set("lat", formatCoord(lat))
	q.Set("lng", formatCoord(lng))
	q.Set("dist", fmt.Sprintf("%d", clampDist(distKm)))
	q.Set("back", fmt.Sprintf("%d", clampBack(back)))
	return q
}

// formatCoord renders a coordinate with the two-decimal precision the
// eBird docs ask for on geo queries.
func formatCoord(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func clampBack(back int) int {
	if back < 1 {
		return 1
	}
	if back > MaxBackDays {
		return MaxBackDays
	}
	return back
}

func clampDist(distKm float64) int {
	d := int(distKm)
	if distKm > float64(d) {
		d++ // round up so the radius never shrinks
	}
	if d < 1 {
		return 1
	}
	if d > MaxDistanceKm {
		return MaxDistanceKm
	}
	return d
}
