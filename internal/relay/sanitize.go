package relay

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// -------------------------------------------------------------------------
// Bounds
// -------------------------------------------------------------------------

// String caps for route uploads. Oversized values are truncated, not
// rejected, matching the forgiving ingest the clients rely on.
const (
	maxRouteIDLen    = 40
	maxRouteNameLen  = 64
	maxRouteColorLen = 32
	maxPointIDLen    = 40
	maxPointNameLen  = 48

	// maxLabelLen caps client-chosen display labels.
	maxLabelLen = 24

	// maxChatLen caps chat message text.
	maxChatLen = 500
)

// Limits bounds route uploads per client.
type Limits struct {
	// MaxRoutesPerClient is the per-client route cap; excess routes
	// are truncated.
	MaxRoutesPerClient int

	// MaxRoutePoints is the per-route point cap; excess items are
	// truncated.
	MaxRoutePoints int
}

// DefaultLimits returns the stock route bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxRoutesPerClient: 8,
		MaxRoutePoints:     80,
	}
}

// normalized returns the limits with nonpositive values replaced by
// defaults.
func (l Limits) normalized() Limits {
	d := DefaultLimits()
	if l.MaxRoutesPerClient < 1 {
		l.MaxRoutesPerClient = d.MaxRoutesPerClient
	}
	if l.MaxRoutePoints < 1 {
		l.MaxRoutePoints = d.MaxRoutePoints
	}
	return l
}

// -------------------------------------------------------------------------
// Numeric Coercion
// -------------------------------------------------------------------------

// toFinite coerces a decoded JSON value to a finite float64. Accepts
// numbers and numeric strings; everything else fails.
func toFinite(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// capString trims whitespace and truncates to at most n runes.
func capString(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}

// SanitizeLabel bounds a client-supplied display label. Returns the
// empty string when nothing usable remains.
func SanitizeLabel(s string) string {
	return capString(s, maxLabelLen)
}

// -------------------------------------------------------------------------
// Location Fixes
// -------------------------------------------------------------------------

// SanitizeLocation validates a raw location payload. Lat and lng must
// coerce to finite numbers or the fix is rejected. Accuracy is kept
// only when numeric. Timestamp defaults to the server clock when
// absent or non-numeric.
func SanitizeLocation(raw json.RawMessage, now time.Time) (*Location, bool) {
	var in struct {
		Lat       any `json:"lat"`
		Lng       any `json:"lng"`
		Accuracy  any `json:"accuracy"`
		Timestamp any `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, false
	}

	lat, ok := toFinite(in.Lat)
	if !ok {
		return nil, false
	}
	lng, ok := toFinite(in.Lng)
	if !ok {
		return nil, false
	}

	loc := &Location{
		Lat:       lat,
		Lng:       lng,
		Timestamp: now.UnixMilli(),
	}

	if acc, ok := toFinite(in.Accuracy); ok {
		loc.Accuracy = &acc
	}
	if ts, ok := toFinite(in.Timestamp); ok {
		loc.Timestamp = int64(ts)
	}

	return loc, true
}

// -------------------------------------------------------------------------
// Routes
// -------------------------------------------------------------------------

// SanitizeRoutes validates a raw routes payload. Non-list input is
// rejected outright. Routes beyond the per-client cap are truncated;
// items beyond the per-route cap are truncated; invalid items and
// routes with zero valid items are silently dropped. The returned
// slice is never nil when ok is true.
func SanitizeRoutes(raw json.RawMessage, limits Limits) ([]Route, bool) {
	limits = limits.normalized()

	var in []json.RawMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, false
	}
	if in == nil {
		// JSON null decodes to a nil slice without error; it is not a list.
		return nil, false
	}

	if len(in) > limits.MaxRoutesPerClient {
		in = in[:limits.MaxRoutesPerClient]
	}

	routes := make([]Route, 0, len(in))
	for _, rawRoute := range in {
		if r, ok := sanitizeRoute(rawRoute, limits.MaxRoutePoints); ok {
			routes = append(routes, r)
		}
	}
	return routes, true
}

// sanitizeRoute validates a single route entry. A route needs a
// non-empty id and at least one valid item to survive.
func sanitizeRoute(raw json.RawMessage, maxPoints int) (Route, bool) {
	var in struct {
		ID    any               `json:"id"`
		Name  any               `json:"name"`
		Color any               `json:"color"`
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return Route{}, false
	}

	id := capString(toStr(in.ID), maxRouteIDLen)
	if id == "" {
		return Route{}, false
	}

	items := in.Items
	if len(items) > maxPoints {
		items = items[:maxPoints]
	}

	pts := make([]RoutePoint, 0, len(items))
	for _, rawItem := range items {
		if p, ok := sanitizeRoutePoint(rawItem); ok {
			pts = append(pts, p)
		}
	}
	if len(pts) == 0 {
		return Route{}, false
	}

	return Route{
		ID:    id,
		Name:  capString(toStr(in.Name), maxRouteNameLen),
		Color: capString(toStr(in.Color), maxRouteColorLen),
		Items: pts,
	}, true
}

// sanitizeRoutePoint validates a single route item. An item needs a
// non-empty id and a finite position.
func sanitizeRoutePoint(raw json.RawMessage) (RoutePoint, bool) {
	var in struct {
		ID       any `json:"id"`
		Name     any `json:"name"`
		Position struct {
			Lat any `json:"lat"`
			Lng any `json:"lng"`
		} `json:"position"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return RoutePoint{}, false
	}

	id := capString(toStr(in.ID), maxPointIDLen)
	if id == "" {
		return RoutePoint{}, false
	}

	lat, ok := toFinite(in.Position.Lat)
	if !ok {
		return RoutePoint{}, false
	}
	lng, ok := toFinite(in.Position.Lng)
	if !ok {
		return RoutePoint{}, false
	}

	return RoutePoint{
		ID:       id,
		Name:     capString(toStr(in.Name), maxPointNameLen),
		Position: RoutePosition{Lat: lat, Lng: lng},
	}, true
}

// toStr renders a decoded JSON scalar as a string. Non-scalars come
// back empty.
func toStr(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

// -------------------------------------------------------------------------
// Content Hashes
// -------------------------------------------------------------------------

// RouteHash computes the content hash of a sanitized route list: SHA-1
// over its canonical JSON, base64-encoded. Identical uploads dedupe on
// it. An empty list hashes to the empty string, the same as "no
// routes".
func RouteHash(routes []Route) string {
	if len(routes) == 0 {
		return ""
	}
	data, err := json.Marshal(routes)
	if err != nil {
		// Marshal of sanitized plain structs cannot fail; treat as no
		// content rather than poisoning dedup state.
		return ""
	}
	sum := sha1.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}
