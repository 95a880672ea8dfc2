package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/poi-map/internal/adapter/http"
	"github.com/couchcryptid/poi-map/internal/cluster"
	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/loader"
	"github.com/couchcryptid/poi-map/internal/observability"
	"github.com/couchcryptid/poi-map/internal/session"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type staticData struct {
	ds *loader.Dataset
}

func (s staticData) Current() (*loader.Dataset, error) {
	if s.ds == nil {
		return nil, loader.ErrNotLoaded
	}
	return s.ds, nil
}

type mockGeocoder struct {
	places []domain.Place
	err    error
	last   domain.SearchQuery
}

func (m *mockGeocoder) Search(_ context.Context, q domain.SearchQuery) ([]domain.Place, error) {
	m.last = q
	return m.places, m.err
}

func testDataset() *loader.Dataset {
	primary := []domain.Record{
		{"lng": "-122.41941", "lat": "37.77492", "title": "Ferry Building", "localizability": "high", "img_uri": "https://img.example/ferry.jpg"},
		{"lng": "-122.41950", "lat": "37.77500", "title": "Pier 1", "localizability": "low"},
		{"lng": "2.35222", "lat": "48.85661", "title": "Notre Dame", "localizability": "medium"},
	}
	activated := domain.NewKeySet(primary[:1])
	features := domain.Classify(primary, activated, nil)
	fc, invalid := domain.Project(features)
	return &loader.Dataset{
		LoadID:     "load-1",
		Features:   features,
		Collection: fc,
		Index:      cluster.Build(fc, cluster.Options{MaxZoom: 12}),
		Invalid:    invalid,
	}
}

func testDeps(ds *loader.Dataset, readyErr error) httpadapter.Deps {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	return httpadapter.Deps{
		Ready:           &mockReadiness{err: readyErr},
		Data:            staticData{ds: ds},
		Sessions:        session.NewRegistry(100, time.Hour, 200*time.Millisecond, clock, logger, metrics),
		ClusterThrottle: session.NewThrottle(200*time.Millisecond, clock),
		Metrics:         metrics,
		Map:             domain.DefaultMapDefaults(),
		PublicURL:       "https://poi.example",
		MapboxToken:     "pk.test-token",
	}
}

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", testDeps(testDataset(), readyErr), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, srv http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzReturns200(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/readyz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(t, newTestServer(fmt.Errorf("not ready yet")), http.MethodGet, "/readyz", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestIndexPage(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/?lat=40.7&lng=-74&zoom=9&showmarker=1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	page := rec.Body.String()
	assert.Contains(t, page, "pk.test-token")
	assert.Contains(t, page, "dark-v10")
	assert.Contains(t, page, "mapbox-gl-js/v2.3.1")
	assert.NotContains(t, page, "\n  <meta", "page is minified")
}

func TestUnknownPathIs404(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPOIs(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/api/pois.geojson", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "load-1", rec.Header().Get("X-Load-Id"))

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, orb.Point{-122.41941, 37.77492}, fc.Features[0].Geometry)
	assert.Equal(t, "activated", fc.Features[0].Properties["status"])
	assert.Equal(t, domain.ColorActivated, fc.Features[0].Properties["color"])
}

func TestPOIs_NotLoaded(t *testing.T) {
	srv := httpadapter.NewServer(":0", testDeps(nil, nil), slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := do(t, srv, http.MethodGet, "/api/pois.geojson", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func clusterIDs(t *testing.T, srv http.Handler) []string {
	t.Helper()
	rec := do(t, srv, http.MethodGet, "/api/clusters?bbox=-180,-90,180,90&zoom=4.7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)

	var ids []string
	for _, f := range fc.Features {
		if f.Properties.MustBool(cluster.PropCluster, false) {
			ids = append(ids, f.Properties.MustString(cluster.PropClusterID))
		}
	}
	return ids
}

func TestClusters(t *testing.T) {
	srv := newTestServer(nil)
	rec := do(t, srv, http.MethodGet, "/api/clusters?bbox=-180,-90,180,90&zoom=4", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	var sawCluster bool
	for _, f := range fc.Features {
		if !f.Properties.MustBool(cluster.PropCluster, false) {
			continue
		}
		sawCluster = true
		assert.Equal(t, 2.0, f.Properties[cluster.PropPointCount])
		assert.Equal(t, "2", f.Properties[cluster.PropPointCountAbbrv])
		assert.Equal(t, domain.ColorMixed, f.Properties[domain.PropColor])
	}
	assert.True(t, sawCluster)
}

func TestClusters_RecolorIsThrottled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	deps := testDeps(testDataset(), nil)
	deps.ClusterThrottle = session.NewThrottle(200*time.Millisecond, clock)
	deps.Metrics = metrics
	srv := httpadapter.NewServer(":0", deps, slog.New(slog.NewTextHandler(io.Discard, nil)))
	target := "/api/clusters?bbox=-180,-90,180,90&zoom=4"

	first := do(t, srv, http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "true", first.Header().Get("X-Recolored"))

	clock.Advance(50 * time.Millisecond)
	second := do(t, srv, http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "false", second.Header().Get("X-Recolored"))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecolorRuns), "no recompute inside the window")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RecolorThrottled))

	fc, err := geojson.UnmarshalFeatureCollection(second.Body.Bytes())
	require.NoError(t, err)
	for _, f := range fc.Features {
		if f.Properties.MustBool(cluster.PropCluster, false) {
			assert.Equal(t, domain.ColorMixed, f.Properties[domain.PropColor], "throttled request serves cached colors")
		}
	}

	clock.Advance(150 * time.Millisecond)
	third := do(t, srv, http.MethodGet, target, nil)
	assert.Equal(t, "true", third.Header().Get("X-Recolored"))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RecolorRuns))
}

func TestClusters_NoCluster(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/api/clusters?bbox=-180,-90,180,90&zoom=4&nocluster=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, fc.Features, 3)
}

func TestClusters_BadRequest(t *testing.T) {
	srv := newTestServer(nil)
	for _, target := range []string{
		"/api/clusters?zoom=4",
		"/api/clusters?bbox=1,2,3&zoom=4",
		"/api/clusters?bbox=10,0,0,10&zoom=4",
		"/api/clusters?bbox=a,b,c,d&zoom=4",
		"/api/clusters?bbox=-180,-90,180,90",
		"/api/clusters?bbox=-180,-90,180,90&zoom=-1",
	} {
		rec := do(t, srv, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestLeaves(t *testing.T) {
	srv := newTestServer(nil)
	ids := clusterIDs(t, srv)
	require.Len(t, ids, 1)

	rec := do(t, srv, http.MethodGet, "/api/clusters/"+ids[0]+"/leaves?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ClusterID string            `json:"cluster_id"`
		Features  []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ids[0], body.ClusterID)
	assert.Len(t, body.Features, 1)

	rec = do(t, srv, http.MethodGet, "/api/clusters/"+ids[0]+"/leaves", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Features, 2)
}

func TestLeaves_Errors(t *testing.T) {
	srv := newTestServer(nil)
	ids := clusterIDs(t, srv)
	require.NotEmpty(t, ids)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/clusters/z4:zzzz/leaves", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/clusters/p2/leaves", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/clusters/"+ids[0]+"/leaves?limit=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/clusters/"+ids[0]+"/leaves?offset=x", nil).Code)

	rec := do(t, srv, http.MethodGet, "/api/clusters/"+ids[0]+"/leaves?limit=9223372036854775807&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Features []json.RawMessage `json:"features"`
	}](t, rec)
	assert.Len(t, body.Features, 1)
}

func TestExpansionZoom(t *testing.T) {
	srv := newTestServer(nil)
	ids := clusterIDs(t, srv)
	require.Len(t, ids, 1)

	rec := do(t, srv, http.MethodGet, "/api/clusters/"+ids[0]+"/expansion-zoom", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		ClusterID string `json:"cluster_id"`
		Zoom      int    `json:"zoom"`
	}](t, rec)
	assert.Equal(t, ids[0], body.ClusterID)
	assert.Equal(t, 13, body.Zoom, "points a few meters apart only separate past the max cluster zoom")

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/clusters/z4:zzzz/expansion-zoom", nil).Code)
}

func createSession(t *testing.T, srv http.Handler, query string) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/sessions?"+query, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode[map[string]any](t, rec)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestSessions_CreateParsesOptions(t *testing.T) {
	srv := newTestServer(nil)
	rec := do(t, srv, http.MethodPost, "/api/sessions?lat=40.7&lng=-74&zoom=9&nocluster=1&gc=0", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		ID      string             `json:"id"`
		Options domain.ViewOptions `json:"options"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, orb.Point{-74, 40.7}, body.Options.Center)
	assert.Equal(t, 9.0, body.Options.Zoom)
	assert.True(t, body.Options.NoCluster)
	assert.False(t, body.Options.Geocoder)
}

func TestSessions_HoverAndLeave(t *testing.T) {
	srv := newTestServer(nil)
	id := createSession(t, srv, "")
	base := "/api/sessions/" + id

	rec := do(t, srv, http.MethodPost, base+"/hover", map[string]int{"id": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hovered":0,"previous":null}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, base+"/hover", map[string]int{"id": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hovered":1,"previous":0}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, base+"/leave", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hovered":null,"previous":1}`, rec.Body.String())
}

func TestSessions_HoverBadBody(t *testing.T) {
	srv := newTestServer(nil)
	base := "/api/sessions/" + createSession(t, srv, "")

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, base+"/hover", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, base+"/hover", map[string]int{"id": -1}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, base+"/hover", map[string]string{"x": "y"}).Code)
}

func TestSessions_Click(t *testing.T) {
	srv := newTestServer(nil)
	base := "/api/sessions/" + createSession(t, srv, "")

	rec := do(t, srv, http.MethodPost, base+"/click", map[string]int{"id": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	popup := decode[domain.Popup](t, rec)
	assert.Equal(t, "Ferry Building", popup.Title)
	assert.Equal(t, "High", popup.Localizability)
	assert.Contains(t, popup.HTML, `src="https://img.example/ferry.jpg"`)

	rec = do(t, srv, http.MethodPost, base+"/click", map[string]int{"id": 99})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessions_Viewport(t *testing.T) {
	srv := newTestServer(nil)
	base := "/api/sessions/" + createSession(t, srv, "")
	req := map[string]any{"bbox": []float64{-180, -90, 180, 90}, "zoom": 4.2}

	rec := do(t, srv, http.MethodPost, base+"/viewport", req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Recolored      bool            `json:"recolored"`
		RecolorPending bool            `json:"recolor_pending"`
		LoadID         string          `json:"load_id"`
		Features       json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Recolored)
	assert.False(t, body.RecolorPending)
	assert.Equal(t, "load-1", body.LoadID)
	fc, err := geojson.UnmarshalFeatureCollection(body.Features)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)

	rec = do(t, srv, http.MethodPost, base+"/viewport", req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Recolored, "second call inside the throttle window")
	assert.True(t, body.RecolorPending)
}

func TestSessions_ViewportBadRequest(t *testing.T) {
	srv := newTestServer(nil)
	base := "/api/sessions/" + createSession(t, srv, "")

	for _, req := range []map[string]any{
		{"bbox": []float64{1, 2, 3}, "zoom": 4},
		{"bbox": []float64{10, 0, 0, 10}, "zoom": 4},
		{"bbox": []float64{-180, -90, 180, 90}, "zoom": -2},
	} {
		rec := do(t, srv, http.MethodPost, base+"/viewport", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, req)
	}
}

func TestSessions_Unknown(t *testing.T) {
	srv := newTestServer(nil)

	for _, path := range []string{"hover", "leave", "click", "viewport"} {
		rec := do(t, srv, http.MethodPost, "/api/sessions/missing/"+path, map[string]int{"id": 0})
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, rec.Body.String(), session.ErrSessionNotFound.Error())
	}
}

func TestGeocode_Disabled(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/api/geocode?q=austin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGeocode(t *testing.T) {
	geo := &mockGeocoder{places: []domain.Place{{Name: "Austin, Texas", Text: "Austin", Center: orb.Point{-97.74, 30.27}, Relevance: 1}}}
	deps := testDeps(testDataset(), nil)
	deps.Geocoder = geo
	srv := httpadapter.NewServer(":0", deps, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := do(t, srv, http.MethodGet, "/api/geocode?q=austin&limit=3&proximity=-97.5,30.1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Places []domain.Place `json:"places"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Places, 1)
	assert.Equal(t, "Austin, Texas", body.Places[0].Name)
	assert.Equal(t, 3, geo.last.Limit)
	require.NotNil(t, geo.last.Proximity)
	assert.Equal(t, orb.Point{-97.5, 30.1}, *geo.last.Proximity)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/geocode?q=", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/geocode?q=a&proximity=x", nil).Code)

	geo.err = errors.New("upstream down")
	assert.Equal(t, http.StatusBadGateway, do(t, srv, http.MethodGet, "/api/geocode?q=austin", nil).Code)
}

func TestShareQR(t *testing.T) {
	rec := do(t, newTestServer(nil), http.MethodGet, "/api/share.png?lat=37.7749&lng=-122.4194&zoom=12&size=128", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	link := rec.Header().Get("X-Share-Url")
	assert.True(t, strings.HasPrefix(link, "https://poi.example/?"), link)
	assert.Contains(t, link, "showmarker=1")
	assert.Contains(t, link, "lat=37.774900")
	assert.Contains(t, link, "zoom=12")
}

func TestShareQR_BadRequest(t *testing.T) {
	srv := newTestServer(nil)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/share.png?lat=1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/share.png?lat=1&lng=2&size=5", nil).Code)
}
