package http

import (
	"bytes"
	"html/template"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/paulmach/orb"
	"github.com/skip2/go-qrcode"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

// QR image size bounds in pixels.
const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// pageConfig is handed to the page script as JSON.
type pageConfig struct {
	Token          string    `json:"token"`
	Style          string    `json:"style"`
	Center         orb.Point `json:"center"`
	Zoom           float64   `json:"zoom"`
	ShowMarker     bool      `json:"showMarker"`
	Cluster        bool      `json:"cluster"`
	ClusterMaxZoom int       `json:"clusterMaxZoom"`
	Geocoder       bool      `json:"geocoder"`
	CacheBust      string    `json:"cacheBust,omitempty"`
	Query          string    `json:"query"`
	RecolorMs      int64     `json:"recolorMs"`
}

type pageData struct {
	Title  string
	Config pageConfig
}

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return m
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	opts := domain.ParseViewOptions(r.URL.Query(), s.deps.Map)
	data := pageData{
		Title: "POI Map",
		Config: pageConfig{
			Token:          s.deps.MapboxToken,
			Style:          "mapbox://styles/mapbox/" + s.deps.Map.Style,
			Center:         opts.Center,
			Zoom:           opts.Zoom,
			ShowMarker:     opts.ShowMarker,
			Cluster:        !opts.NoCluster,
			ClusterMaxZoom: s.deps.Map.ClusterMaxZoom,
			Geocoder:       opts.Geocoder && s.deps.Geocoder != nil,
			CacheBust:      opts.CacheBust,
			Query:          r.URL.RawQuery,
			RecolorMs:      s.colors.throttle.Interval().Milliseconds() + 1,
		},
	}

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, data); err != nil {
		s.logger.Error("render index failed", "error", err)
		writeError(w, http.StatusInternalServerError, "render page failed")
		return
	}
	page, err := s.minifier.Bytes("text/html", buf.Bytes())
	if err != nil {
		s.logger.Warn("minify index failed, serving as rendered", "error", err)
		page = buf.Bytes()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// handleShare renders a QR code linking to the map at the requested view.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !domain.ParseCoordinate(q.Get("lng"), q.Get("lat")).Valid {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}
	size := defaultQRSize
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minQRSize || n > maxQRSize {
			writeError(w, http.StatusBadRequest, "invalid size")
			return
		}
		size = n
	}

	opts := domain.ParseViewOptions(q, s.deps.Map)
	opts.ShowMarker = true
	link := strings.TrimRight(s.deps.PublicURL, "/") + "/?" + opts.Query().Encode()

	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		s.logger.Error("encode share qr failed", "error", err)
		writeError(w, http.StatusInternalServerError, "encode qr failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Share-Url", link)
	_, _ = w.Write(png)
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if s.deps.Geocoder == nil {
		writeError(w, http.StatusNotFound, "geocoding is disabled")
		return
	}
	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	query := domain.SearchQuery{Text: text, Limit: limit}
	if p := q.Get("proximity"); p != "" {
		lng, lat, _ := strings.Cut(p, ",")
		c := domain.ParseCoordinate(lng, lat)
		if !c.Valid {
			writeError(w, http.StatusBadRequest, "invalid proximity")
			return
		}
		query.Proximity = &orb.Point{c.Lng, c.Lat}
	}

	places, err := s.deps.Geocoder.Search(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusBadGateway, "geocoding failed")
		return
	}
	if places == nil {
		places = []domain.Place{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"places": places})
}

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <meta name="viewport" content="initial-scale=1,maximum-scale=1,user-scalable=no">
  <link href="https://api.mapbox.com/mapbox-gl-js/v2.3.1/mapbox-gl.css" rel="stylesheet">
  <script src="https://api.mapbox.com/mapbox-gl-js/v2.3.1/mapbox-gl.js"></script>
  <style>
    body { margin: 0; padding: 0; }
    #map { position: absolute; top: 0; bottom: 0; width: 100%; }
    #search { position: absolute; top: 10px; left: 10px; z-index: 1; }
    #search input { width: 240px; padding: 6px 8px; border-radius: 4px; border: 0; }
    #results { list-style: none; margin: 4px 0 0; padding: 0; background: #fff; border-radius: 4px; }
    #results li { padding: 6px 8px; cursor: pointer; font: 13px sans-serif; }
    #results li:hover { background: #eee; }
  </style>
</head>
<body>
<div id="map"></div>
<div id="search" hidden>
  <input id="q" type="search" placeholder="Search places">
  <ul id="results"></ul>
</div>
<script>
(function () {
  var cfg = {{.Config}};
  var suffix = cfg.cacheBust ? "?cb=" + encodeURIComponent(cfg.cacheBust) : "";
  var sessionId = null;
  var hovered = null;

  mapboxgl.accessToken = cfg.token;
  var map = new mapboxgl.Map({ container: "map", style: cfg.style, center: cfg.center, zoom: cfg.zoom });
  map.addControl(new mapboxgl.NavigationControl());
  if (cfg.showMarker) {
    new mapboxgl.Marker().setLngLat(cfg.center).addTo(map);
  }

  function post(path, body) {
    return fetch("/api/sessions/" + sessionId + path + suffix, {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify(body || {})
    }).then(function (r) { return r.json(); });
  }

  var retry = null;
  function refresh() {
    if (!sessionId) { return; }
    clearTimeout(retry);
    var b = map.getBounds();
    post("/viewport", { bbox: [b.getWest(), b.getSouth(), b.getEast(), b.getNorth()], zoom: map.getZoom() })
      .then(function (resp) {
        map.getSource("pois").setData(resp.features);
        if (resp.recolor_pending) { retry = setTimeout(refresh, cfg.recolorMs); }
      });
  }

  map.on("load", function () {
    map.addSource("pois", { type: "geojson", data: { type: "FeatureCollection", features: [] } });
    map.addLayer({
      id: "clusters", type: "circle", source: "pois", filter: ["has", "point_count"],
      paint: {
        "circle-color": ["get", "color"],
        "circle-radius": ["step", ["get", "point_count"], 15, 10, 20, 50, 25, 100, 30]
      }
    });
    map.addLayer({
      id: "cluster-count", type: "symbol", source: "pois", filter: ["has", "point_count"],
      layout: { "text-field": ["get", "point_count_abbreviated"], "text-size": 12 }
    });
    map.addLayer({
      id: "unclustered-point", type: "circle", source: "pois", filter: ["!", ["has", "point_count"]],
      paint: {
        "circle-color": ["get", "color"],
        "circle-radius": ["case", ["boolean", ["feature-state", "hover"], false], 10, 6],
        "circle-stroke-width": 1,
        "circle-stroke-color": "#fff"
      }
    });

    map.on("mouseenter", "unclustered-point", function (e) {
      map.getCanvas().style.cursor = "pointer";
      var id = e.features[0].id;
      if (hovered !== null) { map.setFeatureState({ source: "pois", id: hovered }, { hover: false }); }
      hovered = id;
      map.setFeatureState({ source: "pois", id: id }, { hover: true });
      post("/hover", { id: id });
    });
    map.on("mouseleave", "unclustered-point", function () {
      map.getCanvas().style.cursor = "";
      if (hovered !== null) { map.setFeatureState({ source: "pois", id: hovered }, { hover: false }); }
      hovered = null;
      post("/leave");
    });
    map.on("click", "unclustered-point", function (e) {
      var coords = e.features[0].geometry.coordinates.slice();
      post("/click", { id: e.features[0].id }).then(function (p) {
        new mapboxgl.Popup().setLngLat(coords).setHTML(p.html).addTo(map);
      });
    });
    map.on("click", "clusters", function (e) {
      var f = e.features[0];
      fetch("/api/clusters/" + encodeURIComponent(f.properties.cluster_id) + "/expansion-zoom" + suffix)
        .then(function (r) { return r.json(); })
        .then(function (resp) { map.easeTo({ center: f.geometry.coordinates, zoom: resp.zoom }); });
    });
    map.on("moveend", refresh);

    fetch("/api/sessions?" + cfg.query, { method: "POST" })
      .then(function (r) { return r.json(); })
      .then(function (s) { sessionId = s.id; refresh(); });
  });

  if (cfg.geocoder) {
    var box = document.getElementById("search");
    var input = document.getElementById("q");
    var list = document.getElementById("results");
    box.hidden = false;
    input.addEventListener("change", function () {
      var c = map.getCenter();
      fetch("/api/geocode?q=" + encodeURIComponent(input.value) + "&proximity=" + c.lng + "," + c.lat)
        .then(function (r) { return r.json(); })
        .then(function (resp) {
          list.innerHTML = "";
          (resp.places || []).forEach(function (p) {
            var li = document.createElement("li");
            li.textContent = p.place_name;
            li.addEventListener("click", function () { map.flyTo({ center: p.center, zoom: 14 }); list.innerHTML = ""; });
            list.appendChild(li);
          });
        });
    });
  }
})();
</script>
</body>
</html>
`
