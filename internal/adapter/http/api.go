package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/poi-map/internal/cluster"
	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/couchcryptid/poi-map/internal/loader"
	"github.com/couchcryptid/poi-map/internal/session"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// defaultLeafLimit matches the map library's default page size.
const defaultLeafLimit = 10

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 16

type featureRequest struct {
	ID *int `json:"id"`
}

type viewportRequest struct {
	BBox []float64 `json:"bbox"` // [west, south, east, north]
	Zoom float64   `json:"zoom"`
}

type sessionResponse struct {
	ID      string             `json:"id"`
	Options domain.ViewOptions `json:"options"`
}

type hoverResponse struct {
	Hovered  *int `json:"hovered"`
	Previous *int `json:"previous"`
}

type viewportResponse struct {
	Recolored      bool                       `json:"recolored"`
	RecolorPending bool                       `json:"recolor_pending"`
	LoadID         string                     `json:"load_id"`
	Features       *geojson.FeatureCollection `json:"features"`
}

type expansionZoomResponse struct {
	ClusterID string `json:"cluster_id"`
	Zoom      int    `json:"zoom"`
}

type leavesResponse struct {
	ClusterID string             `json:"cluster_id"`
	Features  []*geojson.Feature `json:"features"`
}

func (s *Server) handlePOIs(w http.ResponseWriter, _ *http.Request) {
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("X-Load-Id", ds.LoadID)
	json.NewEncoder(w).Encode(ds.Collection) //nolint:errcheck // client may have gone away
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	bound, err := parseBBox(q.Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zoom, err := parseZoom(q.Get("zoom"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	clusters := ds.Index.Clusters(bound, zoom, q.Get("nocluster") != "1")
	colors, recolored := s.colors.lookup(ds.Index, clusters)
	w.Header().Set("X-Load-Id", ds.LoadID)
	w.Header().Set("X-Recolored", strconv.FormatBool(recolored))
	writeJSON(w, http.StatusOK, ds.Index.Features(clusters, colors))
}

func (s *Server) handleLeaves(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultLeafLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	id := r.PathValue("id")
	leaves, err := ds.Index.Leaves(id, limit, offset)
	switch {
	case errors.Is(err, cluster.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, cluster.ErrClusterNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, leavesResponse{ClusterID: id, Features: leaves})
}

func (s *Server) handleExpansionZoom(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	id := r.PathValue("id")
	zoom, err := ds.Index.ExpansionZoom(id)
	switch {
	case errors.Is(err, cluster.ErrClusterNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, expansionZoomResponse{ClusterID: id, Zoom: zoom})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	opts := domain.ParseViewOptions(r.URL.Query(), s.deps.Map)
	sess := s.deps.Sessions.Create(opts)
	writeJSON(w, http.StatusCreated, sessionResponse{ID: sess.ID, Options: sess.Options})
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	id, ok := s.featureID(w, r)
	if !ok {
		return
	}
	resp := hoverResponse{Hovered: &id}
	if prev, had := sess.Hover(id); had {
		resp.Previous = &prev
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var resp hoverResponse
	if prev, had := sess.Leave(); had {
		resp.Previous = &prev
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	id, ok := s.featureID(w, r)
	if !ok {
		return
	}
	popup, err := sess.Click(ds.Index, id)
	switch {
	case errors.Is(err, session.ErrFeatureNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Error("render popup failed", "feature", id, "error", err)
		writeError(w, http.StatusInternalServerError, "render popup failed")
		return
	}
	writeJSON(w, http.StatusOK, popup)
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	ds, ok := s.dataset(w)
	if !ok {
		return
	}
	var req viewportRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.BBox) != 4 {
		writeError(w, http.StatusBadRequest, "bbox must have 4 numbers")
		return
	}
	bound, err := boundOf(req.BBox[0], req.BBox[1], req.BBox[2], req.BBox[3])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Zoom < 0 || math.IsNaN(req.Zoom) {
		writeError(w, http.StatusBadRequest, "invalid zoom")
		return
	}

	vp, err := sess.Viewport(r.Context(), ds.Index, bound, int(req.Zoom))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, viewportResponse{
		Recolored:      vp.Recolored,
		RecolorPending: vp.RecolorPending,
		LoadID:         ds.LoadID,
		Features:       vp.Features,
	})
}

// dataset writes 503 when nothing has loaded yet.
func (s *Server) dataset(w http.ResponseWriter) (*loader.Dataset, bool) {
	ds, err := s.deps.Data.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	return ds, true
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

func (s *Server) featureID(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req featureRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if req.ID == nil || *req.ID < 0 {
		writeError(w, http.StatusBadRequest, "feature id is required")
		return 0, false
	}
	return *req.ID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// parseBBox reads "west,south,east,north".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, errors.New("bbox must be west,south,east,north")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bbox value %q", p)
		}
		v[i] = f
	}
	return boundOf(v[0], v[1], v[2], v[3])
}

func boundOf(west, south, east, north float64) (orb.Bound, error) {
	for _, f := range []float64{west, south, east, north} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return orb.Bound{}, errors.New("bbox values must be finite")
		}
	}
	if west > east || south > north {
		return orb.Bound{}, errors.New("bbox min must not exceed max")
	}
	return orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{east, north}}, nil
}

// parseZoom floors fractional zoom levels.
func parseZoom(s string) (int, error) {
	z, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || z < 0 || math.IsInf(z, 0) {
		return 0, errors.New("invalid zoom")
	}
	return int(z), nil
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
