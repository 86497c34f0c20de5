package handler

import (
	"bytes"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"flightmap/internal/domain"
	"flightmap/internal/geo"
	"flightmap/internal/render"
	"flightmap/internal/session"
)

const contentTypeMsgpack = "application/msgpack"

// lodSession prepares a point-rendering session for the request. It writes
// the error response itself and returns nil on failure.
func (h *HTTPHandler) lodSession(w http.ResponseWriter, r *http.Request) *session.Session {
	if !render.Supported(h.sessions.Surface) {
		respondError(w, http.StatusNotImplemented, session.ErrLODUnsupported.Error())
		return nil
	}
	snap, ok := h.snapshot(w)
	if !ok {
		return nil
	}

	q := r.URL.Query()
	filters, err := parseFilters(q)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	viewport, err := parseViewport(q)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil
	}
	if viewport == nil {
		respondError(w, http.StatusBadRequest, "viewport needs lat, lng, zoom, width and height")
		return nil
	}

	s := session.New("lod", h.sessions, h.logger)
	s.Refresh(snap)
	s.SetFilters(filters)
	if err := s.SetViewport(*viewport); err != nil {
		s.Close()
		respondError(w, http.StatusBadRequest, err.Error())
		return nil
	}

	settings := h.sessions.DefaultSettings()
	settings.LOD = true
	if err := s.SetSettings(settings); err != nil {
		s.Close()
		h.logger.Warn("point rendering failed", "error", err)
		respondError(w, http.StatusNotImplemented, err.Error())
		return nil
	}
	return s
}

// GetFrame renders the point frame for a viewport, as JSON or msgpack.
func (h *HTTPHandler) GetFrame(w http.ResponseWriter, r *http.Request) {
	s := h.lodSession(w, r)
	if s == nil {
		return
	}
	defer s.Close()

	frame, ok := s.Frame()
	if !ok {
		respondError(w, http.StatusNotImplemented, session.ErrLODUnsupported.Error())
		return
	}
	if !wantsMsgpack(r) {
		respondJSON(w, http.StatusOK, frame)
		return
	}

	data, err := msgpack.Marshal(&frame)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encoding frame: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", contentTypeMsgpack)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetFrameImage renders the point frame as a PNG.
func (h *HTTPHandler) GetFrameImage(w http.ResponseWriter, r *http.Request) {
	s := h.lodSession(w, r)
	if s == nil {
		return
	}
	defer s.Close()

	img, ok := s.Image()
	if !ok {
		respondError(w, http.StatusNotImplemented, "surface keeps no image")
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		respondError(w, http.StatusInternalServerError, "encoding image: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type HitResponse struct {
	Hit    bool                  `json:"hit"`
	Flight *domain.AircraftPoint `json:"flight,omitempty"`
}

// HitTest resolves a click at pixel x,y of the viewport. A miss is not an
// error.
func (h *HTTPHandler) HitTest(w http.ResponseWriter, r *http.Request) {
	x, errX := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
	y, errY := strconv.ParseFloat(r.URL.Query().Get("y"), 64)
	if errX != nil || errY != nil {
		respondError(w, http.StatusBadRequest, "invalid x or y parameter")
		return
	}

	s := h.lodSession(w, r)
	if s == nil {
		return
	}
	defer s.Close()

	p, ok := s.Click(geo.Point{X: x, Y: y})
	if !ok {
		respondJSON(w, http.StatusOK, HitResponse{})
		return
	}
	respondJSON(w, http.StatusOK, HitResponse{Hit: true, Flight: &p})
}

func wantsMsgpack(r *http.Request) bool {
	if r.URL.Query().Get("format") == "msgpack" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), contentTypeMsgpack)
}
