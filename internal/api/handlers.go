package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/aeroview-data/flight.report/internal/httputil"
	"github.com/aeroview-data/flight.report/internal/markers"
	"github.com/aeroview-data/flight.report/internal/playback"
	"github.com/aeroview-data/flight.report/internal/replay"
	"github.com/aeroview-data/flight.report/internal/security"
)

// initResponse is the payload of GET /init: the data summary plus
// everything the frontend preloads in one round trip.
type initResponse struct {
	Success      bool               `json:"success"`
	Summary      replay.Summary     `json:"summary"`
	Bounds       *replay.Bounds     `json:"bounds"`
	Columns      replay.Columnar    `json:"columns"`
	TakeoffIndex int                `json:"takeoff_index"`
	Markers      []markers.Marker   `json:"markers"`
	External     externalStreamInfo `json:"external"`
}

type externalStreamInfo struct {
	HasAnchorMap bool    `json:"has_anchor_map"`
	AnchorCount  int     `json:"anchor_count"`
	Anchors      any     `json:"anchors,omitempty"`
	Offset       float64 `json:"start_offset"`
}

// anchorPreloadLimit caps how many anchors are shipped to the client
// for local interpolation.
const anchorPreloadLimit = 2000

// handleInit (re)builds the telemetry store and returns the preload
// bundle.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("data_file")
	if path != "" {
		if s.dataDir == "" {
			httputil.BadRequest(w, "data_file override not permitted")
			return
		}
		if err := security.ValidatePathWithinDirectory(path, s.dataDir); err != nil {
			httputil.BadRequest(w, "data_file outside data directory")
			return
		}
	}
	summary, err := s.engine.InitializeConfigured(path)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load data: %v", err))
		return
	}

	cols, err := s.engine.FullColumns()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	ms, err := s.markers.List()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list markers: %v", err))
		return
	}

	// Takeoff marker drives where the frontend positions its initial
	// cursor; fall back to the start of the timeline.
	takeoffIndex := 0
	if m, ok, err := s.markers.Get(0); err == nil && ok {
		if idx, err := s.engine.NearestIndex(m.Seconds); err == nil {
			takeoffIndex = idx
		}
	}

	mapper := s.engine.Mapper()
	ext := externalStreamInfo{
		HasAnchorMap: mapper.Available(),
		AnchorCount:  mapper.Len(),
		Offset:       s.engine.Offset(),
	}
	if mapper.Available() {
		ext.Anchors = mapper.Anchors(anchorPreloadLimit)
	}

	httputil.WriteJSONOK(w, initResponse{
		Success:      true,
		Summary:      summary,
		Bounds:       cols.Bounds,
		Columns:      cols,
		TakeoffIndex: takeoffIndex,
		Markers:      ms,
		External:     ext,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{
		"initialized": s.engine.Initialized(),
		"count":       s.engine.Count(),
		"playback":    s.engine.Status(),
	})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	index, err := pathInt(r, "index")
	if err != nil {
		httputil.BadRequest(w, "invalid index")
		return
	}
	sample, err := s.engine.SampleAt(index)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, sample.API())
}

func (s *Server) handleFindIndex(w http.ResponseWriter, r *http.Request) {
	seconds, err := pathFloat(r, "seconds")
	if err != nil {
		httputil.BadRequest(w, "invalid timestamp")
		return
	}
	index, err := s.engine.NearestIndex(seconds)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"success": true, "index": index, "timestamp": seconds})
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	start, err := pathInt(r, "start")
	if err != nil {
		httputil.BadRequest(w, "invalid start index")
		return
	}
	end, err := pathInt(r, "end")
	if err != nil {
		httputil.BadRequest(w, "invalid end index")
		return
	}

	points, effectiveEnd, err := s.engine.PathRange(start, end)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"success":     true,
		"path":        points,
		"start_index": start,
		"end_index":   effectiveEnd,
	})
}

func (s *Server) handleVideoTime(w http.ResponseWriter, r *http.Request) {
	seconds, err := pathFloat(r, "seconds")
	if err != nil {
		httputil.BadRequest(w, "invalid timestamp")
		return
	}
	videoTime, usedOffset := s.engine.ToExternalTime(seconds)
	httputil.WriteJSONOK(w, map[string]any{
		"success":      true,
		"video_time":   videoTime,
		"using_offset": usedOffset,
	})
}

func (s *Server) handleDataTimestamp(w http.ResponseWriter, r *http.Request) {
	seconds, err := pathFloat(r, "seconds")
	if err != nil {
		httputil.BadRequest(w, "invalid timestamp")
		return
	}
	dataTime, usedOffset := s.engine.ToTelemetryTime(seconds)
	httputil.WriteJSONOK(w, map[string]any{
		"success":        true,
		"data_timestamp": dataTime,
		"using_offset":   usedOffset,
	})
}

// handleDataForVideoTime resolves the telemetry sample that was being
// captured at the given external (video) time.
func (s *Server) handleDataForVideoTime(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("video_time")
	if raw == "" {
		httputil.BadRequest(w, "video_time parameter required")
		return
	}
	videoTime, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid video_time")
		return
	}

	sample, dataTime, err := s.engine.SampleForExternalTime(videoTime)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	httputil.WriteJSONOK(w, map[string]any{
		"success":        true,
		"data":           sample.API(),
		"index":          sample.Index,
		"video_time":     videoTime,
		"data_timestamp": dataTime,
	})
}

// handleJump moves the paused cursor to a named marker.
func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("marker"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid marker id")
		return
	}

	m, ok, err := s.markers.Get(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if !ok {
		httputil.BadRequest(w, "invalid marker id")
		return
	}

	index, err := s.engine.NearestIndex(m.Seconds)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	// Reposition and pause so the frontend can restart playback cleanly
	// from the marker.
	if err := s.engine.Seek(index); err != nil {
		writeEngineError(w, err)
		return
	}
	if err := s.engine.Pause(); err != nil {
		writeEngineError(w, err)
		return
	}

	httputil.WriteJSONOK(w, map[string]any{"success": true, "index": index, "timestamp": m.Seconds})
}

func (s *Server) handleListMarkers(w http.ResponseWriter, r *http.Request) {
	ms, err := s.markers.List()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, ms)
}

func (s *Server) handlePutMarker(w http.ResponseWriter, r *http.Request) {
	var m markers.Marker
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		httputil.BadRequest(w, "invalid marker payload")
		return
	}
	if m.Label == "" {
		httputil.BadRequest(w, "marker label required")
		return
	}
	if err := s.markers.Put(m); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"success": true, "marker": m})
}

func (s *Server) handleDeleteMarker(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid marker id")
		return
	}
	if err := s.markers.Delete(id); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"success": true})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req playback.StartRequest
	// An empty body is a plain resume.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.BadRequest(w, "invalid start payload")
		return
	}
	if err := s.engine.Start(req); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Status())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Status())
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid seek payload")
		return
	}
	if err := s.engine.Seek(req.Index); err != nil {
		writeEngineError(w, err)
		return
	}
	httputil.WriteJSONOK(w, s.engine.Status())
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid speed payload")
		return
	}
	applied := s.engine.SetSpeed(req.Speed)
	httputil.WriteJSONOK(w, map[string]any{"success": true, "speed": applied})
}
