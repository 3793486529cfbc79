package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/storage"
	"github.com/cloudevy/downtime-scheduler/pkg/types"
)

const serverNotFound = "Server not found"

// Default history windows in days
const (
	patternsWindowDays = 30
	hourlyWindowDays   = 7
)

// hourlyPoint is the chart-friendly shape of one hourly aggregate
type hourlyPoint struct {
	Timestamp time.Time `json:"timestamp"`
	AvgIn     float64   `json:"avgIn"`
	AvgOut    float64   `json:"avgOut"`
	MaxIn     float64   `json:"maxIn"`
	MaxOut    float64   `json:"maxOut"`
	Total     float64   `json:"total"`
	Samples   int       `json:"samples"`
}

// workspaceServer loads a server of the workspace, writing 404 when absent
func (s *Server) workspaceServer(w http.ResponseWriter, r *http.Request, workspaceID string) (*types.Server, bool) {
	server, err := s.store.GetServer(r.Context(), r.PathValue("id"))
	if err == nil && server.WorkspaceID != workspaceID {
		err = storage.ErrNotFound
	}
	if err != nil {
		s.writeServiceError(w, r, err, serverNotFound)
		return nil, false
	}
	return server, true
}

// history returns the server's points of the last days days, or def days when
// the query parameter is missing or not positive
func (s *Server) history(r *http.Request, serverID string, def int) ([]types.HourlyTraffic, error) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 {
		days = def
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	return s.store.ListTraffic(r.Context(), serverID, since)
}

func (s *Server) trafficPatterns(w http.ResponseWriter, r *http.Request, workspaceID string) {
	server, ok := s.workspaceServer(w, r, workspaceID)
	if !ok {
		return
	}
	points, err := s.history(r, server.ID, patternsWindowDays)
	if err != nil {
		s.writeServiceError(w, r, err, serverNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.analyzer.Analyze(points, server))
}

func (s *Server) trafficHourly(w http.ResponseWriter, r *http.Request, workspaceID string) {
	server, ok := s.workspaceServer(w, r, workspaceID)
	if !ok {
		return
	}
	points, err := s.history(r, server.ID, hourlyWindowDays)
	if err != nil {
		s.writeServiceError(w, r, err, serverNotFound)
		return
	}

	data := make([]hourlyPoint, 0, len(points))
	for _, p := range points {
		data = append(data, hourlyPoint{
			Timestamp: p.Hour,
			AvgIn:     p.AvgInMbps,
			AvgOut:    p.AvgOutMbps,
			MaxIn:     p.MaxInMbps,
			MaxOut:    p.MaxOutMbps,
			Total:     p.AvgInMbps + p.AvgOutMbps,
			Samples:   p.Samples,
		})
	}
	writeData(w, http.StatusOK, "", data)
}

// ingestTraffic stores hourly aggregates pushed by a collector. Points are
// truncated to the hour and replace existing ones.
func (s *Server) ingestTraffic(w http.ResponseWriter, r *http.Request, workspaceID string) {
	server, ok := s.workspaceServer(w, r, workspaceID)
	if !ok {
		return
	}

	var points []types.HourlyTraffic
	if err := decodeJSON(w, r, &points); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	for i := range points {
		if points[i].Hour.IsZero() {
			writeError(w, http.StatusBadRequest, "every point needs an hour")
			return
		}
		points[i].ServerID = server.ID
		points[i].Hour = points[i].Hour.UTC().Truncate(time.Hour)
	}

	if err := s.store.PutTraffic(r.Context(), points); err != nil {
		s.writeServiceError(w, r, err, serverNotFound)
		return
	}
	writeData(w, http.StatusOK, "Traffic stored", map[string]int{"points": len(points)})
}

func (s *Server) bestDowntime(w http.ResponseWriter, r *http.Request, workspaceID string) {
	server, ok := s.workspaceServer(w, r, workspaceID)
	if !ok {
		return
	}
	since := s.now().UTC().AddDate(0, 0, -patternsWindowDays)
	points, err := s.store.ListTraffic(r.Context(), server.ID, since)
	if err != nil {
		s.writeServiceError(w, r, err, serverNotFound)
		return
	}
	writeData(w, http.StatusOK, "", s.analyzer.BestDowntime(points, server))
}
