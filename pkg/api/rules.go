package api

import (
	"net/http"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/rules"
)

// previewCount is the number of upcoming occurrences returned by validate
const previewCount = 5

type validateRequest struct {
	RRule    string `json:"rrule"`
	Timezone string `json:"timezone"`
}

type validateResponse struct {
	Valid       bool     `json:"valid"`
	Description string   `json:"description,omitempty"`
	Next        []string `json:"nextOccurrences,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func (s *Server) validateRule(w http.ResponseWriter, r *http.Request, _ string) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if !s.engine.Valid(req.RRule) {
		writeData(w, http.StatusOK, "", validateResponse{Error: "invalid rrule format"})
		return
	}

	next, err := rules.Preview(s.engine, req.RRule, req.Timezone, s.now(), previewCount)
	if err != nil {
		writeData(w, http.StatusOK, "", validateResponse{Error: err.Error()})
		return
	}

	resp := validateResponse{Valid: true, Description: s.engine.Describe(req.RRule)}
	for _, t := range next {
		resp.Next = append(resp.Next, t.Format(time.RFC3339))
	}
	writeData(w, http.StatusOK, "", resp)
}

func (s *Server) rulePatterns(w http.ResponseWriter, r *http.Request, _ string) {
	writeData(w, http.StatusOK, "", rules.Patterns(s.engine))
}
