package api

import (
	"net/http"
	"strconv"

	"github.com/cloudevy/downtime-scheduler/pkg/schedules"
)

const scheduleNotFound = "Schedule not found"

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request, workspaceID string) {
	list, err := s.schedules.List(r.Context(), workspaceID, r.URL.Query().Get("serverId"))
	if err != nil {
		s.writeServiceError(w, r, err, scheduleNotFound)
		return
	}
	writeData(w, http.StatusOK, "", list)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request, workspaceID string) {
	var req schedules.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	schedule, err := s.schedules.Create(r.Context(), workspaceID, req)
	if err != nil {
		s.writeServiceError(w, r, err, "Server not found")
		return
	}
	writeData(w, http.StatusCreated, "Schedule created successfully", schedule)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request, workspaceID string) {
	schedule, err := s.schedules.Get(r.Context(), workspaceID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, scheduleNotFound)
		return
	}
	writeData(w, http.StatusOK, "", schedule)
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request, workspaceID string) {
	var req schedules.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	schedule, err := s.schedules.Update(r.Context(), workspaceID, r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, r, err, scheduleNotFound)
		return
	}
	writeData(w, http.StatusOK, "Schedule updated successfully", schedule)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request, workspaceID string) {
	if err := s.schedules.Delete(r.Context(), workspaceID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err, scheduleNotFound)
		return
	}
	writeData(w, http.StatusOK, "Schedule deleted successfully", nil)
}

func (s *Server) toggleSchedule(w http.ResponseWriter, r *http.Request, workspaceID string) {
	schedule, err := s.schedules.Toggle(r.Context(), workspaceID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err, scheduleNotFound)
		return
	}
	state := "disabled"
	if schedule.Enabled {
		state = "enabled"
	}
	writeData(w, http.StatusOK, "Schedule "+state+" successfully", schedule)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request, workspaceID string) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	execs, err := s.schedules.Executions(r.Context(), workspaceID, r.PathValue("id"), limit)
	if err != nil {
		s.writeServiceError(w, r, err, scheduleNotFound)
		return
	}
	writeData(w, http.StatusOK, "", execs)
}
