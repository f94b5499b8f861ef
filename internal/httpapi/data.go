package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/vitalstream/bioengine/internal/coordinator"
	"github.com/vitalstream/bioengine/internal/db/sessionstore"
	"github.com/vitalstream/bioengine/internal/types"
)

type startRecordingRequest struct {
	SessionName   string   `json:"session_name"`
	ParticipantID string   `json:"participant_id,omitempty"`
	Condition     string   `json:"condition,omitempty"`
	Sensors       []string `json:"sensors,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// dataStartRecordingHandler handles POST /data/start-recording. Sensors is
// accepted for API compatibility but every sensor the device exposes is
// always captured together — there is no partial-sensor recording mode.
func dataStartRecordingHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRecordingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body: "+err.Error())
			return
		}
		if req.SessionName == "" {
			writeBadRequest(w, "session_name is required")
			return
		}

		id, err := eng.StartRecording(r.Context(), coordinator.StartRecordingParams{
			Name: req.SessionName, ParticipantID: req.ParticipantID,
			Condition: req.Condition, Notes: req.Notes,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, map[string]string{"session_id": id})
	}
}

type stopRecordingRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// dataStopRecordingHandler handles POST /data/stop-recording. An empty
// session_id stops whichever recording is currently active.
func dataStopRecordingHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stopRecordingRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeBadRequest(w, "invalid request body: "+err.Error())
				return
			}
		}
		summary, err := eng.StopRecording(r.Context(), req.SessionID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, summary)
	}
}

// dataRecordingStatusHandler handles GET /data/recording-status.
func dataRecordingStatusHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, eng.Status())
	}
}

// dataSessionsListHandler handles GET /data/sessions.
func dataSessionsListHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := sessionstore.Filter{
			Status:        r.URL.Query().Get("status"),
			ParticipantID: r.URL.Query().Get("participant_id"),
		}
		page := sessionstore.Page{Limit: 50}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				page.Limit = n
			}
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				page.Offset = n
			}
		}

		sessions, err := eng.ListSessions(filter, page)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, sessions)
	}
}

// dataSessionGetHandler handles GET /data/sessions/{id}.
func dataSessionGetHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		session, files, err := eng.GetSession(id)
		if err != nil {
			writeErr(w, err)
			return
		}
		if session == nil {
			writeErr(w, types.NewError(types.ErrSessionNotFound, "session not found: "+id))
			return
		}
		writeOK(w, map[string]any{"session": session, "files": files})
	}
}

// dataSessionDeleteHandler handles DELETE /data/sessions/{id}.
func dataSessionDeleteHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := eng.DeleteSession(r.Context(), id); err != nil {
			writeErr(w, err)
			return
		}
		writeOKMessage(w, "session deleted", nil)
	}
}

// exportTimeRange is the optional time_range filter narrowing an export
// to samples between Start and End (either may be omitted).
type exportTimeRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

type exportRequest struct {
	Format      types.ExportFormat `json:"format"`
	Sensors     []types.SensorKind `json:"sensors,omitempty"`
	DataTypes   []types.DataType   `json:"data_types,omitempty"`
	Compression bool               `json:"compression,omitempty"`
	TimeRange   *exportTimeRange   `json:"time_range,omitempty"`
}

// dataSessionExportHandler handles POST /data/sessions/{id}/export.
func dataSessionExportHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var req exportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid request body: "+err.Error())
			return
		}
		if req.Format == "" {
			writeBadRequest(w, "format is required")
			return
		}

		opts := types.ExportOptions{
			Sensors: req.Sensors, DataTypes: req.DataTypes, Compression: req.Compression,
		}
		if req.TimeRange != nil {
			opts.TimeStart = req.TimeRange.Start
			opts.TimeEnd = req.TimeRange.End
		}

		exportID, err := eng.RequestExport(id, req.Format, opts)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, map[string]string{"export_id": exportID})
	}
}

// dataExportGetHandler handles GET /data/exports/{id}.
func dataExportGetHandler(eng *coordinator.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		export, err := eng.GetExport(id)
		if err != nil {
			writeErr(w, err)
			return
		}
		if export == nil {
			writeErr(w, types.NewError(types.ErrFileNotFound, "export not found: "+id))
			return
		}
		writeOK(w, export)
	}
}
