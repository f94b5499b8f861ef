package coordinator

import (
	"context"

	"github.com/vitalstream/bioengine/internal/db/sessionstore"
	"github.com/vitalstream/bioengine/internal/recorder"
	"github.com/vitalstream/bioengine/internal/types"
)

// StartRecordingParams mirrors recorder.StartMeta without exposing the
// internal device-ID/sampling-rate bookkeeping the coordinator fills in
// itself from the current stream.
type StartRecordingParams struct {
	Name          string
	ParticipantID string
	Condition     string
	Notes         string
	Tags          []string
}

// StartRecording begins a new session. Requires streaming to be active, per
// the state machine's recording:none -> recording:active transition.
func (e *Engine) StartRecording(ctx context.Context, p StartRecordingParams) (string, error) {
	v, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		e.mu.Lock()
		streaming := e.streaming == StreamingActive
		address := e.deviceAddress
		set := e.streamSet
		e.mu.Unlock()
		if !streaming {
			return nil, types.NewError(types.ErrInvalidParameters, "start_recording requires streaming to be active")
		}

		rates := map[types.SensorKind]float64{}
		if set != nil {
			rates[types.SensorEEG] = types.SensorEEG.NominalRateHz()
			rates[types.SensorPPG] = types.SensorPPG.NominalRateHz()
			rates[types.SensorACC] = types.SensorACC.NominalRateHz()
			rates[types.SensorBattery] = types.SensorBattery.NominalRateHz()
		}

		id, err := e.recorder.Start(recorder.StartMeta{
			Name: p.Name, ParticipantID: p.ParticipantID, Condition: p.Condition,
			Notes: p.Notes, Tags: p.Tags, DeviceID: address, SamplingRates: rates,
		})
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.recording = RecordingActive
		e.sessionID = id
		e.mu.Unlock()

		e.bus.PublishEvent(map[string]any{"kind": "recording_started", "session_id": id})
		return id, nil
	})
	if err != nil {
		return "", deviceErr(err)
	}
	return v.(string), nil
}

// StopRecording seals the named session. If it is the currently-active
// recording it is stopped live; if it is already sealed, the same summary
// is returned idempotently, per the Testable Properties.
func (e *Engine) StopRecording(ctx context.Context, sessionID string) (types.SessionSummary, error) {
	v, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		e.mu.Lock()
		isActive := e.recording == RecordingActive && (sessionID == "" || sessionID == e.sessionID)
		e.mu.Unlock()

		if isActive {
			summary, err := e.recorder.Stop()
			if err != nil {
				return nil, err
			}
			e.mu.Lock()
			e.recording = RecordingNone
			e.sessionID = ""
			e.mu.Unlock()
			e.bus.PublishEvent(map[string]any{"kind": "recording_stopped", "session_id": summary.Session.SessionID})
			return summary, nil
		}

		session, files, err := e.recorder.GetSession(sessionID)
		if err != nil {
			return nil, err
		}
		if session == nil || session.Status == types.SessionRecording {
			return nil, types.NewError(types.ErrSessionNotFound, "no such sealed session: "+sessionID)
		}
		return recorder.SummaryOf(*session, files), nil
	})
	if err != nil {
		return types.SessionSummary{}, deviceErr(err)
	}
	return v.(types.SessionSummary), nil
}

// ListSessions returns sessions matching filter, newest first. Read-only,
// so it bypasses the command queue.
func (e *Engine) ListSessions(filter sessionstore.Filter, page sessionstore.Page) ([]types.Session, error) {
	return e.recorder.ListSessions(filter, page)
}

// GetSession returns one session plus its files, or nil if unknown.
func (e *Engine) GetSession(id string) (*types.Session, []types.FileEntry, error) {
	return e.recorder.GetSession(id)
}

// DeleteSession removes a sealed session's row and on-disk files.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	_, err := e.submit(ctx, func(ctx context.Context) (any, error) {
		return nil, e.recorder.DeleteSession(id)
	})
	return deviceErr(err)
}

// RequestExport queues an asynchronous export of a session.
func (e *Engine) RequestExport(sessionID string, format types.ExportFormat, opts types.ExportOptions) (string, error) {
	id, err := e.exporter.RequestExport(sessionID, format, opts)
	if err != nil {
		return "", deviceErr(err)
	}
	return id, nil
}

// GetExport returns one export job's current state, or nil if unknown.
func (e *Engine) GetExport(id string) (*types.Export, error) {
	return e.exporter.GetExport(id)
}
