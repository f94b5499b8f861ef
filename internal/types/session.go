package types

import "time"

// SessionStatus is the closed set of lifecycle states a recording session
// can be in.
type SessionStatus string

const (
	SessionRecording SessionStatus = "recording"
	SessionCompleted SessionStatus = "completed"
	SessionProcessing SessionStatus = "processing"
	SessionFailed     SessionStatus = "failed"
)

// Session is the metadata record for one contiguous recorded interval.
type Session struct {
	SessionID     string        `json:"session_id"`
	Name          string        `json:"name"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	Status        SessionStatus `json:"status"`
	ParticipantID string        `json:"participant_id,omitempty"`
	Condition     string        `json:"condition,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	DeviceID      string        `json:"device_id"`
	RootDir       string        `json:"root_dir"`
}

// DataType is the closed set of content kinds a session file can hold.
type DataType string

const (
	DataRaw      DataType = "raw"
	DataProcessed DataType = "processed"
	DataMetadata  DataType = "metadata"
	DataBattery   DataType = "battery"
)

// FileEntry describes one file belonging to a session.
type FileEntry struct {
	SessionID    string    `json:"session_id"`
	Filename     string    `json:"filename"`
	RelativePath string    `json:"relative_path"`
	SensorType   SensorKind `json:"sensor_type,omitempty"`
	DataType     DataType   `json:"data_type"`
	SizeBytes    int64      `json:"size_bytes"`
	SampleCount  *int64     `json:"sample_count,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ExportFormat is the closed set of export artifact formats.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportMAT  ExportFormat = "mat"
	ExportEDF  ExportFormat = "edf"
)

// ExportStatus is the lifecycle of an asynchronous export job.
type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportRunning    ExportStatus = "running"
	ExportCompleted  ExportStatus = "completed"
	ExportFailedStat ExportStatus = "failed"
)

// ExportOptions narrows an export to a subset of sensors/data types and an
// optional time range.
type ExportOptions struct {
	Sensors     []SensorKind `json:"sensors,omitempty"`
	DataTypes   []DataType   `json:"data_types,omitempty"`
	Compression bool         `json:"compression,omitempty"`
	TimeStart   *time.Time   `json:"time_start,omitempty"`
	TimeEnd     *time.Time   `json:"time_end,omitempty"`
}

// Export is the metadata record for one export job.
type Export struct {
	ExportID    string       `json:"export_id"`
	SessionID   string       `json:"session_id"`
	Status      ExportStatus `json:"status"`
	Format      ExportFormat `json:"format"`
	FilePath    string       `json:"file_path,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// RegisteredDevice is a previously-paired device, kept so the engine can
// auto-reconnect without a fresh scan.
type RegisteredDevice struct {
	Address  string    `json:"address"`
	Name     string    `json:"name"`
	LastSeen time.Time `json:"last_seen"`
}

// SessionSummary is returned by Recorder.Stop: the sealed session plus
// counts computed at seal time.
type SessionSummary struct {
	Session          Session          `json:"session"`
	DurationSeconds  float64          `json:"duration_s"`
	FileCount        int              `json:"file_count"`
	TotalBytes       int64            `json:"total_bytes"`
	SampleCounts     map[SensorKind]int64 `json:"sample_counts"`
}
