// Package sessionstore persists recording session metadata and the
// files that belong to each session.
package sessionstore

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/vitalstream/bioengine/internal/db"
	"github.com/vitalstream/bioengine/internal/types"
	"gorm.io/gorm"
)

// Filter narrows List by optional fields; zero values are ignored.
type Filter struct {
	Status        string
	ParticipantID string
}

// Page is a simple offset/limit pagination window.
type Page struct {
	Offset int
	Limit  int
}

// Create inserts a new session row in status "recording".
func Create(conns *db.Connections, s *db.Session) error {
	return conns.DB.Create(s).Error
}

// FindByID returns the session, or nil if it does not exist.
func FindByID(conns *db.Connections, id string) (*db.Session, error) {
	var record db.Session
	err := conns.DB.Preload("Files").Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindActiveRecording returns the session currently in status
// "recording", or nil if none — enforcing the at-most-one-recording
// invariant is the caller's job (this is a read used to check it).
func FindActiveRecording(conns *db.Connections) (*db.Session, error) {
	var record db.Session
	err := conns.DB.Where("status = ?", "recording").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// List returns sessions matching filter, newest first.
func List(conns *db.Connections, filter Filter, page Page) ([]db.Session, error) {
	q := conns.DB.Model(&db.Session{}).Order("start_time DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ParticipantID != "" {
		q = q.Where("participant_id = ?", filter.ParticipantID)
	}
	if page.Limit > 0 {
		q = q.Limit(page.Limit).Offset(page.Offset)
	}
	var records []db.Session
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// SealCompleted marks a session completed at endTime.
func SealCompleted(conns *db.Connections, id string, endTime time.Time) error {
	return conns.DB.Model(&db.Session{}).Where("id = ?", id).
		Updates(map[string]any{"status": "completed", "end_time": endTime}).Error
}

// SealFailed marks a session failed at endTime (crash recovery or a
// transport/recorder error mid-recording).
func SealFailed(conns *db.Connections, id string, endTime time.Time) error {
	return conns.DB.Model(&db.Session{}).Where("id = ?", id).
		Updates(map[string]any{"status": "failed", "end_time": endTime}).Error
}

// Delete removes a session and its files/exports (cascade).
func Delete(conns *db.Connections, id string) error {
	return conns.DB.Where("id = ?", id).Delete(&db.Session{}).Error
}

// AddFile records one file belonging to a session.
func AddFile(conns *db.Connections, f *db.SessionFile) error {
	return conns.DB.Create(f).Error
}

// ToType converts a persisted row (plus its preloaded Files, if any) into
// the domain Session/FileEntry shapes used outside the db package.
func ToType(record *db.Session) (types.Session, error) {
	tags, err := DecodeTags(record.TagsJSON)
	if err != nil {
		return types.Session{}, err
	}
	return types.Session{
		SessionID: record.ID, Name: record.Name, StartTime: record.StartTime, EndTime: record.EndTime,
		Status: types.SessionStatus(record.Status), ParticipantID: record.ParticipantID,
		Condition: record.Condition, Notes: record.Notes, Tags: tags,
		DeviceID: record.DeviceID, RootDir: record.RootDir,
	}, nil
}

// FileEntriesOf converts a session's preloaded file rows.
func FileEntriesOf(record *db.Session) []types.FileEntry {
	entries := make([]types.FileEntry, 0, len(record.Files))
	for _, f := range record.Files {
		entries = append(entries, types.FileEntry{
			SessionID: f.SessionID, Filename: f.Filename, RelativePath: f.Filename,
			SensorType: types.SensorKind(f.Sensor), DataType: types.DataType(f.DataType),
			SizeBytes: f.Size, SampleCount: f.SampleCount, CreatedAt: f.CreatedAt,
		})
	}
	return entries
}

// EncodeTags serializes a tag slice to the stored JSON column format.
func EncodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "", nil
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

// DecodeTags parses the stored JSON column back into a tag slice.
func DecodeTags(tagsJSON string) ([]string, error) {
	if tagsJSON == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
