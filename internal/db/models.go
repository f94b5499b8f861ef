package db

import (
	"time"

	"gorm.io/gorm"
)

// RegisteredDevice is a previously-paired device, kept so the engine can
// auto-reconnect without a fresh scan.
type RegisteredDevice struct {
	Address  string    `gorm:"primaryKey;column:address;type:varchar(64)"`
	Name     string    `gorm:"column:name;type:varchar(255)"`
	LastSeen time.Time `gorm:"column:last_seen"`
}

func (RegisteredDevice) TableName() string { return "registered_devices" }

// Session is the metadata record for one contiguous recorded interval.
type Session struct {
	ID            string     `gorm:"primaryKey;column:id;type:varchar(64)"`
	Name          string     `gorm:"column:name;type:varchar(255)"`
	StartTime     time.Time  `gorm:"column:start_time;not null"`
	EndTime       *time.Time `gorm:"column:end_time"`
	Status        string     `gorm:"column:status;type:varchar(32);not null;index"`
	DeviceID      string     `gorm:"column:device_id;type:varchar(64)"`
	RootDir       string     `gorm:"column:root_dir;type:varchar(1024)"`
	ParticipantID string     `gorm:"column:participant_id;type:varchar(255)"`
	Condition     string     `gorm:"column:condition;type:varchar(255)"`
	Notes         string     `gorm:"column:notes;type:text"`
	TagsJSON      string     `gorm:"column:tags_json;type:text"`

	Files   []SessionFile `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Exports []Export      `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (Session) TableName() string { return "sessions" }

// SessionFile describes one file belonging to a session.
type SessionFile struct {
	ID          uint      `gorm:"primaryKey;column:id;autoIncrement"`
	SessionID   string    `gorm:"column:session_id;type:varchar(64);index"`
	Filename    string    `gorm:"column:filename;type:varchar(255)"`
	Sensor      string    `gorm:"column:sensor;type:varchar(32)"`
	DataType    string    `gorm:"column:data_type;type:varchar(32)"`
	Size        int64     `gorm:"column:size"`
	SampleCount *int64    `gorm:"column:sample_count"`
	CreatedAt   time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
}

func (SessionFile) TableName() string { return "session_files" }

// Export is the metadata record for one export job.
type Export struct {
	ID          string     `gorm:"primaryKey;column:id;type:varchar(64)"`
	SessionID   string     `gorm:"column:session_id;type:varchar(64);index"`
	Status      string     `gorm:"column:status;type:varchar(32);not null;index"`
	Format      string     `gorm:"column:format;type:varchar(16)"`
	FilePath    string     `gorm:"column:file_path;type:varchar(1024)"`
	CreatedAt   time.Time  `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	Error       string     `gorm:"column:error;type:text"`
}

func (Export) TableName() string { return "exports" }

// AutoMigrate creates or updates every table owned by this package.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&RegisteredDevice{}, &Session{}, &SessionFile{}, &Export{})
}
