// Package devicestore persists previously-paired devices so the engine
// can offer auto-reconnect without a fresh scan.
package devicestore

import (
	"errors"
	"time"

	"github.com/vitalstream/bioengine/internal/db"
	"gorm.io/gorm"
)

// Upsert records address/name as last seen at the given time.
func Upsert(conns *db.Connections, address, name string, lastSeen time.Time) error {
	record := db.RegisteredDevice{Address: address, Name: name, LastSeen: lastSeen}
	return conns.DB.Save(&record).Error
}

// FindByAddress returns the registered device, or nil if never paired.
func FindByAddress(conns *db.Connections, address string) (*db.RegisteredDevice, error) {
	var record db.RegisteredDevice
	err := conns.DB.Where("address = ?", address).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// MostRecent returns the most recently seen registered device, used to
// pick the default auto-reconnect target on startup.
func MostRecent(conns *db.Connections) (*db.RegisteredDevice, error) {
	var record db.RegisteredDevice
	err := conns.DB.Order("last_seen DESC").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
