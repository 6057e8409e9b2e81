package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Device holds the identifier this installation sends with refresh requests.
type Device struct {
	ID       uint   `gorm:"primaryKey"`
	DeviceID string `gorm:"uniqueIndex"`
}

// EnsureDeviceID returns the persisted device identifier, creating one on first use.
func EnsureDeviceID(ctx context.Context, gdb *gorm.DB) (string, error) {
	if gdb == nil {
		return "", fmt.Errorf("database connection is not initialized")
	}

	var device Device
	err := gdb.WithContext(ctx).First(&device).Error
	if err == nil {
		return device.DeviceID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to read device record: %w", err)
	}

	device = Device{ID: 1, DeviceID: uuid.NewString()}
	if err := gdb.WithContext(ctx).Create(&device).Error; err != nil {
		return "", fmt.Errorf("failed to store device record: %w", err)
	}
	log.Info().Str("device_id", device.DeviceID).Msg("Registered new device identifier")
	return device.DeviceID, nil
}
