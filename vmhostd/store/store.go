// Package store keeps an informational record of every VM the daemon has started and the
// last status it reported. Nothing reads it back to decide what is running.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vmhost/vmhostd/util"
)

type VMRecord struct {
	ID        string `gorm:"uniqueIndex;not null;default:null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
	Name      string         `gorm:"index;not null"`
	IsoPath   string
	DiskPath  string
	LogPath   string
	DiskSize  uint64
	Mem       uint32
	CPU       uint16
	Status    string
	Pid       int
}

type Store struct {
	db *gorm.DB
}

func (r *VMRecord) BeforeCreate(_ *gorm.DB) error {
	if r.Name == "" {
		return errRecordInvalidName
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	return nil
}

// Open opens (creating if needed) the sqlite database at path and migrates it.
func Open(path string) (*Store, error) {
	err := util.EnsureParentDir(path)
	if err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(
		sqlite.Open(path),
		&gorm.Config{
			Logger:      dbLogger,
			PrepareStmt: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlDB database: %w", err)
	}

	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	s := New(db)

	err = s.AutoMigrate()
	if err != nil {
		return nil, err
	}

	return s, nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AutoMigrate() error {
	err := s.db.AutoMigrate(&VMRecord{})
	if err != nil {
		return fmt.Errorf("failed to auto-migrate vm records: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("error getting sql db: %w", err)
	}

	err = sqlDB.Close()
	if err != nil {
		return fmt.Errorf("error closing db: %w", err)
	}

	return nil
}

// Save creates the record for rec.Name, or refreshes the existing one. rec.ID is set on return.
func (s *Store) Save(rec *VMRecord) error {
	if rec.Name == "" {
		return errRecordInvalidName
	}

	var existing VMRecord

	res := s.db.Where("name = ?", rec.Name).Limit(1).Find(&existing)
	if res.Error != nil {
		return fmt.Errorf("error looking up vm record: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		res = s.db.Create(rec)
		if res.Error != nil {
			return fmt.Errorf("error creating vm record: %w", res.Error)
		}

		return nil
	}

	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt

	res = s.db.Model(&existing).Updates(map[string]interface{}{
		"iso_path":  rec.IsoPath,
		"disk_path": rec.DiskPath,
		"log_path":  rec.LogPath,
		"disk_size": rec.DiskSize,
		"mem":       rec.Mem,
		"cpu":       rec.CPU,
		"status":    rec.Status,
		"pid":       rec.Pid,
	})
	if res.Error != nil {
		return fmt.Errorf("error updating vm record: %w", res.Error)
	}

	return nil
}

// SetStatus records the latest status and pid for the record with id.
func (s *Store) SetStatus(id string, status string, pid int) error {
	res := s.db.Model(&VMRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status": status,
		"pid":    pid,
	})
	if res.Error != nil {
		return fmt.Errorf("error saving vm status: %w", res.Error)
	}

	if res.RowsAffected != 1 {
		return errRecordNotFound
	}

	return nil
}

func (s *Store) GetByName(name string) (*VMRecord, error) {
	var rec VMRecord

	res := s.db.Where("name = ?", name).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("error looking up vm record: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		return nil, errRecordNotFound
	}

	return &rec, nil
}

func (s *Store) List() ([]*VMRecord, error) {
	var recs []*VMRecord

	res := s.db.Order("name").Find(&recs)
	if res.Error != nil {
		return nil, fmt.Errorf("error listing vm records: %w", res.Error)
	}

	return recs, nil
}

// Delete soft deletes the record for name. A missing record is not an error.
func (s *Store) Delete(name string) error {
	res := s.db.Where("name = ?", name).Delete(&VMRecord{})
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("error deleting vm record: %w", res.Error)
	}

	return nil
}
