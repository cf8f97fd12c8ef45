// Package prefs is the small key-value store for settings that must
// survive process restart. The voice preference is the only required key;
// the schema stays generic so new settings need no migration.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const voiceKey = "voice_id"

type preference struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

type Store struct {
	db *gorm.DB
}

// Open creates or opens the preference database. ":memory:" gives an
// ephemeral store for tests.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("prefs: path is required")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("prefs: create db dir: %w", err)
			}
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("prefs: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&preference{}); err != nil {
		return nil, fmt.Errorf("prefs: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Voice returns the persisted voice identifier, or "" when none is set.
func (s *Store) Voice() (string, error) {
	return s.get(voiceKey)
}

// SetVoice persists the chosen voice identifier.
func (s *Store) SetVoice(id string) error {
	return s.set(voiceKey, id)
}

func (s *Store) get(key string) (string, error) {
	var pref preference
	err := s.db.First(&pref, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("prefs: read %s: %w", key, err)
	}
	return pref.Value, nil
}

func (s *Store) set(key, value string) error {
	pref := preference{Key: key, Value: value}
	if err := s.db.Save(&pref).Error; err != nil {
		return fmt.Errorf("prefs: write %s: %w", key, err)
	}
	return nil
}
