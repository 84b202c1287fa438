package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// record is the single table the Postgres backend uses: one row per key with
// the serialized record in a jsonb column.
type record struct {
	Key   string         `gorm:"primaryKey;size:255"`
	Value datatypes.JSON `gorm:"not null"`
}

type postgresStore struct {
	db *gorm.DB
}

// NewPostgres opens the Postgres database named by DB_DSN and migrates the
// records table. Migration can be disabled with DB_AUTO_MIGRATE=false for
// locked-down databases.
func NewPostgres() (RecordStore, error) {
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		return nil, fmt.Errorf("missing DB_DSN")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	shouldMigrate := true
	if v := strings.ToLower(os.Getenv("DB_AUTO_MIGRATE")); v == "false" || v == "0" || v == "no" {
		shouldMigrate = false
	}
	if shouldMigrate {
		if err := db.AutoMigrate(&record{}); err != nil {
			return nil, fmt.Errorf("migrate records: %w", err)
		}
	}
	return &postgresStore{db: db}, nil
}

func (s *postgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var rec record
	err := s.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return []byte(rec.Value), nil
}

func (s *postgresStore) Set(ctx context.Context, key string, value []byte) error {
	rec := record{Key: key, Value: datatypes.JSON(value)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rec).Error
	if err != nil {
		return storeErr(err)
	}
	return nil
}
