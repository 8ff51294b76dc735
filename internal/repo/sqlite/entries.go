// Package sqlite is the table-based backend: one row per entry in the
// "entries" table, through gorm over SQLite (modernc driver) or PostgreSQL.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"ananke/internal/model"
	"ananke/internal/repo"
)

// timestampLayout хранит время в UTC с фиксированной шириной, чтобы строки сортировались хронологически.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const batchSize = 200

// entryRow — строка таблицы entries.
type entryRow struct {
	ID          string  `gorm:"column:id;primaryKey"`
	KeyID       string  `gorm:"column:key_id;not null"`
	Timestamp   string  `gorm:"column:timestamp;not null;index"`
	Description string  `gorm:"column:description;not null;index"`
	Identity    *string `gorm:"column:identity"`
	Ciphertext  []byte  `gorm:"column:ciphertext"`
	Meta        *string `gorm:"column:meta"`
}

func (entryRow) TableName() string { return "entries" }

// Backend — табличное хранилище записей на gorm.
type Backend struct {
	db *gorm.DB
}

var (
	_ repo.Backend        = (*Backend)(nil)
	_ repo.UniqueEnforcer = (*Backend)(nil)
)

// Open открывает (и создаёт при необходимости) файл БД SQLite и применяет схему.
func Open(path string) (*Backend, error) {
	if path == "" {
		return nil, errors.New("empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return open(gormsqlite.Dialector{DriverName: "sqlite", DSN: path})
}

// OpenPostgres подключается к PostgreSQL по DSN и применяет схему.
func OpenPostgres(dsn string) (*Backend, error) {
	if dsn == "" {
		return nil, errors.New("empty postgres dsn")
	}
	return open(postgres.Open(dsn))
}

func open(dial gorm.Dialector) (*Backend, error) {
	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&entryRow{}); err != nil {
		return nil, fmt.Errorf("migrate entries: %w", err)
	}
	return &Backend{db: db}, nil
}

// NewBackend wraps an already opened and migrated connection.
func NewBackend(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// EnforcesUniqueIDs — id является первичным ключом таблицы.
func (b *Backend) EnforcesUniqueIDs() bool { return true }

// Insert добавляет строку в транзакции; существующий id даёт repo.ErrDuplicateID.
func (b *Backend) Insert(ctx context.Context, e model.Entry) error {
	row := toRow(e)
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&entryRow{}).Where("id = ?", e.ID).Count(&n).Error; err != nil {
			return fmt.Errorf("check id %s: %w", e.ID, err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", repo.ErrDuplicateID, e.ID)
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
		return nil
	})
}

// ScanAll возвращает все строки, упорядоченные по времени и id.
func (b *Backend) ScanAll(ctx context.Context) ([]model.Entry, error) {
	var rows []entryRow
	err := b.db.WithContext(ctx).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "timestamp"}},
			{Column: clause.Column{Name: "id"}},
		}}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}
	res := make([]model.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// ReplaceAll заменяет содержимое таблицы в одной транзакции.
func (b *Backend) ReplaceAll(ctx context.Context, entries []model.Entry) error {
	rows := make([]entryRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, toRow(e))
	}
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&entryRow{}).Error; err != nil {
			return fmt.Errorf("clear entries: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, batchSize).Error; err != nil {
			return fmt.Errorf("write entries: %w", err)
		}
		return nil
	})
}

// Close закрывает соединение с БД.
func (b *Backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(e model.Entry) entryRow {
	return entryRow{
		ID:          e.ID,
		KeyID:       e.KeyID,
		Timestamp:   e.Timestamp.UTC().Format(timestampLayout),
		Description: e.Description,
		Identity:    e.Identity,
		Ciphertext:  e.Ciphertext,
		Meta:        e.Meta,
	}
}

func (r entryRow) toEntry() (model.Entry, error) {
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return model.Entry{}, fmt.Errorf("entry %s: bad timestamp %q: %w", r.ID, r.Timestamp, err)
	}
	return model.Entry{
		ID:          r.ID,
		KeyID:       r.KeyID,
		Timestamp:   ts,
		Description: r.Description,
		Identity:    r.Identity,
		Ciphertext:  r.Ciphertext,
		Meta:        r.Meta,
	}, nil
}
