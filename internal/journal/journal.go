// Package journal records every LINE Notify call made by the CLI in a local
// SQLite database, so in-band failures can be reviewed after the fact.
// Access tokens are never written.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/temirov/linenotify/pkg/logging"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Operation names a recorded API call.
type Operation string

const (
	OperationExchangeToken Operation = "exchange_token"
	OperationNotify        Operation = "notify"
	OperationStatus        Operation = "status"
	OperationRevoke        Operation = "revoke"
)

const defaultRecentLimit = 20

// ErrDisabled is returned when a journal is used without a database path.
var ErrDisabled = errors.New("journal: disabled")

// Delivery is one recorded call.
type Delivery struct {
	ID              uint      `json:"-" gorm:"primaryKey"`
	DeliveryID      string    `json:"delivery_id" gorm:"uniqueIndex"`
	Operation       Operation `json:"operation" gorm:"index"`
	Message         string    `json:"message,omitempty"`
	Status          int       `json:"status"`
	ResponseMessage string    `json:"response_message"`
	TransportError  string    `json:"transport_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Succeeded reports a 200 in-band status without a transport error.
func (delivery Delivery) Succeeded() bool {
	return delivery.TransportError == "" && delivery.Status == 200
}

// Journal stores deliveries. A nil or disabled Journal ignores Record calls.
type Journal struct {
	database *gorm.DB
	logger   *slog.Logger
}

// Open opens (or creates) the SQLite file at path and migrates the schema.
// An empty path yields a disabled journal. A nil logger discards output.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if strings.TrimSpace(path) == "" {
		return &Journal{logger: logger}, nil
	}
	logger.Debug("Opening delivery journal", "path", path)

	database, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: &slogGormLogger{logger: logger},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite failed: %w", err)
	}
	return newJournal(database, logger)
}

func newJournal(database *gorm.DB, logger *slog.Logger) (*Journal, error) {
	if err := database.AutoMigrate(&Delivery{}); err != nil {
		return nil, fmt.Errorf("journal: migration failed: %w", err)
	}
	return &Journal{database: database, logger: logger}, nil
}

// Enabled reports whether the journal writes anywhere.
func (journal *Journal) Enabled() bool {
	return journal != nil && journal.database != nil
}

// Record stores delivery, assigning an id and timestamp when missing.
func (journal *Journal) Record(ctx context.Context, delivery Delivery) (Delivery, error) {
	if !journal.Enabled() {
		return delivery, nil
	}
	if delivery.DeliveryID == "" {
		delivery.DeliveryID = uuid.NewString()
	}
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = time.Now().UTC()
	}
	if err := journal.database.WithContext(ctx).Create(&delivery).Error; err != nil {
		return Delivery{}, fmt.Errorf("journal: record %s: %w", delivery.Operation, err)
	}
	return delivery, nil
}

// Recent returns up to limit deliveries, newest first.
func (journal *Journal) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	if !journal.Enabled() {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	var deliveries []Delivery
	if err := journal.database.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&deliveries).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return deliveries, nil
}

// Close releases the underlying connection.
func (journal *Journal) Close() error {
	if !journal.Enabled() {
		return nil
	}
	sqlDatabase, err := journal.database.DB()
	if err != nil {
		return err
	}
	return sqlDatabase.Close()
}
