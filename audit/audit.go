// Package audit persists the raw-APDU audit trail a transaction.Manager
// accumulates during one processCommands drain (spec.md §3's
// TransactionContext "audit log of raw APDUs"), backed by gorm.io/gorm
// over gorm.io/driver/sqlite so a caller can inspect a transaction's
// wire trace after the card has been removed.
package audit

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"calypsocore/apdu"
	"calypsocore/transaction"
)

// Event is one persisted APDU exchange, append-only: rows are never
// updated or deleted once written.
type Event struct {
	ID          uint `gorm:"primaryKey"`
	SessionID   string
	Sequence    int
	Command     string
	RequestHex  string
	ResponseHex string
	StatusWord  uint16
	RecordedAt  time.Time
}

func (Event) TableName() string { return "audit_events" }

// Store wraps a *gorm.DB open on a SQLite audit database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) a SQLite audit database at dsn and
// migrates the Event table. Pass ":memory:" for an ephemeral store.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open audit database %q: %w", dsn, err)
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Persist appends one transaction's audit trail under sessionID,
// recordedAt stamping every row the caller passes in (the package
// itself never calls time.Now so a run is reproducible from a fixed
// clock).
func (s *Store) Persist(sessionID string, recordedAt time.Time, entries []transaction.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]Event, len(entries))
	for i, e := range entries {
		rows[i] = Event{
			SessionID:   sessionID,
			Sequence:    i,
			Command:     e.Command,
			RequestHex:  fmt.Sprintf("%x", e.Request),
			ResponseHex: fmt.Sprintf("%x", e.Response),
			StatusWord:  uint16(e.StatusWord),
			RecordedAt:  recordedAt,
		}
	}
	if err := s.db.Create(&rows).Error; err != nil {
		return fmt.Errorf("persist audit trail for session %q: %w", sessionID, err)
	}
	return nil
}

// EventsForSession returns every persisted event for sessionID, oldest
// first.
func (s *Store) EventsForSession(sessionID string) ([]Event, error) {
	var rows []Event
	if err := s.db.Where("session_id = ?", sessionID).Order("sequence asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query audit trail for session %q: %w", sessionID, err)
	}
	return rows, nil
}

// StatusWordValue decodes the event's status word back into apdu.StatusWord.
func (e Event) StatusWordValue() apdu.StatusWord { return apdu.StatusWord(e.StatusWord) }

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
