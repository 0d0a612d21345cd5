package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	ieee       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS devices (
	ieee       TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore implements Store on SQLite. Records are CBOR blobs, host
// devices JSON text, mirroring the bolt layout.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// --- Engine records ---

func (s *SQLiteStore) GetRecord(ieee string) (*Record, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM records WHERE ieee = ?`, ieee).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", ieee, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", ieee, err)
	}
	return decodeRecord(data)
}

func (s *SQLiteStore) ListRecords() ([]*Record, error) {
	rows, err := s.db.Query(`SELECT ieee, data FROM records ORDER BY ieee`)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var ieee string
		var data []byte
		if err := rows.Scan(&ieee, &data); err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", ieee, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) DeleteRecord(ieee string) error {
	if _, err := s.db.Exec(`DELETE FROM records WHERE ieee = ?`, ieee); err != nil {
		return fmt.Errorf("delete record %s: %w", ieee, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateRecord(ieee string, fn func(rec *Record) error) error {
	return s.withTx(func(tx *sql.Tx) error {
		rec := &Record{IEEEAddress: ieee}
		var data []byte
		err := tx.QueryRow(`SELECT data FROM records WHERE ieee = ?`, ieee).Scan(&data)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("record %s: %w", ieee, err)
		default:
			if rec, err = decodeRecord(data); err != nil {
				return err
			}
		}
		if err := fn(rec); err != nil {
			return err
		}
		rec.IEEEAddress = ieee
		rec.UpdatedAt = time.Now()
		data, err = encodeRecord(rec)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO records (ieee, data, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(ieee) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			ieee, data, rec.UpdatedAt.Unix())
		return err
	})
}

// --- Host device state ---

func (s *SQLiteStore) GetDevice(ieee string) (*Device, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM devices WHERE ieee = ?`, ieee).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("device %s: %w", ieee, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", ieee, err)
	}
	var dev Device
	if err := json.Unmarshal([]byte(data), &dev); err != nil {
		return nil, fmt.Errorf("device %s: %w", ieee, err)
	}
	return &dev, nil
}

func (s *SQLiteStore) ListDevices() ([]*Device, error) {
	rows, err := s.db.Query(`SELECT data FROM devices ORDER BY ieee`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		var dev Device
		if err := json.Unmarshal([]byte(data), &dev); err != nil {
			return nil, err
		}
		devices = append(devices, &dev)
	}
	return devices, rows.Err()
}

func (s *SQLiteStore) DeleteDevice(ieee string) error {
	if _, err := s.db.Exec(`DELETE FROM devices WHERE ieee = ?`, ieee); err != nil {
		return fmt.Errorf("delete device %s: %w", ieee, err)
	}
	return nil
}

func (s *SQLiteStore) HasCapability(ieee, capability string) (bool, error) {
	dev, err := s.GetDevice(ieee)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return dev.has(capability), nil
}

func (s *SQLiteStore) AddCapability(ieee, capability string) error {
	return s.updateDevice(ieee, true, func(dev *Device) (bool, error) {
		return dev.add(capability), nil
	})
}

func (s *SQLiteStore) RemoveCapability(ieee, capability string) error {
	return s.updateDevice(ieee, false, func(dev *Device) (bool, error) {
		return dev.remove(capability), nil
	})
}

func (s *SQLiteStore) SetCapabilityValue(ieee, capability string, value any) error {
	return s.updateDevice(ieee, false, func(dev *Device) (bool, error) {
		if err := dev.set(capability, value); err != nil {
			return false, fmt.Errorf("device %s: %s: %w", ieee, capability, err)
		}
		return true, nil
	})
}

func (s *SQLiteStore) updateDevice(ieee string, create bool, fn func(dev *Device) (bool, error)) error {
	return s.withTx(func(tx *sql.Tx) error {
		dev := &Device{IEEEAddress: ieee}
		var data string
		err := tx.QueryRow(`SELECT data FROM devices WHERE ieee = ?`, ieee).Scan(&data)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if !create {
				return fmt.Errorf("device %s: %w", ieee, ErrNotFound)
			}
		case err != nil:
			return fmt.Errorf("device %s: %w", ieee, err)
		default:
			if err := json.Unmarshal([]byte(data), dev); err != nil {
				return err
			}
		}
		changed, err := fn(dev)
		if err != nil || !changed {
			return err
		}
		dev.UpdatedAt = time.Now()
		raw, err := json.Marshal(dev)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO devices (ieee, data, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(ieee) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			ieee, string(raw), dev.UpdatedAt.Unix())
		return err
	})
}

func (s *SQLiteStore) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
