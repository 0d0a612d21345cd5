package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketRecords = []byte("records")
	bucketDevices = []byte("devices")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketDevices} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func bucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("bucket %q not found", name)
	}
	return b, nil
}

// --- Engine records ---

func (s *BoltStore) GetRecord(ieee string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketRecords)
		if err != nil {
			return err
		}
		data := b.Get([]byte(ieee))
		if data == nil {
			return fmt.Errorf("record %s: %w", ieee, ErrNotFound)
		}
		rec, err = decodeRecord(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *BoltStore) ListRecords() ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return nil
		}
		records = make([]*Record, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return fmt.Errorf("record %s: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

func (s *BoltStore) DeleteRecord(ieee string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketRecords)
		if err != nil {
			return err
		}
		return b.Delete([]byte(ieee))
	})
}

func (s *BoltStore) UpdateRecord(ieee string, fn func(rec *Record) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketRecords)
		if err != nil {
			return err
		}
		rec := &Record{IEEEAddress: ieee}
		if data := b.Get([]byte(ieee)); data != nil {
			if rec, err = decodeRecord(data); err != nil {
				return err
			}
		}
		if err := fn(rec); err != nil {
			return err
		}
		rec.IEEEAddress = ieee
		rec.UpdatedAt = time.Now()
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(ieee), data)
	})
}

// --- Host device state ---

func (s *BoltStore) GetDevice(ieee string) (*Device, error) {
	var dev Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		data := b.Get([]byte(ieee))
		if data == nil {
			return fmt.Errorf("device %s: %w", ieee, ErrNotFound)
		}
		return json.Unmarshal(data, &dev)
	})
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (s *BoltStore) ListDevices() ([]*Device, error) {
	var devices []*Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return nil // no bucket = no devices
		}
		devices = make([]*Device, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var dev Device
			if err := json.Unmarshal(v, &dev); err != nil {
				return err
			}
			devices = append(devices, &dev)
			return nil
		})
	})
	return devices, err
}

func (s *BoltStore) DeleteDevice(ieee string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		return b.Delete([]byte(ieee))
	})
}

func (s *BoltStore) HasCapability(ieee, capability string) (bool, error) {
	dev, err := s.GetDevice(ieee)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return dev.has(capability), nil
}

func (s *BoltStore) AddCapability(ieee, capability string) error {
	return s.updateDevice(ieee, true, func(dev *Device) (bool, error) {
		return dev.add(capability), nil
	})
}

func (s *BoltStore) RemoveCapability(ieee, capability string) error {
	return s.updateDevice(ieee, false, func(dev *Device) (bool, error) {
		return dev.remove(capability), nil
	})
}

func (s *BoltStore) SetCapabilityValue(ieee, capability string, value any) error {
	return s.updateDevice(ieee, false, func(dev *Device) (bool, error) {
		if err := dev.set(capability, value); err != nil {
			return false, fmt.Errorf("device %s: %s: %w", ieee, capability, err)
		}
		return true, nil
	})
}

// updateDevice runs fn on the stored device inside one transaction and writes
// it back when fn reports a change.
func (s *BoltStore) updateDevice(ieee string, create bool, fn func(dev *Device) (bool, error)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketDevices)
		if err != nil {
			return err
		}
		dev := &Device{IEEEAddress: ieee}
		if data := b.Get([]byte(ieee)); data != nil {
			if err := json.Unmarshal(data, dev); err != nil {
				return err
			}
		} else if !create {
			return fmt.Errorf("device %s: %w", ieee, ErrNotFound)
		}
		changed, err := fn(dev)
		if err != nil || !changed {
			return err
		}
		dev.UpdatedAt = time.Now()
		data, err := json.Marshal(dev)
		if err != nil {
			return err
		}
		return b.Put([]byte(ieee), data)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
