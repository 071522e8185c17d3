// Package store implements the durable signed-packet store: a single-table
// embedded KV keyed by the 32-byte raw public key, backed by gorm over
// SQLite so the whole store lives in one file with transactional writes.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkarrdns/pkarrdns/internal/metrics"
	"github.com/pkarrdns/pkarrdns/internal/perr"
	"github.com/pkarrdns/pkarrdns/internal/pkarr"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// row is the single gorm model backing table "signed_packets_1": the raw
// 32-byte key as primary key, the opaque relay-wire bytes as the value, and
// the packet's own timestamp duplicated into a column so upsert can compare
// freshness without deserializing the blob.
type row struct {
	PublicKey       []byte `gorm:"column:public_key;primaryKey;size:32"`
	TimestampMicros uint64 `gorm:"column:timestamp_micros;not null"`
	Body            []byte `gorm:"column:body;not null"`
}

func (row) TableName() string { return "signed_packets_1" }

// SignedPacketStore is the durable key->latest-signed-packet map described
// in the component design: single embedded file, one table, transactional
// upsert with at-most-one-winner-per-key freshness semantics.
type SignedPacketStore struct {
	db *gorm.DB
	mu sync.Mutex // serializes writes; gorm/sqlite already serializes at the driver level, this just keeps the freshness check and the write atomic from our side
}

// Open attaches to (or creates) the backing file at path.
func Open(path string) (*SignedPacketStore, error) {
	return open(sqlite.Open(path))
}

// OpenInMemory creates a store with no backing file, used by tests and by
// ephemeral deployments.
func OpenInMemory() (*SignedPacketStore, error) {
	return open(sqlite.Open("file::memory:?cache=shared"))
}

func open(dialector gorm.Dialector) (*SignedPacketStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, perr.New(perr.StorageError, "store.Open", err)
	}
	if err := db.AutoMigrate(&row{}); err != nil {
		return nil, perr.New(perr.StorageError, "store.Open", fmt.Errorf("migrate: %w", err))
	}
	return &SignedPacketStore{db: db}, nil
}

// Ping verifies the backing database answers a trivial query, used by the
// anycast health gate.
func (s *SignedPacketStore) Ping(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return perr.New(perr.StorageError, "store.Ping", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (s *SignedPacketStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Upsert writes packet within one transaction, returning true only if it
// was accepted (no existing row, or existing row strictly older). Transient
// I/O errors are retried a handful of times before surfacing as StorageError.
func (s *SignedPacketStore) Upsert(ctx context.Context, packet *pkarr.SignedPacket) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accepted, wasNew bool
	err := retry.Do(
		func() error {
			return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var existing row
				err := tx.Where("public_key = ?", packet.PublicKey.Bytes()).Take(&existing).Error
				switch {
				case err == gorm.ErrRecordNotFound:
					accepted, wasNew = true, true
				case err != nil:
					return err
				default:
					accepted = packet.TimestampMicros > existing.TimestampMicros
				}
				if !accepted {
					return nil
				}
				r := row{
					PublicKey:       packet.PublicKey.Bytes(),
					TimestampMicros: packet.TimestampMicros,
					Body:            packet.RelayBytes(),
				}
				return tx.Save(&r).Error
			})
		},
		retry.Attempts(3),
		retry.Delay(10*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return false, perr.New(perr.StorageError, "store.Upsert", err)
	}

	if accepted {
		if wasNew {
			metrics.StorePacketsInserted.Inc()
		} else {
			metrics.StorePacketsUpdated.Inc()
		}
	}
	return accepted, nil
}

// Get reads the stored packet for key, re-verifying it before returning so
// a corrupted or tampered row can never be handed back to a caller as if it
// were trustworthy.
func (s *SignedPacketStore) Get(ctx context.Context, key zkey.PublicKey) (*pkarr.SignedPacket, error) {
	var r row
	err := s.db.WithContext(ctx).Where("public_key = ?", key.Bytes()).Take(&r).Error
	if err == gorm.ErrRecordNotFound {
		return nil, perr.New(perr.NotFound, "store.Get", fmt.Errorf("no packet for key %s", key))
	}
	if err != nil {
		return nil, perr.New(perr.StorageError, "store.Get", err)
	}
	return pkarr.VerifyAndProject(key, r.Body)
}

// Remove deletes the row for key, returning whether one existed.
func (s *SignedPacketStore) Remove(ctx context.Context, key zkey.PublicKey) (bool, error) {
	res := s.db.WithContext(ctx).Where("public_key = ?", key.Bytes()).Delete(&row{})
	if res.Error != nil {
		return false, perr.New(perr.StorageError, "store.Remove", res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.StorePacketsRemoved.Inc()
	}
	return res.RowsAffected > 0, nil
}

// Iter calls fn for every stored packet, re-decoding and re-verifying each
// one. A decode error for a single row is passed to fn but does not abort
// the remaining iteration, matching the store's failure model.
func (s *SignedPacketStore) Iter(ctx context.Context, fn func(*pkarr.SignedPacket, error) error) error {
	rows, err := s.db.WithContext(ctx).Model(&row{}).Rows()
	if err != nil {
		return perr.New(perr.StorageError, "store.Iter", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r row
		if err := s.db.ScanRows(rows, &r); err != nil {
			if cbErr := fn(nil, perr.New(perr.StorageError, "store.Iter", err)); cbErr != nil {
				return cbErr
			}
			continue
		}
		key, keyErr := zkey.FromBytes(r.PublicKey)
		if keyErr != nil {
			if cbErr := fn(nil, perr.New(perr.DecodeError, "store.Iter", keyErr)); cbErr != nil {
				return cbErr
			}
			continue
		}
		packet, decErr := pkarr.VerifyAndProject(key, r.Body)
		if cbErr := fn(packet, decErr); cbErr != nil {
			return cbErr
		}
	}
	return rows.Err()
}
