package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucketName = "receipts"
	exportBucketName  = "exports"
)

var (
	// ErrNotFound is returned when a receipt or export does not exist
	ErrNotFound = errors.New("not found")
	// ErrExported is returned when a change conflicts with a recorded export
	ErrExported = errors.New("already exported")
	// ErrInvalidBatch is returned when an export batch lists no receipts or
	// lists one receipt twice
	ErrInvalidBatch = errors.New("invalid export batch")
)

// DB defines the interface for database operations
type DB interface {
	// SaveReceipt saves a receipt to the database
	SaveReceipt(receipt *Receipt) error

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// ListReceipts returns all receipts
	ListReceipts() ([]*Receipt, error)

	// DeleteReceipt removes a receipt from the database
	DeleteReceipt(id string) error

	// CommitExport saves an export batch and links its receipts to it in
	// one transaction. Nothing is written when a receipt is missing or
	// already belongs to another export.
	CommitExport(export *Export) error

	// GetExport retrieves an export batch by ID
	GetExport(id string) (*Export, error)

	// ListExports returns all export batches
	ListExports() ([]*Export, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{receiptBucketName, exportBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// put stores v as JSON under key in bucket
func (b *BoltDB) put(bucket, key string, v any) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", bucket, err)
		}
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

// get decodes the JSON value under key in bucket into v
func (b *BoltDB) get(bucket, kind, key string, v any) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
		}
		return json.Unmarshal(data, v)
	})
}

// each calls fn with every value in bucket, in key order
func (b *BoltDB) each(bucket string, fn func(v []byte) error) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(_, v []byte) error {
			return fn(v)
		})
	})
}

// SaveReceipt saves a receipt to the database
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	return b.put(receiptBucketName, receipt.ID, receipt)
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt Receipt
	if err := b.get(receiptBucketName, "receipt", id, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// ListReceipts returns all receipts
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.each(receiptBucketName, func(v []byte) error {
		var receipt Receipt
		if err := json.Unmarshal(v, &receipt); err != nil {
			return fmt.Errorf("unmarshaling receipt: %w", err)
		}
		receipts = append(receipts, &receipt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt from the database
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(receiptBucketName)).Delete([]byte(id))
	})
}

// CommitExport saves an export batch and links its receipts to it in
// one transaction
func (b *BoltDB) CommitExport(export *Export) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		receipts := tx.Bucket([]byte(receiptBucketName))
		for _, id := range export.ReceiptIDs {
			data := receipts.Get([]byte(id))
			if data == nil {
				return fmt.Errorf("receipt %s: %w", id, ErrNotFound)
			}

			var receipt Receipt
			if err := json.Unmarshal(data, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			if receipt.ExportID != "" {
				return fmt.Errorf("receipt %s: %w", id, ErrExported)
			}

			receipt.ExportID = export.ID
			receipt.UpdatedAt = export.CreatedAt
			updated, err := json.Marshal(&receipt)
			if err != nil {
				return fmt.Errorf("marshaling receipt: %w", err)
			}
			if err := receipts.Put([]byte(id), updated); err != nil {
				return err
			}
		}

		data, err := json.Marshal(export)
		if err != nil {
			return fmt.Errorf("marshaling export: %w", err)
		}
		return tx.Bucket([]byte(exportBucketName)).Put([]byte(export.ID), data)
	})
}

// GetExport retrieves an export batch by ID
func (b *BoltDB) GetExport(id string) (*Export, error) {
	var export Export
	if err := b.get(exportBucketName, "export", id, &export); err != nil {
		return nil, err
	}
	return &export, nil
}

// ListExports returns all export batches
func (b *BoltDB) ListExports() ([]*Export, error) {
	exports := make([]*Export, 0)
	err := b.each(exportBucketName, func(v []byte) error {
		var export Export
		if err := json.Unmarshal(v, &export); err != nil {
			return fmt.Errorf("unmarshaling export: %w", err)
		}
		exports = append(exports, &export)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exports, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
