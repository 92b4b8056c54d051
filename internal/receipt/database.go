package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

const (
	receiptsBucket  = "receipts"
	keysBucket      = "receipt_keys"
	productsBucket  = "products"
	bonusesBucket   = "unmatched_bonuses"
	importLogBucket = "import_logs"
)

var (
	// ErrReceiptNotFound is returned when no receipt has the requested ID
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrDuplicateReceipt is returned when a receipt with the same store,
	// purchase date and total is already stored
	ErrDuplicateReceipt = errors.New("duplicate receipt")
	// ErrBonusNotFound is returned when an unmatched bonus does not exist or
	// belongs to another receipt
	ErrBonusNotFound = errors.New("bonus not found")
)

// DB defines the interface for database operations
type DB interface {
	// SaveImport stores a new receipt with its unmatched bonuses and import
	// log in a single transaction
	SaveImport(receipt *Receipt, bonuses []*UnmatchedBonus, log *ImportLog) error

	// HasReceipt reports whether a receipt with the same identity is stored
	HasReceipt(store, purchasedDate string, total decimal.Decimal) (bool, error)

	// GetReceipt retrieves a receipt by ID
	GetReceipt(id string) (*Receipt, error)

	// ListReceipts returns all receipts, most recent purchase first
	ListReceipts() ([]*Receipt, error)

	// DeleteReceipt removes a receipt and its unmatched bonuses
	DeleteReceipt(id string) error

	// FindOrCreateProduct returns the stored product with the same key as
	// candidate, storing candidate when there is none
	FindOrCreateProduct(candidate *Product) (*Product, error)

	// ListProducts returns all products ordered by name
	ListProducts() ([]*Product, error)

	// GetUnmatchedBonus retrieves an unmatched bonus by ID
	GetUnmatchedBonus(id string) (*UnmatchedBonus, error)

	// ListUnmatchedBonuses returns the bonuses recorded for a receipt
	ListUnmatchedBonuses(receiptID string) ([]*UnmatchedBonus, error)

	// SaveResolution stores an updated receipt and bonus together
	SaveResolution(receipt *Receipt, bonus *UnmatchedBonus) error

	// SaveImportLog stores an import log entry
	SaveImportLog(log *ImportLog) error

	// ListImportLogs returns all import logs, newest first
	ListImportLogs() ([]*ImportLog, error)

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
		for _, name := range []string{receiptsBucket, keysBucket, productsBucket, bonusesBucket, importLogBucket} {
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

// receiptKey identifies a purchase independent of the uploaded file
func receiptKey(store, purchasedDate string, total decimal.Decimal) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s", store, purchasedDate, total.StringFixed(2)))
}

func putJSON(bucket *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return bucket.Put([]byte(key), data)
}

// SaveImport stores a new receipt with its unmatched bonuses and import log
func (b *BoltDB) SaveImport(receipt *Receipt, bonuses []*UnmatchedBonus, log *ImportLog) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		keys := tx.Bucket([]byte(keysBucket))
		key := receiptKey(receipt.Store, receipt.PurchasedDate, receipt.TotalAmount)
		if owner := keys.Get(key); owner != nil && string(owner) != receipt.ID {
			return ErrDuplicateReceipt
		}
		if err := keys.Put(key, []byte(receipt.ID)); err != nil {
			return fmt.Errorf("indexing receipt: %w", err)
		}

		if err := putJSON(tx.Bucket([]byte(receiptsBucket)), receipt.ID, receipt); err != nil {
			return err
		}

		bonusBucket := tx.Bucket([]byte(bonusesBucket))
		for _, bonus := range bonuses {
			if err := putJSON(bonusBucket, bonus.ID, bonus); err != nil {
				return err
			}
		}

		if log != nil {
			return putJSON(tx.Bucket([]byte(importLogBucket)), log.ID, log)
		}
		return nil
	})
}

// HasReceipt reports whether a receipt with the same identity is stored
func (b *BoltDB) HasReceipt(store, purchasedDate string, total decimal.Decimal) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(keysBucket)).Get(receiptKey(store, purchasedDate, total)) != nil
		return nil
	})
	return found, err
}

// GetReceipt retrieves a receipt by ID
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(receiptsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrReceiptNotFound, id)
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ListReceipts returns all receipts, most recent purchase first
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(receiptsBucket)).ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, &receipt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].PurchasedAt.After(receipts[j].PurchasedAt)
	})
	return receipts, nil
}

// DeleteReceipt removes a receipt, its duplicate index entry and its
// unmatched bonuses
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		receipts := tx.Bucket([]byte(receiptsBucket))
		data := receipts.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrReceiptNotFound, id)
		}
		var receipt Receipt
		if err := json.Unmarshal(data, &receipt); err != nil {
			return fmt.Errorf("unmarshaling receipt: %w", err)
		}

		keys := tx.Bucket([]byte(keysBucket))
		key := receiptKey(receipt.Store, receipt.PurchasedDate, receipt.TotalAmount)
		if owner := keys.Get(key); string(owner) == id {
			if err := keys.Delete(key); err != nil {
				return err
			}
		}

		bonuses := tx.Bucket([]byte(bonusesBucket))
		var orphaned [][]byte
		err := bonuses.ForEach(func(k, v []byte) error {
			var bonus UnmatchedBonus
			if err := json.Unmarshal(v, &bonus); err != nil {
				return fmt.Errorf("unmarshaling bonus: %w", err)
			}
			if bonus.ReceiptID == id {
				orphaned = append(orphaned, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		// keys are collected first, deleting inside ForEach is not allowed
		for _, k := range orphaned {
			if err := bonuses.Delete(k); err != nil {
				return err
			}
		}

		return receipts.Delete([]byte(id))
	})
}

// FindOrCreateProduct returns the product stored under the key of
// candidate.Name, storing candidate when there is none
func (b *BoltDB) FindOrCreateProduct(candidate *Product) (*Product, error) {
	var product *Product
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(productsBucket))
		key := ProductKey(candidate.Name)
		if data := bucket.Get([]byte(key)); data != nil {
			return json.Unmarshal(data, &product)
		}

		candidate.NormalizedName = key
		product = candidate
		return putJSON(bucket, key, candidate)
	})
	if err != nil {
		return nil, fmt.Errorf("finding product %q: %w", candidate.Name, err)
	}
	return product, nil
}

// ListProducts returns all products ordered by name
func (b *BoltDB) ListProducts() ([]*Product, error) {
	products := make([]*Product, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		// keys are the normalized names, so iteration order is already by name
		return tx.Bucket([]byte(productsBucket)).ForEach(func(k, v []byte) error {
			var product Product
			if err := json.Unmarshal(v, &product); err != nil {
				return fmt.Errorf("unmarshaling product: %w", err)
			}
			products = append(products, &product)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// GetUnmatchedBonus retrieves an unmatched bonus by ID
func (b *BoltDB) GetUnmatchedBonus(id string) (*UnmatchedBonus, error) {
	var bonus *UnmatchedBonus
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bonusesBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrBonusNotFound, id)
		}
		return json.Unmarshal(data, &bonus)
	})
	if err != nil {
		return nil, err
	}
	return bonus, nil
}

// ListUnmatchedBonuses returns the bonuses recorded for a receipt in the
// order they were printed
func (b *BoltDB) ListUnmatchedBonuses(receiptID string) ([]*UnmatchedBonus, error) {
	bonuses := make([]*UnmatchedBonus, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bonusesBucket)).ForEach(func(k, v []byte) error {
			var bonus UnmatchedBonus
			if err := json.Unmarshal(v, &bonus); err != nil {
				return fmt.Errorf("unmarshaling bonus: %w", err)
			}
			if bonus.ReceiptID == receiptID {
				bonuses = append(bonuses, &bonus)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(bonuses, func(i, j int) bool {
		if !bonuses[i].CreatedAt.Equal(bonuses[j].CreatedAt) {
			return bonuses[i].CreatedAt.Before(bonuses[j].CreatedAt)
		}
		return bonuses[i].Position < bonuses[j].Position
	})
	return bonuses, nil
}

// SaveResolution stores an updated receipt and bonus in one transaction
func (b *BoltDB) SaveResolution(receipt *Receipt, bonus *UnmatchedBonus) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		receipts := tx.Bucket([]byte(receiptsBucket))
		if receipts.Get([]byte(receipt.ID)) == nil {
			return fmt.Errorf("%w: %s", ErrReceiptNotFound, receipt.ID)
		}
		if err := putJSON(receipts, receipt.ID, receipt); err != nil {
			return err
		}
		return putJSON(tx.Bucket([]byte(bonusesBucket)), bonus.ID, bonus)
	})
}

// SaveImportLog stores an import log entry
func (b *BoltDB) SaveImportLog(log *ImportLog) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(importLogBucket)), log.ID, log)
	})
}

// ListImportLogs returns all import logs, newest first
func (b *BoltDB) ListImportLogs() ([]*ImportLog, error) {
	logs := make([]*ImportLog, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(importLogBucket)).ForEach(func(k, v []byte) error {
			var log ImportLog
			if err := json.Unmarshal(v, &log); err != nil {
				return fmt.Errorf("unmarshaling import log: %w", err)
			}
			logs = append(logs, &log)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	return logs, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
