// Package store defines the record-store contract the rest of the
// service is written against: a sorted key-value table with point
// lookups, prefix and range queries over a partition, conditional
// updates, and a best-effort multi-item batch write.
//
// Three implementations exist: dynamostore (DynamoDB, production),
// badgerstore (BadgerDB, local persistence) and memstore (in-memory,
// tests). All of them iterate partitions in ascending sort-key order.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a raw record as stored in the table. Callers use
// attributevalue.MarshalMap / UnmarshalMap to convert to their structs.
type Item = map[string]types.AttributeValue

// Key identifies a single record.
type Key struct {
	Partition string
	Sort      string
}

var (
	// ErrNotFound is returned by Get, and by Update when the record is
	// required to exist but does not.
	ErrNotFound = errors.New("store: item not found")
	// ErrExists is returned by PutIfAbsent when the key is taken.
	ErrExists = errors.New("store: item already exists")
)

type Store interface {
	// Get returns the record at key, or ErrNotFound.
	Get(ctx context.Context, key Key) (Item, error)
	// Put writes the record unconditionally. The implementation injects
	// the key attributes into the stored item.
	Put(ctx context.Context, key Key, item Item) error
	// PutIfAbsent writes the record only if no record exists at key.
	// Returns ErrExists otherwise.
	PutIfAbsent(ctx context.Context, key Key, item Item) error
	// Delete removes the record at key. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key Key) error

	// QueryPrefix returns all records in the partition whose sort key
	// starts with sortPrefix, ascending by sort key. An empty prefix
	// returns the whole partition.
	QueryPrefix(ctx context.Context, partition, sortPrefix string) ([]Item, error)
	// QueryRange returns all records in the partition whose sort key is
	// in [low, high], ascending by sort key.
	QueryRange(ctx context.Context, partition, low, high string) ([]Item, error)
	// ScanAttribute is a full-table scan filtered on a string attribute.
	// O(table size); administrative listings only.
	ScanAttribute(ctx context.Context, attribute, value string) ([]Item, error)

	// Update applies ops to the record at key as a single atomic store
	// operation and returns the updated record. With mustExist set, a
	// missing record fails with ErrNotFound instead of being created.
	Update(ctx context.Context, key Key, ops []UpdateOp, mustExist bool) (Item, error)

	// BatchWrite applies the puts and deletes with NO cross-item
	// atomicity: some operations can apply while others do not. Failed
	// operations are reported in BatchResult.Unprocessed, never
	// swallowed. An error returned alongside a populated Unprocessed
	// lists exactly the operations that did not apply; an error with an
	// empty Unprocessed means nothing is known to have applied.
	BatchWrite(ctx context.Context, ops ...WriteOp) (BatchResult, error)
}

// WriteOp is a single put or delete inside a batch.
type WriteOp struct {
	Key  Key
	Item Item // nil for a delete
}

func PutOp(key Key, item Item) WriteOp { return WriteOp{Key: key, Item: item} }
func DeleteOp(key Key) WriteOp         { return WriteOp{Key: key} }

func (op WriteOp) IsDelete() bool { return op.Item == nil }

// BatchResult reports the outcome of a BatchWrite.
type BatchResult struct {
	Unprocessed []WriteOp
}

// Done reports whether every operation in the batch applied.
func (r BatchResult) Done() bool { return len(r.Unprocessed) == 0 }

func (r BatchResult) Err() error {
	if r.Done() {
		return nil
	}
	return fmt.Errorf("batch incomplete: %d operations unprocessed", len(r.Unprocessed))
}
