// Package badgerstore implements store.Store on BadgerDB for local and
// offline deployments. Badger transactions give each Update full
// atomicity; BatchWrite deliberately applies each operation in its own
// transaction to preserve the contract's lack of cross-item atomicity.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dgraph-io/badger/v4"

	"github.com/mrsandwich/backoffice/store"
	"github.com/mrsandwich/backoffice/table"
)

type Store struct {
	db  *badger.DB
	def table.TableDefinition
}

var _ store.Store = (*Store)(nil)

// Options configures the underlying BadgerDB.
type Options struct {
	// Path to the database directory. Empty means in-memory.
	Path string
	// Logger for BadgerDB. Nil disables badger's own logging.
	Logger badger.Logger
}

func New(opts Options, def table.TableDefinition) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db, def: def}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(ctx context.Context, key store.Key) (store.Item, error) {
	var item store.Item
	err := s.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(encodeKey(s.def.Name, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			item, err = deserializeItem(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Store) Put(ctx context.Context, key store.Key, item store.Item) error {
	data, err := s.serializeWithKey(key, item)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(s.def.Name, key), data)
	})
}

func (s *Store) PutIfAbsent(ctx context.Context, key store.Key, item store.Item) error {
	data, err := s.serializeWithKey(key, item)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		encoded := encodeKey(s.def.Name, key)
		if _, err := txn.Get(encoded); err == nil {
			return store.ErrExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(encoded, data)
	})
}

func (s *Store) Delete(ctx context.Context, key store.Key) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(encodeKey(s.def.Name, key))
	})
}

func (s *Store) QueryPrefix(ctx context.Context, partition, sortPrefix string) ([]store.Item, error) {
	prefix := partitionPrefix(s.def.Name, partition)
	seek := append(append([]byte{}, prefix...), sortPrefix...)
	return s.collect(seek, func(sort string) (keep, done bool) {
		if len(sort) < len(sortPrefix) || sort[:len(sortPrefix)] != sortPrefix {
			return false, true
		}
		return true, false
	}, prefix)
}

func (s *Store) QueryRange(ctx context.Context, partition, low, high string) ([]store.Item, error) {
	prefix := partitionPrefix(s.def.Name, partition)
	seek := append(append([]byte{}, prefix...), low...)
	return s.collect(seek, func(sort string) (keep, done bool) {
		if sort > high {
			return false, true
		}
		return true, false
	}, prefix)
}

// collect iterates from seek within prefix, calling accept per sort key.
func (s *Store) collect(seek []byte, accept func(sort string) (keep, done bool), prefix []byte) ([]store.Item, error) {
	var items []store.Item
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.Valid(); it.Next() {
			sort, err := sortFromKey(it.Item().Key())
			if err != nil {
				return err
			}
			keep, done := accept(sort)
			if done {
				break
			}
			if !keep {
				continue
			}
			if err := it.Item().Value(func(val []byte) error {
				item, err := deserializeItem(val)
				if err != nil {
					return err
				}
				items = append(items, item)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ScanAttribute(ctx context.Context, attribute, value string) ([]store.Item, error) {
	var items []store.Item
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = tablePrefix(s.def.Name)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				item, err := deserializeItem(val)
				if err != nil {
					return err
				}
				if av, ok := item[attribute].(*types.AttributeValueMemberS); ok && av.Value == value {
					items = append(items, item)
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) Update(ctx context.Context, key store.Key, ops []store.UpdateOp, mustExist bool) (store.Item, error) {
	var updated store.Item
	err := s.db.Update(func(txn *badger.Txn) error {
		encoded := encodeKey(s.def.Name, key)

		item := store.Item{}
		entry, err := txn.Get(encoded)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if mustExist {
				return store.ErrNotFound
			}
			for k, v := range s.def.KeyAttrs(key.Partition, key.Sort) {
				item[k] = v
			}
		case err != nil:
			return err
		default:
			if err := entry.Value(func(val []byte) error {
				item, err = deserializeItem(val)
				return err
			}); err != nil {
				return err
			}
		}

		if err := applyOps(item, ops); err != nil {
			return err
		}
		data, err := serializeItem(item)
		if err != nil {
			return err
		}
		updated = item
		return txn.Set(encoded, data)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) BatchWrite(ctx context.Context, ops ...store.WriteOp) (store.BatchResult, error) {
	var res store.BatchResult
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			res.Unprocessed = append(res.Unprocessed, op)
			continue
		}
		var err error
		if op.IsDelete() {
			err = s.Delete(ctx, op.Key)
		} else {
			err = s.Put(ctx, op.Key, op.Item)
		}
		if err != nil {
			res.Unprocessed = append(res.Unprocessed, op)
		}
	}
	return res, nil
}

func (s *Store) serializeWithKey(key store.Key, item store.Item) ([]byte, error) {
	stored := make(store.Item, len(item)+2)
	for k, v := range item {
		stored[k] = v
	}
	for k, v := range s.def.KeyAttrs(key.Partition, key.Sort) {
		stored[k] = v
	}
	return serializeItem(stored)
}

func applyOps(item store.Item, ops []store.UpdateOp) error {
	for _, op := range ops {
		switch o := op.(type) {
		case store.SetOp:
			av, err := attributevalue.Marshal(o.Value)
			if err != nil {
				return fmt.Errorf("marshal %q: %w", o.Name, err)
			}
			item[o.Name] = av
		case store.RemoveOp:
			delete(item, o.Name)
		case store.AddOp:
			var current int64
			if av, ok := item[o.Name].(*types.AttributeValueMemberN); ok {
				n, err := strconv.ParseInt(av.Value, 10, 64)
				if err != nil {
					return fmt.Errorf("field %q is not an integer: %w", o.Name, err)
				}
				current = n
			}
			item[o.Name] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current+o.Delta, 10)}
		default:
			return fmt.Errorf("unsupported update op %T", op)
		}
	}
	return nil
}
