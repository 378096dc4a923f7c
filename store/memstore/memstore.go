// Package memstore is an in-memory implementation of store.Store used
// by tests and by the server's --memory mode. Each partition is a btree
// ordered on the sort key, so queries iterate in ascending sort-key
// order exactly like the real table.
package memstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/btree"

	"github.com/mrsandwich/backoffice/store"
	"github.com/mrsandwich/backoffice/table"
)

type record struct {
	sort string
	item store.Item
}

func less(l, r *record) bool { return l.sort < r.sort }

type Store struct {
	mu         sync.Mutex
	def        table.TableDefinition
	partitions map[string]*btree.BTreeG[*record]

	// failWrite, when set, makes BatchWrite leave matching operations
	// unprocessed. Tests use this to exercise partial batch failures.
	failWrite func(op store.WriteOp) bool
}

var _ store.Store = (*Store)(nil)

func New(def table.TableDefinition) *Store {
	return &Store{
		def:        def,
		partitions: make(map[string]*btree.BTreeG[*record]),
	}
}

// FailWrites installs a predicate that marks batch operations as
// unprocessed. Pass nil to clear.
func (s *Store) FailWrites(fn func(op store.WriteOp) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = fn
}

func (s *Store) partition(pk string) *btree.BTreeG[*record] {
	tree, ok := s.partitions[pk]
	if !ok {
		tree = btree.NewG(2, less)
		s.partitions[pk] = tree
	}
	return tree
}

func (s *Store) Get(ctx context.Context, key store.Key) (store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, found := s.partition(key.Partition).Get(&record{sort: key.Sort})
	if !found {
		return nil, store.ErrNotFound
	}
	return cloneItem(rec.item), nil
}

func (s *Store) Put(ctx context.Context, key store.Key, item store.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, item)
	return nil
}

func (s *Store) PutIfAbsent(ctx context.Context, key store.Key, item store.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.partition(key.Partition).Get(&record{sort: key.Sort}); found {
		return store.ErrExists
	}
	s.put(key, item)
	return nil
}

// put stores a copy of item with the key attributes injected.
// Callers must hold s.mu.
func (s *Store) put(key store.Key, item store.Item) {
	stored := cloneItem(item)
	for k, v := range s.def.KeyAttrs(key.Partition, key.Sort) {
		stored[k] = v
	}
	s.partition(key.Partition).ReplaceOrInsert(&record{sort: key.Sort, item: stored})
}

func (s *Store) Delete(ctx context.Context, key store.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partition(key.Partition).Delete(&record{sort: key.Sort})
	return nil
}

func (s *Store) QueryPrefix(ctx context.Context, partition, sortPrefix string) ([]store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []store.Item
	s.partition(partition).AscendGreaterOrEqual(&record{sort: sortPrefix}, func(rec *record) bool {
		if !strings.HasPrefix(rec.sort, sortPrefix) {
			return false
		}
		items = append(items, cloneItem(rec.item))
		return true
	})
	return items, nil
}

func (s *Store) QueryRange(ctx context.Context, partition, low, high string) ([]store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []store.Item
	s.partition(partition).AscendGreaterOrEqual(&record{sort: low}, func(rec *record) bool {
		if rec.sort > high {
			return false
		}
		items = append(items, cloneItem(rec.item))
		return true
	})
	return items, nil
}

func (s *Store) ScanAttribute(ctx context.Context, attribute, value string) ([]store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []store.Item
	for _, tree := range s.partitions {
		tree.Ascend(func(rec *record) bool {
			if av, ok := rec.item[attribute].(*types.AttributeValueMemberS); ok && av.Value == value {
				items = append(items, cloneItem(rec.item))
			}
			return true
		})
	}
	return items, nil
}

func (s *Store) Update(ctx context.Context, key store.Key, ops []store.UpdateOp, mustExist bool) (store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree := s.partition(key.Partition)
	rec, found := tree.Get(&record{sort: key.Sort})
	if !found {
		if mustExist {
			return nil, store.ErrNotFound
		}
		rec = &record{sort: key.Sort, item: s.def.KeyAttrs(key.Partition, key.Sort)}
	}
	updated := cloneItem(rec.item)
	if err := applyOps(updated, ops); err != nil {
		return nil, err
	}
	tree.ReplaceOrInsert(&record{sort: key.Sort, item: updated})
	return cloneItem(updated), nil
}

func (s *Store) BatchWrite(ctx context.Context, ops ...store.WriteOp) (store.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res store.BatchResult
	for _, op := range ops {
		if s.failWrite != nil && s.failWrite(op) {
			res.Unprocessed = append(res.Unprocessed, op)
			continue
		}
		if op.IsDelete() {
			s.partition(op.Key.Partition).Delete(&record{sort: op.Key.Sort})
		} else {
			s.put(op.Key, op.Item)
		}
	}
	return res, nil
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

func cloneItem(item store.Item) store.Item {
	out := make(store.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
