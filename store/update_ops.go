package store

// UpdateOp is a single-field mutation inside an Update. The concrete
// types are interpreted by each backend.
type UpdateOp interface {
	Field() string
}

// SetOp overwrites a field regardless of any existing value.
type SetOp struct {
	Name  string
	Value any
}

func Set(field string, value any) SetOp { return SetOp{Name: field, Value: value} }

func (o SetOp) Field() string { return o.Name }

// RemoveOp removes a field from the record.
type RemoveOp struct {
	Name string
}

func Remove(field string) RemoveOp { return RemoveOp{Name: field} }

func (o RemoveOp) Field() string { return o.Name }

// AddOp increments a numeric field, treating an absent field as zero.
// This is the one mutation that must stay a single store-level
// operation: callers must not emulate it with read-modify-write, or
// concurrent increments are lost.
type AddOp struct {
	Name  string
	Delta int64
}

func Add(field string, delta int64) AddOp { return AddOp{Name: field, Delta: delta} }

func (o AddOp) Field() string { return o.Name }
