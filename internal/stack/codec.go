package stack

import (
	"encoding/base64"
	"fmt"
	"github.com/xssnick/tonutils-contract-executor/internal/emulate"
	"github.com/xssnick/tonutils-go/tvm/cell"
	"math/big"
)

// DecodeError is returned when vm gives us an entry we don't know how to interpret.
type DecodeError struct {
	Type   emulate.EntryType
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unknown vm stack entry type %q", e.Type)
	}
	return fmt.Sprintf("failed to decode vm stack entry %q: %s", e.Type, e.Reason)
}

// Decode converts wire entry to go value:
// nil, *big.Int, *cell.Cell, *cell.Slice or []any for tuples.
func Decode(entry emulate.StackEntry) (any, error) {
	switch entry.Type {
	case emulate.EntryNull:
		return nil, nil
	case emulate.EntryInt:
		v, ok := new(big.Int).SetString(entry.Value, 10)
		if !ok {
			return nil, &DecodeError{Type: entry.Type, Reason: "incorrect integer " + entry.Value}
		}
		return v, nil
	case emulate.EntryCell:
		c, err := FromBase64(entry.Value)
		if err != nil {
			return nil, &DecodeError{Type: entry.Type, Reason: err.Error()}
		}
		return c, nil
	case emulate.EntrySlice:
		c, err := FromBase64(entry.Value)
		if err != nil {
			return nil, &DecodeError{Type: entry.Type, Reason: err.Error()}
		}
		return c.BeginParse(), nil
	case emulate.EntryTuple:
		return DecodeStack(entry.Items)
	}
	return nil, &DecodeError{Type: entry.Type}
}

func DecodeStack(entries []emulate.StackEntry) ([]any, error) {
	res := make([]any, 0, len(entries))
	for _, e := range entries {
		v, err := Decode(e)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

// Encode converts go value to the wire entry, supported types are
// nil, integers (including *big.Int), *cell.Cell, *cell.Slice and []any.
func Encode(v any) (emulate.StackEntry, error) {
	switch x := v.(type) {
	case nil:
		return emulate.NullEntry(), nil
	case *big.Int:
		if x == nil {
			return emulate.NullEntry(), nil
		}
		return intEntry(x), nil
	case int:
		return intEntry(big.NewInt(int64(x))), nil
	case int8:
		return intEntry(big.NewInt(int64(x))), nil
	case int16:
		return intEntry(big.NewInt(int64(x))), nil
	case int32:
		return intEntry(big.NewInt(int64(x))), nil
	case int64:
		return intEntry(big.NewInt(x)), nil
	case uint:
		return intEntry(new(big.Int).SetUint64(uint64(x))), nil
	case uint8:
		return intEntry(new(big.Int).SetUint64(uint64(x))), nil
	case uint16:
		return intEntry(new(big.Int).SetUint64(uint64(x))), nil
	case uint32:
		return intEntry(new(big.Int).SetUint64(uint64(x))), nil
	case uint64:
		return intEntry(new(big.Int).SetUint64(x)), nil
	case *cell.Cell:
		if x == nil {
			return emulate.NullEntry(), nil
		}
		return emulate.StackEntry{Type: emulate.EntryCell, Value: ToBase64(x)}, nil
	case *cell.Slice:
		if x == nil {
			return emulate.NullEntry(), nil
		}
		c, err := x.ToCell()
		if err != nil {
			return emulate.StackEntry{}, fmt.Errorf("failed to convert slice to cell: %w", err)
		}
		return emulate.StackEntry{Type: emulate.EntrySlice, Value: ToBase64(c)}, nil
	case []any:
		items, err := EncodeStack(x)
		if err != nil {
			return emulate.StackEntry{}, err
		}
		return emulate.TupleEntry(items...), nil
	case emulate.StackEntry:
		return x, nil
	}
	return emulate.StackEntry{}, fmt.Errorf("unsupported stack value type %T", v)
}

func EncodeStack(values []any) ([]emulate.StackEntry, error) {
	res := make([]emulate.StackEntry, 0, len(values))
	for i, v := range values {
		e, err := Encode(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode stack value %d: %w", i, err)
		}
		res = append(res, e)
	}
	return res, nil
}

func intEntry(v *big.Int) emulate.StackEntry {
	return emulate.StackEntry{Type: emulate.EntryInt, Value: v.String()}
}

func ToBase64(c *cell.Cell) string {
	return base64.StdEncoding.EncodeToString(c.ToBOCWithFlags(false))
}

func FromBase64(boc string) (*cell.Cell, error) {
	data, err := base64.StdEncoding.DecodeString(boc)
	if err != nil {
		return nil, fmt.Errorf("incorrect base64: %w", err)
	}

	c, err := cell.FromBOC(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse boc: %w", err)
	}
	return c, nil
}
