package emulate

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotCompiled = errors.New("native vm is not compiled, build with vmexec tag")

type EntryType string

const (
	EntryNull  EntryType = "null"
	EntryInt   EntryType = "int"
	EntryCell  EntryType = "cell"
	EntrySlice EntryType = "cell_slice"
	EntryTuple EntryType = "tuple"
)

// GasUnlimited is used by vm for any of gas bounds to not restrict execution.
const GasUnlimited int64 = -1

// StackEntry is a tagged vm stack value in wire form.
// Int value is a decimal string, cell and slice values are base64 encoded boc,
// tuple keeps its nested entries in Items.
type StackEntry struct {
	Type  EntryType
	Value string
	Items []StackEntry
}

type rawEntry struct {
	Type  EntryType       `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

func NullEntry() StackEntry {
	return StackEntry{Type: EntryNull}
}

func TupleEntry(items ...StackEntry) StackEntry {
	if items == nil {
		items = []StackEntry{}
	}
	return StackEntry{Type: EntryTuple, Items: items}
}

func (e StackEntry) MarshalJSON() ([]byte, error) {
	var val any
	switch e.Type {
	case EntryNull:
		return json.Marshal(rawEntry{Type: e.Type})
	case EntryInt, EntryCell, EntrySlice:
		val = e.Value
	case EntryTuple:
		items := e.Items
		if items == nil {
			items = []StackEntry{}
		}
		val = items
	default:
		return nil, fmt.Errorf("unknown stack entry type %q", e.Type)
	}

	data, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rawEntry{Type: e.Type, Value: data})
}

func (e *StackEntry) UnmarshalJSON(data []byte) error {
	var raw rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = StackEntry{Type: raw.Type}
	switch raw.Type {
	case EntryNull:
	case EntryTuple:
		e.Items = []StackEntry{}
		if len(raw.Value) == 0 {
			break
		}
		if err := json.Unmarshal(raw.Value, &e.Items); err != nil {
			return fmt.Errorf("failed to parse tuple items: %w", err)
		}
	default:
		// unknown types are kept as is, codec is responsible to reject them
		if len(raw.Value) > 0 {
			if err := json.Unmarshal(raw.Value, &e.Value); err != nil {
				return fmt.Errorf("failed to parse %s value: %w", raw.Type, err)
			}
		}
	}
	return nil
}

// Request is an execution config passed to vm.
type Request struct {
	Debug            bool         `json:"debug"`
	FunctionSelector int32        `json:"function_selector"`
	InitStack        []StackEntry `json:"init_stack"`
	Code             string       `json:"code"`
	Data             string       `json:"data"`
	C7               StackEntry   `json:"c7_register"`
	GasLimit         int64        `json:"gas_limit"`
	GasMax           int64        `json:"gas_max"`
	GasCredit        int64        `json:"gas_credit"`
}

// Result is one of *OkResult or *FailResult.
type Result interface {
	isResult()
}

// OkResult is returned when vm was able to run the code,
// it may still have non-zero exit code when contract has thrown.
type OkResult struct {
	ExitCode       int32
	GasConsumed    int64
	Stack          []StackEntry
	DataCell       string
	ActionListCell string
	Logs           string
	DebugLogs      []string
	C7             *StackEntry
}

// FailResult means that request was malformed or vm is broken.
type FailResult struct {
	Error    string
	ExitCode *int32
	Logs     string
}

func (*OkResult) isResult()   {}
func (*FailResult) isResult() {}

type rawResult struct {
	OK             bool         `json:"ok"`
	Error          string       `json:"error,omitempty"`
	ExitCode       *int32       `json:"exit_code,omitempty"`
	GasConsumed    int64        `json:"gas_consumed,omitempty"`
	Stack          []StackEntry `json:"stack,omitempty"`
	DataCell       string       `json:"data_cell,omitempty"`
	ActionListCell string       `json:"action_list_cell,omitempty"`
	Logs           string       `json:"logs,omitempty"`
	DebugLogs      []string     `json:"debugLogs,omitempty"`
	C7             *StackEntry  `json:"c7,omitempty"`
}

func ParseResult(data []byte) (Result, error) {
	var raw rawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse vm result: %w", err)
	}

	if !raw.OK {
		return &FailResult{
			Error:    raw.Error,
			ExitCode: raw.ExitCode,
			Logs:     raw.Logs,
		}, nil
	}

	if raw.ExitCode == nil {
		return nil, fmt.Errorf("vm result has no exit code")
	}

	return &OkResult{
		ExitCode:       *raw.ExitCode,
		GasConsumed:    raw.GasConsumed,
		Stack:          raw.Stack,
		DataCell:       raw.DataCell,
		ActionListCell: raw.ActionListCell,
		Logs:           raw.Logs,
		DebugLogs:      raw.DebugLogs,
		C7:             raw.C7,
	}, nil
}

func SerializeResult(res Result) ([]byte, error) {
	switch r := res.(type) {
	case *OkResult:
		code := r.ExitCode
		return json.Marshal(rawResult{
			OK:             true,
			ExitCode:       &code,
			GasConsumed:    r.GasConsumed,
			Stack:          r.Stack,
			DataCell:       r.DataCell,
			ActionListCell: r.ActionListCell,
			Logs:           r.Logs,
			DebugLogs:      r.DebugLogs,
			C7:             r.C7,
		})
	case *FailResult:
		return json.Marshal(rawResult{
			OK:       false,
			Error:    r.Error,
			ExitCode: r.ExitCode,
			Logs:     r.Logs,
		})
	}
	return nil, fmt.Errorf("unknown result type %T", res)
}

// Interpreter runs one request at a time, implementations are not required to be reentrant.
type Interpreter interface {
	Run(req *Request) (Result, error)
}
