//go:build vmexec && cgo

package emulate

// #cgo LDFLAGS: -L ./lib -Wl,-rpath,./lib -lvmexec
// #include <stdlib.h>
// extern const char *vm_exec(int len, char *config);
import "C"

import (
	"encoding/json"
	"fmt"
	"unsafe"
)

// Native runs requests through vm_exec of the linked library,
// every call creates its own vm instance inside, so units can use it in parallel.
type Native struct{}

func NewNative() (Interpreter, error) {
	return &Native{}, nil
}

func (n *Native) Run(req *Request) (Result, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	cReq := C.CString(string(data))
	defer C.free(unsafe.Pointer(cReq))

	res := C.vm_exec(C.int(len(data)), cReq)
	if res == nil {
		return nil, fmt.Errorf("vm returned nothing")
	}
	defer C.free(unsafe.Pointer(res))

	return ParseResult([]byte(C.GoString(res)))
}
