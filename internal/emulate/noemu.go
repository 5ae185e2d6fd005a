//go:build !vmexec || !cgo

package emulate

func NewNative() (Interpreter, error) {
	return nil, ErrNotCompiled
}
