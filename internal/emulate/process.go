package emulate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
)

// Process runs every request with a standalone vm-exec binary,
// config is passed as a file and result is expected on the last line of output.
type Process struct {
	Path string
}

func NewProcess(path string) (Interpreter, error) {
	if _, err := exec.LookPath(path); err != nil {
		return nil, fmt.Errorf("vm-exec binary is not found: %w", err)
	}
	return &Process{Path: path}, nil
}

func (p *Process) Run(req *Request) (Result, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	f, err := os.CreateTemp("", "vm-exec-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create config file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write config file: %w", err)
	}
	if err = f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close config file: %w", err)
	}

	out, err := exec.Command(p.Path, "-c", f.Name()).Output()
	if err != nil {
		return nil, fmt.Errorf("vm-exec failed: %w", err)
	}

	return ParseResult(lastLine(out))
}

func lastLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	return lines[len(lines)-1]
}
