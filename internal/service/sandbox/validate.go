package sandbox

import (
	"bytes"
	"errors"
	"fmt"
)

// Validation failures. Both are terminal for the given input.
var (
	ErrTooLarge = errors.New("module size exceeds limit")
	ErrBadMagic = errors.New("invalid WebAssembly magic header")
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6D}

// Module wraps bytes that passed validation. It can only be produced by
// Validate, so the executor can never be handed unvalidated input.
type Module struct {
	raw []byte
}

// Size returns the module length in bytes.
func (m Module) Size() int { return len(m.raw) }

// Validate is the fast-reject gate in front of the sandbox: it checks the
// size ceiling and the four-byte magic header and nothing else. Deeper
// structural problems are left to the runtime's own loader, which reports
// them as traps.
func Validate(raw []byte, maxBytes int) (Module, error) {
	if maxBytes > 0 && len(raw) > maxBytes {
		return Module{}, fmt.Errorf("%w (%d bytes > %d bytes)", ErrTooLarge, len(raw), maxBytes)
	}
	if len(raw) < len(wasmMagic) || !bytes.Equal(raw[:len(wasmMagic)], wasmMagic) {
		return Module{}, ErrBadMagic
	}
	return Module{raw: raw}, nil
}
