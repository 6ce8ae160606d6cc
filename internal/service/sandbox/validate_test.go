package sandbox

import (
	"bytes"
	"errors"
	"testing"
)

func TestValidateAcceptsWellFormedHeader(t *testing.T) {
	module, err := Validate(emptyModule, 10*1024*1024)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if module.Size() != len(emptyModule) {
		t.Fatalf("size = %d, want %d", module.Size(), len(emptyModule))
	}
}

func TestValidateRejectsOversizedModule(t *testing.T) {
	raw := bytes.Repeat([]byte{0x00}, 64)
	copy(raw, wasmMagic)

	_, err := Validate(raw, 63)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	// At the ceiling is still acceptable.
	if _, err := Validate(raw, 64); err != nil {
		t.Fatalf("module at exact size limit rejected: %v", err)
	}
}

func TestValidateRejectsBadMagic(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0x00, 0x61},
		[]byte("#!/bin/sh\n"),
		{0x7f, 'E', 'L', 'F', 0x01, 0x01},
		{0x00, 0x61, 0x73, 0x00, 0x01, 0x00, 0x00, 0x00},
	}
	for i, raw := range cases {
		if _, err := Validate(raw, 1024); !errors.Is(err, ErrBadMagic) {
			t.Errorf("case %d: err = %v, want ErrBadMagic", i, err)
		}
	}
}

func TestValidateSizeCheckedBeforeMagic(t *testing.T) {
	// An oversized module with a bad header reports the size problem, so the
	// client fixes the actionable issue first.
	raw := bytes.Repeat([]byte{0xff}, 100)
	_, err := Validate(raw, 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}
