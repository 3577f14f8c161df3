package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

var ErrEmptyInstructions = errors.New("instructions are empty")

// InstructionState is where the agent's system instructions are kept. The text is authored
// outside this codebase.
type InstructionState interface {
	Load(ctx context.Context) ([]byte, error)
}

// LoadInstructions reads the instructions from state and trims surrounding whitespace.
func LoadInstructions(ctx context.Context, state InstructionState) (string, error) {
	b, err := state.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load instructions: %w", err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return "", ErrEmptyInstructions
	}
	return string(b), nil
}

// TestInstructionState is an in-memory InstructionState for tests and dry runs.
type TestInstructionState struct {
	data  []byte
	err   error
	loads int
}

func NewTestInstructionState(text string) *TestInstructionState {
	return &TestInstructionState{data: []byte(text)}
}

func NewTestInstructionStateWithError() *TestInstructionState {
	return &TestInstructionState{err: errors.New("not found")}
}

func (t *TestInstructionState) Load(ctx context.Context) ([]byte, error) {
	t.loads++
	if t.err != nil {
		return nil, t.err
	}
	return t.data, nil
}

// Loads reports how many times Load was called.
func (t *TestInstructionState) Loads() int { return t.loads }
