package storage

import (
	"context"
	"os"
)

type FileInstructionState struct {
	FilePath string
}

func NewFileInstructionState(filePath string) *FileInstructionState {
	return &FileInstructionState{FilePath: filePath}
}

func (f *FileInstructionState) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(f.FilePath)
}
