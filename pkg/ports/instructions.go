package ports

import (
	"context"
	"errors"

	"github.com/veloir/stagehand/pkg/domain"
)

// ErrInstructionSetNotFound is returned when an instruction set id has
// no definition.
var ErrInstructionSetNotFound = errors.New("instruction set not found")

// InstructionProvider supplies instruction sets to stage logic.
type InstructionProvider interface {
	Get(ctx context.Context, id string) (domain.InstructionSet, error)
}
