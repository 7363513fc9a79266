package chain

import (
	"context"
	"fmt"

	"galaxy-roi/internal/opencv/memory"
	"galaxy-roi/internal/opencv/safe"
)

// ProcessingStep transforms one Mat into a new one. Steps never close their
// input.
type ProcessingStep interface {
	Apply(ctx context.Context, input *safe.Mat) (*safe.Mat, error)
	Name() string
}

// ProcessingChain runs steps in order, handing intermediate Mats back to the
// allocator as soon as the next step has consumed them.
type ProcessingChain struct {
	steps []ProcessingStep
	alloc memory.Allocator
}

func NewProcessingChain(alloc memory.Allocator, steps ...ProcessingStep) *ProcessingChain {
	if alloc == nil {
		alloc = memory.Direct()
	}
	return &ProcessingChain{
		steps: steps,
		alloc: alloc,
	}
}

// Execute returns the output of the last step. The caller owns the result
// and must release it through the same allocator. With no steps the input is
// cloned.
func (pc *ProcessingChain) Execute(ctx context.Context, input *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(input, "ProcessingChain"); err != nil {
		return nil, err
	}
	if len(pc.steps) == 0 {
		return input.Clone()
	}

	current := input
	release := func() {
		if current != input {
			pc.alloc.ReleaseMat(current)
		}
	}

	for _, step := range pc.steps {
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		default:
		}

		result, err := step.Apply(ctx, current)
		if err != nil {
			release()
			return nil, fmt.Errorf("step %s failed: %w", step.Name(), err)
		}

		release()
		current = result
	}

	return current, nil
}

func (pc *ProcessingChain) StepCount() int {
	return len(pc.steps)
}

func (pc *ProcessingChain) StepNames() []string {
	names := make([]string, len(pc.steps))
	for i, step := range pc.steps {
		names[i] = step.Name()
	}
	return names
}
