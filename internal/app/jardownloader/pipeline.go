package jardownloader

import (
	"context"

	apperrors "jardownloader/internal/errors"
	"jardownloader/internal/logger"
	"jardownloader/internal/ui"
)

// Step describes a single setup phase.
type Step struct {
	Name      string
	Operation string
	Category  apperrors.ErrorCategory
	Fn        func(ctx context.Context) error
}

// Pipeline executes setup steps sequentially and stops at the first failure.
type Pipeline struct {
	steps   []Step
	console *ui.Console
	logger  logger.Logger
}

// NewPipeline constructs a new pipeline.
func NewPipeline(console *ui.Console, log logger.Logger, steps []Step) *Pipeline {
	return &Pipeline{
		steps:   steps,
		console: console,
		logger:  log,
	}
}

// Execute runs through all configured steps.
func (p *Pipeline) Execute(ctx context.Context) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.logger != nil {
			p.logger.Debug("Executing step: %s", step.Name)
		}
		p.console.StartProgress(step.Name)
		if err := step.Fn(ctx); err != nil {
			p.console.StopProgress(step.Name + " failed")
			return apperrors.Annotate(err, step.Category, genericCode(step.Category),
				step.Name+" failed", "app", step.Operation)
		}
		p.console.StopProgress(step.Name)
	}

	return nil
}

func genericCode(category apperrors.ErrorCategory) string {
	switch category {
	case apperrors.ErrCategoryNetwork:
		return apperrors.CodeNetworkGeneric
	case apperrors.ErrCategoryConfig:
		return apperrors.CodeConfigGeneric
	case apperrors.ErrCategoryValidation:
		return apperrors.CodeValidationGeneric
	case apperrors.ErrCategoryDependency:
		return apperrors.CodeDependencyGeneric
	case apperrors.ErrCategoryArchive:
		return apperrors.CodeArchiveGeneric
	case apperrors.ErrCategoryDatabase:
		return apperrors.CodeDatabaseGeneric
	default:
		return apperrors.CodeSystemGeneric
	}
}
