package core

import (
	"context"

	"jardownloader/internal/logger"
)

// Logger is the part of logger.Logger the engine uses. Per-file lines go
// through the Context methods so they carry the run id and list source.
type Logger interface {
	InfoContext(ctx context.Context, msg string, fields ...logger.Field)
	WarnContext(ctx context.Context, msg string, fields ...logger.Field)
}
