package menu

import (
	"context"
	"errors"
)

// MenuOption represents a selectable option shown to the user.
type MenuOption struct {
	Label       string
	Description string
	Handler     func(ctx context.Context) error
	Color       string
	Enabled     bool
}

// Actions are the operations the menu can start. The CLI implements them so
// that menu runs behave exactly like their command line counterparts.
type Actions interface {
	Direct(ctx context.Context, file, downloadDir string) error
	Scan(ctx context.Context, searchDir, downloadDir string) error
	Watch(ctx context.Context, searchDir, downloadDir string) error
	History(ctx context.Context, limit int) error
}

// errQuit ends the menu loop.
var errQuit = errors.New("quit")
