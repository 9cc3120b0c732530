package menu

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/pkg/errors"

	"jardownloader/internal/logger"
	"jardownloader/internal/ui"
)

// Menu coordinates the interactive workflow.
type Menu struct {
	console     *ui.Console
	logger      logger.Logger
	printer     *ui.Printer
	actions     Actions
	version     string
	downloadDir string
}

// NewMenu creates a new menu manager instance. downloadDir is offered as
// the default answer whenever a download directory is asked for.
func NewMenu(console *ui.Console, printer *ui.Printer, actions Actions, version, downloadDir string) *Menu {
	var log logger.Logger
	if console != nil {
		log = console.Logger()
	}
	if log == nil {
		log = logger.NewStandardLogger()
	}
	if printer == nil {
		printer = ui.NewPrinter(nil)
	}
	if downloadDir == "" {
		downloadDir = "."
	}

	return &Menu{
		console:     console,
		logger:      log,
		printer:     printer,
		actions:     actions,
		version:     version,
		downloadDir: downloadDir,
	}
}

// ShowMainMenu displays the interactive menu until the user quits or ctx ends.
func (m *Menu) ShowMainMenu(ctx context.Context) error {
	if m.actions == nil {
		return errors.New("menu actions are not configured")
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		m.clearScreen()
		m.printer.PrintBanner(m.version)
		options := m.buildMenuOptions()

		selected, err := m.promptUserSelection(options)
		if err != nil {
			if isInterrupt(err) {
				m.logger.Info("User cancelled operation")
				return nil
			}
			return errors.Wrap(err, "failed to process user input")
		}

		err = options[selected].Handler(ctx)
		switch {
		case err == nil:
			m.waitForUserInput("\nPress Enter to continue...")
		case stdErrors.Is(err, errQuit):
			return nil
		case isInterrupt(err):
			// a prompt inside the action was aborted, back to the menu
		default:
			m.logger.Error("Operation failed: %v", err)
			m.waitForUserInput("\nPress Enter to continue...")
		}
	}
}

func (m *Menu) buildMenuOptions() []MenuOption {
	return []MenuOption{
		{
			Label:       "1. Download from dependency file",
			Description: "Read one dependencies.txt and download every URL in it",
			Handler:     m.handleDirect,
			Color:       "green",
			Enabled:     true,
		},
		{
			Label:       "2. Scan directory for jars",
			Description: "Download the dependencies listed inside every jar below a directory",
			Handler:     m.handleScan,
			Color:       "green",
			Enabled:     true,
		},
		{
			Label:       "3. Watch directory",
			Description: "Handle jars as they are dropped into a directory",
			Handler:     m.handleWatch,
			Color:       "cyan",
			Enabled:     true,
		},
		{
			Label:       "4. Download history",
			Description: "Show the most recent downloads",
			Handler:     m.handleHistory,
			Color:       "yellow",
			Enabled:     true,
		},
		{
			Label:       "0. Quit",
			Description: "Leave the menu",
			Handler:     func(context.Context) error { return errQuit },
			Color:       "red",
			Enabled:     true,
		},
	}
}

func (m *Menu) clearScreen() {
	if m.console == nil || !ui.IsTerminal(m.console.Output()) {
		return
	}
	fmt.Fprint(m.console.Output(), "\033[H\033[2J")
}

func isInterrupt(err error) bool {
	return stdErrors.Is(err, promptui.ErrInterrupt) || stdErrors.Is(err, promptui.ErrEOF)
}
