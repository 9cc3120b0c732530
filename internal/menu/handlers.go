package menu

import (
	"context"

	"github.com/pkg/errors"
)

func (m *Menu) handleDirect(ctx context.Context) error {
	file, err := m.promptPath("Dependency file", "dependencies.txt", validateFile)
	if err != nil {
		return err
	}
	dir, err := m.promptPath("Download directory", m.downloadDir, validateDownloadDir)
	if err != nil {
		return err
	}

	return errors.Wrap(m.actions.Direct(ctx, file, dir), "direct download failed")
}

func (m *Menu) handleScan(ctx context.Context) error {
	search, err := m.promptPath("Directory to search for jars", ".", validateDir)
	if err != nil {
		return err
	}
	dir, err := m.promptPath("Download directory", m.downloadDir, validateDownloadDir)
	if err != nil {
		return err
	}

	return errors.Wrap(m.actions.Scan(ctx, search, dir), "scan failed")
}

func (m *Menu) handleWatch(ctx context.Context) error {
	search, err := m.promptPath("Directory to watch", ".", validateDir)
	if err != nil {
		return err
	}
	dir, err := m.promptPath("Download directory", m.downloadDir, validateDownloadDir)
	if err != nil {
		return err
	}

	return errors.Wrap(m.actions.Watch(ctx, search, dir), "watch failed")
}

func (m *Menu) handleHistory(ctx context.Context) error {
	limit, err := m.promptLimit()
	if err != nil {
		return err
	}
	return errors.Wrap(m.actions.History(ctx, limit), "history lookup failed")
}
