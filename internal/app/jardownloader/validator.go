package jardownloader

import (
	"context"
	"os"

	"jardownloader/internal/downloader/core"
	apperrors "jardownloader/internal/errors"
	"jardownloader/internal/logger"
)

type validation struct {
	name      string
	operation string
	category  apperrors.ErrorCategory
	fn        func() error
}

// DownloadDirValidator checks that downloads can land in a directory before
// any jar is opened.
type DownloadDirValidator struct {
	dir          string
	minFreeSpace int64
	logger       logger.Logger
}

// NewDownloadDirValidator constructs a validator instance.
func NewDownloadDirValidator(dir string, minFreeSpace int64, log logger.Logger) *DownloadDirValidator {
	return &DownloadDirValidator{
		dir:          dir,
		minFreeSpace: minFreeSpace,
		logger:       log,
	}
}

// Validate creates the directory when missing and checks it is writable and
// has enough free space.
func (v *DownloadDirValidator) Validate(_ context.Context) error {
	return v.runValidations([]validation{
		{"Download directory", "validator.validateDirectory", apperrors.ErrCategorySystem, v.validateDirectory},
		{"Write access", "validator.validateWritable", apperrors.ErrCategorySystem, v.validateWritable},
		{"Disk Space", "validator.validateDiskSpace", apperrors.ErrCategorySystem, v.validateDiskSpace},
	})
}

func (v *DownloadDirValidator) runValidations(checks []validation) error {
	for _, check := range checks {
		if err := check.fn(); err != nil {
			if appErr, ok := apperrors.As(err); ok {
				return appErr
			}
			return v.wrapError(check.category, check.operation, check.name+" validation failed", err, nil)
		}
		v.logger.Debug("%s check passed for %s", check.name, v.dir)
	}
	return nil
}

func (v *DownloadDirValidator) validateDirectory() error {
	info, err := os.Stat(v.dir)
	if err == nil {
		if !info.IsDir() {
			return v.wrapError(apperrors.ErrCategoryValidation, "validator.validateDirectory",
				"download path is not a directory", nil, apperrors.Metadata{"path": v.dir})
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return v.wrapError(apperrors.ErrCategorySystem, "validator.validateDirectory",
			"failed to inspect download directory", err, apperrors.Metadata{"path": v.dir})
	}

	v.logger.Info("Creating download directory %s", v.dir)
	if err := os.MkdirAll(v.dir, 0o755); err != nil {
		return v.wrapError(apperrors.ErrCategorySystem, "validator.validateDirectory",
			"failed to create download directory", err, apperrors.Metadata{"path": v.dir})
	}
	return nil
}

func (v *DownloadDirValidator) validateWritable() error {
	tmp, err := os.CreateTemp(v.dir, ".jardownloader-tmp-*")
	if err != nil {
		return v.wrapError(apperrors.ErrCategorySystem, "validator.validateWritable",
			"download directory is not writable", err, apperrors.Metadata{"path": v.dir})
	}
	name := tmp.Name()
	_ = tmp.Close()
	return os.Remove(name)
}

func (v *DownloadDirValidator) validateDiskSpace() error {
	return core.CheckFreeSpace(v.dir, v.minFreeSpace)
}

func (v *DownloadDirValidator) wrapError(category apperrors.ErrorCategory, operation, message string, err error, metadata apperrors.Metadata) error {
	code := genericCode(category)
	return apperrors.New(category, code, message, err).
		WithModule("validator").
		WithOperation(operation).
		WithFields(metadata)
}
