package errors

import "time"

// New creates a generic AppError with the supplied metadata.
func New(category ErrorCategory, code, message string, err error) *AppError {
	return &AppError{
		Code:      code,
		Category:  category,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// NewRecoverable creates an AppError flagged as safe to retry.
func NewRecoverable(category ErrorCategory, code, message string, err error) *AppError {
	return New(category, code, message, err).WithRecoverable(true)
}

// SystemError creates a SYSTEM category error instance.
func SystemError(code, message string, err error) *AppError {
	return New(ErrCategorySystem, code, message, err)
}

// NetworkError creates a NETWORK category error instance.
// Network errors are recoverable unless the caller says otherwise.
func NetworkError(code, message string, err error) *AppError {
	return NewRecoverable(ErrCategoryNetwork, code, message, err)
}

// ConfigError creates a CONFIG category error instance.
func ConfigError(code, message string, err error) *AppError {
	return New(ErrCategoryConfig, code, message, err)
}

// ValidationError creates a VALIDATION category error instance.
func ValidationError(code, message string, err error) *AppError {
	return New(ErrCategoryValidation, code, message, err)
}

// DependencyError creates a DEPENDENCY category error instance.
func DependencyError(code, message string, err error) *AppError {
	return New(ErrCategoryDependency, code, message, err)
}

// ArchiveError creates an ARCHIVE category error instance.
func ArchiveError(code, message string, err error) *AppError {
	return New(ErrCategoryArchive, code, message, err)
}

// DatabaseError creates a DATABASE category error instance.
func DatabaseError(code, message string, err error) *AppError {
	return New(ErrCategoryDatabase, code, message, err)
}

// Annotate fills module and operation on err when it is an AppError that does
// not carry them yet, otherwise wraps err into a new AppError of the given category.
func Annotate(err error, category ErrorCategory, code, message, module, operation string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		if appErr.Module == "" {
			appErr.WithModule(module)
		}
		if appErr.Operation == "" {
			appErr.WithOperation(operation)
		}
		return appErr
	}
	return New(category, code, message, err).
		WithModule(module).
		WithOperation(operation)
}
