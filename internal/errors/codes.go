package errors

// Generic error code definitions used as sensible defaults across modules.
const (
	CodeSystemGeneric     = "SYS-000"
	CodeNetworkGeneric    = "NET-000"
	CodeConfigGeneric     = "CFG-000"
	CodeValidationGeneric = "VAL-000"
	CodeDependencyGeneric = "DEP-000"
	CodeArchiveGeneric    = "ARC-000"
	CodeDatabaseGeneric   = "DB-000"
)

// Specific codes. Keep them stable, they show up in logs and history rows.
const (
	CodeDiskSpace = "SYS-001"

	CodeHTTPStatus = "NET-001"

	CodeConfigValue = "CFG-001"

	CodeUsage         = "VAL-001"
	CodeSearchPath    = "SCN-001"
	CodeInvalidLine   = "VAL-002"
	CodeDepFileAbsent = "DEP-001"
	CodeChecksum      = "DEP-002"
	CodeFileSize      = "DEP-003"
	CodeNameConflict  = "DEP-004"

	CodeArchiveOpen  = "ARC-001"
	CodeEntryTooLong = "ARC-002"
)
