package core

// error_messages.go maps technical errors to user-facing messages with a
// code that can be quoted to support.
//
// Build errors carry an ErrorKind and are mapped by kind. Everything else,
// mostly database and transport failures, is matched by message pattern.
//
// # Error Codes Reference
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Schema or grammar is misconfigured
//	         Action: Check the schema document for the reported field
//
// # Schema Errors (SCH001-SCH099)
//
//	SCH001 - Schema not found
//	         Action: List the available schemas and check the name
//	         Patterns: "schema not found"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Column not found: an expected column is missing from the header
//	VAL002 - Invalid cell: a value could not be converted to its type
//	VAL003 - Unmapped discriminant: a tag selects no known variant
//	VAL004 - Row arity: a row has fewer cells than the header
//	VAL005 - Duplicate column: the header names a column twice
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	          Patterns: "file too large", "request body too large"
//	FILE002 - Unterminated quote
//	FILE003 - Stray quote inside an unquoted cell
//	FILE004 - Text after a closing quote
//	FILE005 - Empty file
//	          Patterns: "empty input"
//	FILE006 - No file              Patterns: "no file provided"
//
// # Build Errors (UPL001-UPL099)
//
//	UPL002 - System busy: too many builds in progress
//	         Patterns: "too many concurrent builds"
//	UPL004 - Request cancelled
//	         Patterns: "context canceled"
//	UPL005 - Request timeout
//	         Patterns: "context deadline exceeded"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key               Patterns: "duplicate key"
//	DB003 - Foreign key                 Patterns: "violates foreign key"
//	DB004 - Connection refused          Patterns: "connection refused"
//	DB005 - Connection reset            Patterns: "connection reset"
//	DB007 - Deadlock                    Patterns: "deadlock"
//	DB008 - Loading disabled            Patterns: "database not configured"
//
// # Request Errors
//
//	CACHE001 - Caching disabled         Patterns: "cache not configured"
//	REQ001   - Invalid query options    Patterns: "invalid request"
//	RATE001  - Too many requests        Patterns: "rate limit"
//
// Unmatched errors map to ERR000. Support staff should check the
// application logs for the original error when users report ERR000.

import (
	"fmt"
	"strings"
)

// UserMessage is an error in terms a client can act on.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var kindMessages = map[ErrorKind]UserMessage{
	KindConfiguration: {
		Message: "The schema or grammar is misconfigured",
		Action:  "Check the schema document for the reported field",
		Code:    "CFG001",
	},
	KindColumnNotFound: {
		Message: "Expected column not found in the header",
		Action:  "Download the template and compare its header with your file",
		Code:    "VAL001",
	},
	KindInvalidCell: {
		Message: "A value could not be converted to its column type",
		Action:  "Check the reported cell for typos or stray characters",
		Code:    "VAL002",
	},
	KindUnmappedDiscriminant: {
		Message: "A tag column selects no known variant",
		Action:  "Use one of the variant names listed in the schema",
		Code:    "VAL003",
	},
	KindRowArity: {
		Message: "A row has fewer cells than the header",
		Action:  "Ensure every row has a value or empty cell for each column",
		Code:    "VAL004",
	},
	KindDuplicateColumn: {
		Message: "The header names a column more than once",
		Action:  "Rename or remove the duplicate column",
		Code:    "VAL005",
	},
	KindUnterminatedQuote: {
		Message: "A quoted cell is never closed",
		Action:  "Close the quote or enable multiline cells",
		Code:    "FILE002",
	},
	KindBareQuote: {
		Message: "A quote appears inside an unquoted cell",
		Action:  "Quote the whole cell and double any inner quotes",
		Code:    "FILE003",
	},
	KindUnexpectedText: {
		Message: "Text follows a closing quote",
		Action:  "Move the text inside the quotes or add a delimiter",
		Code:    "FILE004",
	},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "schema not found",
		msg: UserMessage{
			Message: "Schema not found",
			Action:  "List the available schemas and check the name",
			Code:    "SCH001",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Send the file as the request body or in a \"file\" form field",
			Code:    "FILE006",
		},
	},
	{
		pattern: "empty input",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a file with a header and data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "too many concurrent builds",
		msg: UserMessage{
			Message: "Too many files are being processed",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "UPL004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "UPL005",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Load into an empty table or remove the duplicates",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Ensure parent records are loaded first",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "database not configured",
		msg: UserMessage{
			Message: "Loading into a database is not enabled",
			Action:  "Set DATABASE_URL on the server",
			Code:    "DB008",
		},
	},
	{
		pattern: "cache not configured",
		msg: UserMessage{
			Message: "Result caching is not enabled",
			Action:  "Set REDIS_ADDR on the server",
			Code:    "CACHE001",
		},
	},
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request options are invalid",
			Action:  "Check the query parameters against the API documentation",
			Code:    "REQ001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Errors
// with a known ErrorKind are mapped by kind, others by the first pattern
// found in the message (case-insensitive).
//
// Example:
//
//	err := fmt.Errorf("row 3: %w", ErrInvalidCell)
//	msg := MapError(err)
//	// msg.Code == "VAL002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := kindMessages[KindOf(err)]; ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
