package core

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure kind. Codes are stable and safe to expose to clients.
type ErrorCode string

const (
	// MalformedManifest indicates a registry file that does not match the manifest schema.
	MalformedManifest ErrorCode = "MALFORMED_MANIFEST"
	// MalformedPayload indicates an index payload that does not decode into an Entry.
	MalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
	// RevisionNotFound indicates a commit hash that is malformed or absent from the repository.
	RevisionNotFound ErrorCode = "REVISION_NOT_FOUND"
	// PathNotFoundInTree indicates a pushed path that does not exist in the expected tree.
	PathNotFoundInTree ErrorCode = "PATH_NOT_FOUND_IN_TREE"
	// RepositoryUnavailable indicates the repository could not be cloned or fetched.
	RepositoryUnavailable ErrorCode = "REPOSITORY_UNAVAILABLE"
	// EmbeddingUnavailable indicates the embedding provider failed for one text.
	EmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	// IndexOperationFailed indicates an upsert, delete or search against the vector store failed.
	IndexOperationFailed ErrorCode = "INDEX_OPERATION_FAILED"
	// InvalidQuery indicates an unusable search request.
	InvalidQuery ErrorCode = "INVALID_QUERY"
)

// Error carries a stable code, a message and the underlying cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Path    string    `json:"path,omitempty"`
	cause   error
}

// NewError creates an Error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithPath attaches the registry file the error belongs to.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, msg, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
