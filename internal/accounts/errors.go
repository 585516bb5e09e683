// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package accounts

import "net/http"

// Code is a machine-readable registry error code.
type Code string

const (
	CodeMissingHandle    Code = "MISSING_HANDLE"
	CodeMissingPassword  Code = "MISSING_PASSWORD"
	CodeInvalidHandle    Code = "INVALID_HANDLE"
	CodeDuplicateHandle  Code = "DUPLICATE_HANDLE"
	CodeEncryptionFailed Code = "ENCRYPTION_FAILED"
	CodeNotFound         Code = "ACCOUNT_NOT_FOUND"
)

// Error is a registry failure carrying a code and a human message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so callers can use the
// sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// HTTPStatus maps the code to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateHandle:
		return http.StatusConflict
	case CodeEncryptionFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Sentinels for errors.Is.
var (
	ErrMissingHandle    = &Error{Code: CodeMissingHandle, Message: "handle is required"}
	ErrMissingPassword  = &Error{Code: CodeMissingPassword, Message: "app password is required"}
	ErrInvalidHandle    = &Error{Code: CodeInvalidHandle, Message: "handle is not valid"}
	ErrDuplicateHandle  = &Error{Code: CodeDuplicateHandle, Message: "an account with this handle already exists"}
	ErrEncryptionFailed = &Error{Code: CodeEncryptionFailed, Message: "could not encrypt app password"}
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "account not found"}
)

func newError(sentinel *Error, err error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Err: err}
}
