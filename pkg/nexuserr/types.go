// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nexuserr implements the three-class error taxonomy shared by the
// adapter contract and the router: operational, bug, and unknown.
package nexuserr

import "fmt"

// Kind classifies an error for recording and propagation purposes.
type Kind string

const (
	KindOperational Kind = "operational"
	KindBug         Kind = "bug"
	KindUnknown     Kind = "unknown"
)

// OperationalError is an expected external failure: timeout, non-zero exit,
// missing capability, unknown adapter, and so on. Operational errors never
// abort a run; they are recorded and execution continues.
type OperationalError struct {
	Code    string
	Message string
	Details map[string]any
	Cause   error
}

func (e *OperationalError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *OperationalError) Unwrap() error { return e.Cause }

// BugError is an invariant violation attributable to the adapter or the
// router itself. Bug errors are recorded then propagated to the caller.
type BugError struct {
	Code    string
	Message string
	Details map[string]any
	Cause   error
}

func (e *BugError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *BugError) Unwrap() error { return e.Cause }

// UnknownError wraps any adapter failure that isn't one of the two explicit
// classes above. It is treated exactly like a bug error by the router.
type UnknownError struct {
	Message string
	Cause   error
}

func (e *UnknownError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unknown error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("unknown error: %s", e.Message)
}

func (e *UnknownError) Unwrap() error { return e.Cause }

// Operational constructs an *OperationalError.
func Operational(code, message string, details map[string]any) *OperationalError {
	return &OperationalError{Code: code, Message: message, Details: details}
}

// Bug constructs a *BugError.
func Bug(code, message string, details map[string]any) *BugError {
	return &BugError{Code: code, Message: message, Details: details}
}

// Unknown constructs an *UnknownError wrapping cause.
func Unknown(message string, cause error) *UnknownError {
	return &UnknownError{Message: message, Cause: cause}
}
