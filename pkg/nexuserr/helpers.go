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

package nexuserr

import "errors"

// Classify reports which of the three taxonomy classes err belongs to. A nil
// error classifies as the empty Kind; any other error that isn't an
// operational or bug error classifies as unknown, mirroring the source's
// "anything else is a bug" rule at the adapter boundary.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var op *OperationalError
	if errors.As(err, &op) {
		return KindOperational
	}
	var bug *BugError
	if errors.As(err, &bug) {
		return KindBug
	}
	return KindUnknown
}

// IsOperational reports whether err is (or wraps) an *OperationalError.
func IsOperational(err error) bool {
	var op *OperationalError
	return errors.As(err, &op)
}

// AsOperational extracts the *OperationalError from err, if any.
func AsOperational(err error) (*OperationalError, bool) {
	var op *OperationalError
	if errors.As(err, &op) {
		return op, true
	}
	return nil, false
}

// AsBug extracts the *BugError from err, if any.
func AsBug(err error) (*BugError, bool) {
	var bug *BugError
	if errors.As(err, &bug) {
		return bug, true
	}
	return nil, false
}

// CodeOf returns the stable error_code carried by err, or "UNKNOWN_ERROR"
// when err is not one of the taxonomy's coded classes.
func CodeOf(err error) string {
	if op, ok := AsOperational(err); ok {
		return op.Code
	}
	if bug, ok := AsBug(err); ok {
		return bug.Code
	}
	return "UNKNOWN_ERROR"
}

// DetailsOf returns the details map carried by err, or an empty map.
func DetailsOf(err error) map[string]any {
	if op, ok := AsOperational(err); ok {
		if op.Details != nil {
			return op.Details
		}
	}
	if bug, ok := AsBug(err); ok {
		if bug.Details != nil {
			return bug.Details
		}
	}
	return map[string]any{}
}
