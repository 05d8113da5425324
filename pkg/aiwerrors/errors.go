// Copyright 2025 Kadir Pekel
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

// Package aiwerrors defines the error-kind taxonomy shared across the
// runtime. Every kind is a distinguishable sentinel so callers can branch
// on Kind() or use errors.Is against the exported sentinels.
package aiwerrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from the propagation table.
type Kind string

const (
	KindConfig           Kind = "config"
	KindPathEscape       Kind = "path-escape"
	KindInvalidArguments Kind = "invalid-arguments"
	KindToolNotFound     Kind = "tool-not-found"
	KindToolExecution    Kind = "tool-execution"
	KindAuth             Kind = "auth"
	KindRateLimit        Kind = "rate-limit"
	KindConnection       Kind = "connection"
	KindService          Kind = "service"
	KindSchema           Kind = "schema"
	KindMalformedStream  Kind = "malformed-stream"
	KindTimeout          Kind = "timeout"
	KindIterationLimit   Kind = "iteration-limit"
	KindQueueOverflow    Kind = "queue-overflow"
	KindPersistence      Kind = "persistence"
)

// Error wraps an underlying cause with a taxonomy Kind.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's taxonomy category.
func (e *Error) Kind() Kind { return e.kind }

// New constructs a taxonomy error with no wrapped cause.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Wrap constructs a taxonomy error wrapping an underlying cause.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return New(kind, msg)
	}
	return &Error{kind: kind, msg: msg, err: err}
}

// KindOf extracts the Kind from err, walking the unwrap chain. Returns
// ("", false) if err does not carry a taxonomy Kind.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
