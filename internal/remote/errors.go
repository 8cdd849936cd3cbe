/*
Copyright 2024 Docsync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/civicdocs/docsync/internal/request"
)

// ErrorKind classifies a failed backend call.
type ErrorKind string

const (
	// KindValidation means the backend refused the payload itself; retrying the
	// same submission will not succeed.
	KindValidation ErrorKind = "VALIDATION"
	KindTransient  ErrorKind = "TRANSIENT"
	KindAuth       ErrorKind = "AUTH"
)

// Error is returned by every Client call that reached or tried to reach the backend.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Op         string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (%d): %s", e.Kind, e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Permanent reports whether the failure will repeat on retry.
func (e *Error) Permanent() bool {
	return e.Kind == KindValidation
}

// KindForStatus maps an HTTP status to an error kind.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return KindTransient
	case code >= 400:
		return KindValidation
	default:
		return KindTransient
	}
}

// classify wraps an error from request.Call.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var statusErr *request.StatusError
	if errors.As(err, &statusErr) {
		return &Error{
			Kind:       KindForStatus(statusErr.StatusCode),
			StatusCode: statusErr.StatusCode,
			Op:         op,
			Message:    statusErr.Body,
			Err:        err,
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Kind: KindTransient, Op: op, Message: err.Error(), Err: err}
}
