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
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the identity carried by the access token.
type Session struct {
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the session has passed its expiry at now. Sessions
// without an expiry never expire.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionFromToken reads the subject and expiry from a bearer token without
// verifying its signature; the backend verifies it on every call. An empty
// UserID means the token carries no subject and the user must be looked up.
func SessionFromToken(token string, now time.Time) (Session, error) {
	if token == "" {
		return Session{}, &Error{Kind: KindAuth, Op: "session", Message: "no access token configured"}
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Session{}, &Error{Kind: KindAuth, Op: "session", Message: "malformed access token", Err: err}
	}

	session := Session{UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	if session.Expired(now) {
		return session, &Error{Kind: KindAuth, Op: "session", Message: "access token expired", Err: errTokenExpired}
	}
	return session, nil
}

var errTokenExpired = errors.New("token expired")
