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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/civicdocs/docsync/internal/assets"
	"github.com/civicdocs/docsync/internal/cache"
	"github.com/civicdocs/docsync/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseURL = "https://project.example.co"

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newTestClient(t *testing.T, cfg Config, opts ...Option) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	cfg.BaseURL = baseURL
	if cfg.APIKey == "" {
		cfg.APIKey = "anon-key"
	}
	opts = append([]Option{WithHTTPClient(&http.Client{Transport: transport})}, opts...)
	c, err := NewClient(cfg, opts...)
	require.NoError(t, err)
	c.now = func() time.Time { return testNow }
	return c, transport
}

func writeCapture(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "capture.jpg")
	require.NoError(t, os.WriteFile(p, []byte("jpeg-bytes"), 0o600))
	return "file://" + p
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "not a url", APIKey: "k"})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: baseURL})
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: baseURL + "/", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBucket, c.cfg.Bucket)
	assert.Equal(t, DefaultTable, c.cfg.Table)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
}

func TestSessionFromToken(t *testing.T) {
	session, err := SessionFromToken(signToken(t, "user-1", testNow.Add(time.Hour)), testNow)
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.UserID)
	assert.False(t, session.Expired(testNow))

	_, err = SessionFromToken(signToken(t, "user-1", testNow.Add(-time.Minute)), testNow)
	var remoteErr *Error
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, KindAuth, remoteErr.Kind)
	assert.False(t, remoteErr.Permanent())

	_, err = SessionFromToken("not-a-jwt", testNow)
	assert.Error(t, err)

	_, err = SessionFromToken("", testNow)
	assert.Error(t, err)

	session, err = SessionFromToken(signToken(t, "", time.Time{}), testNow)
	require.NoError(t, err)
	assert.Empty(t, session.UserID)
	assert.False(t, session.Expired(testNow.Add(1000*time.Hour)))
}

func TestKindForStatus(t *testing.T) {
	tests := map[int]ErrorKind{
		400: KindValidation,
		401: KindAuth,
		403: KindAuth,
		404: KindValidation,
		408: KindTransient,
		409: KindValidation,
		422: KindValidation,
		429: KindTransient,
		500: KindTransient,
		503: KindTransient,
	}
	for code, kind := range tests {
		assert.Equal(t, kind, KindForStatus(code), "status %d", code)
	}
}

func TestClient_CreateSubmission(t *testing.T) {
	token := signToken(t, "user-1", testNow.Add(time.Hour))
	c, transport := newTestClient(t, Config{AccessToken: token})

	var rows []map[string]interface{}
	transport.RegisterResponder(http.MethodPost, baseURL+"/rest/v1/submissions?on_conflict=client_ref",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "anon-key", req.Header.Get("apikey"))
			assert.Equal(t, "Bearer "+token, req.Header.Get("Authorization"))
			assert.Equal(t, "return=minimal,resolution=ignore-duplicates", req.Header.Get("Prefer"))
			body, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(body, &rows))
			return httpmock.NewStringResponse(http.StatusCreated, ""), nil
		})

	name := gofakeit.Name()
	sub := model.RemoteSubmission{
		ClientRef:    "sub_a",
		DocumentType: model.BirthCertificate,
		FormFields: model.NewFormFields(
			model.FieldFullName, name,
			model.FieldDateOfBirth, "1990-01-01",
			model.FieldPlaceOfBirth, "Lagos",
			model.FieldParentNames, "",
		),
		AssetReference: "https://cdn.example.com/a.jpg",
		CapturedAt:     testNow.UnixMilli(),
	}
	require.NoError(t, c.CreateSubmission(context.Background(), sub))

	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "sub_a", row["client_ref"])
	assert.Equal(t, "Birth Certificate", row["doc_type"])
	assert.Equal(t, name, row["full_name"])
	assert.Equal(t, "1990-01-01", row["date_of_birth"])
	assert.Equal(t, "Lagos", row["place_of_birth"])
	assert.Contains(t, row, "parent_names")
	assert.Nil(t, row["parent_names"])
	assert.Equal(t, "https://cdn.example.com/a.jpg", row["image_url"])
	assert.Equal(t, "pending", row["status"])
	assert.Equal(t, "user-1", row["user_id"])
	assert.Equal(t, "2024-06-01T12:00:00Z", row["captured_at"])
}

func TestClient_CreateSubmission_Classification(t *testing.T) {
	tests := []struct {
		status    int
		kind      ErrorKind
		permanent bool
	}{
		{status: http.StatusBadRequest, kind: KindValidation, permanent: true},
		{status: http.StatusUnauthorized, kind: KindAuth},
		{status: http.StatusServiceUnavailable, kind: KindTransient},
		{status: http.StatusTooManyRequests, kind: KindTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, transport := newTestClient(t, Config{UserID: "user-1"})
			transport.RegisterResponder(http.MethodPost, `=~^`+baseURL+`/rest/v1/submissions`,
				httpmock.NewStringResponder(tt.status, `{"message":"nope"}`))

			err := c.CreateSubmission(context.Background(), model.RemoteSubmission{ClientRef: "sub_a"})
			var remoteErr *Error
			require.True(t, errors.As(err, &remoteErr))
			assert.Equal(t, tt.kind, remoteErr.Kind)
			assert.Equal(t, tt.status, remoteErr.StatusCode)
			assert.Equal(t, tt.permanent, remoteErr.Permanent())
		})
	}
}

func TestClient_CreateSubmission_NetworkError(t *testing.T) {
	c, transport := newTestClient(t, Config{UserID: "user-1"})
	transport.RegisterResponder(http.MethodPost, `=~^`+baseURL+`/rest/v1/submissions`,
		httpmock.NewErrorResponder(errors.New("no route to host")))

	err := c.CreateSubmission(context.Background(), model.RemoteSubmission{ClientRef: "sub_a"})
	var remoteErr *Error
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, KindTransient, remoteErr.Kind)
	assert.False(t, remoteErr.Permanent())
}

func TestClient_UploadAsset(t *testing.T) {
	c, transport := newTestClient(t, Config{AccessToken: signToken(t, "user-1", testNow.Add(time.Hour))})

	var uploaded string
	transport.RegisterResponder(http.MethodPost, baseURL+"/storage/v1/object/registrations/user-1/sub_a.jpg",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "image/jpeg", req.Header.Get("Content-Type"))
			assert.Equal(t, "true", req.Header.Get("x-upsert"))
			body, _ := io.ReadAll(req.Body)
			uploaded = string(body)
			return httpmock.NewStringResponse(http.StatusOK, `{"Key":"registrations/user-1/sub_a.jpg"}`), nil
		})

	url, err := c.UploadAsset(context.Background(), "sub_a", writeCapture(t))
	require.NoError(t, err)
	assert.Equal(t, baseURL+"/storage/v1/object/public/registrations/user-1/sub_a.jpg", url)
	assert.Equal(t, "jpeg-bytes", uploaded)
}

func TestClient_UploadAsset_MissingFile(t *testing.T) {
	c, transport := newTestClient(t, Config{UserID: "user-1"})

	_, err := c.UploadAsset(context.Background(), "sub_a", "file:///gone/capture.jpg")
	var missing *assets.MissingAssetError
	require.True(t, errors.As(err, &missing))
	assert.True(t, missing.Permanent())
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestClient_UserLookupIsCached(t *testing.T) {
	sc := cache.NewLocalCache()
	token := signToken(t, "", testNow.Add(time.Hour))

	first, transport := newTestClient(t, Config{AccessToken: token}, WithSessionCache(sc))
	transport.RegisterResponder(http.MethodGet, baseURL+"/auth/v1/user",
		httpmock.NewStringResponder(http.StatusOK, `{"id":"user-9","email":"a@b.c"}`))

	id, err := first.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-9", id)

	id, err = first.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-9", id)
	assert.Equal(t, 1, transport.GetTotalCallCount())

	second, secondTransport := newTestClient(t, Config{AccessToken: token}, WithSessionCache(sc))
	id, err = second.UserID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-9", id)
	assert.Zero(t, secondTransport.GetTotalCallCount())
}

func TestClient_UserLookupRejected(t *testing.T) {
	c, transport := newTestClient(t, Config{AccessToken: signToken(t, "", time.Time{})})
	transport.RegisterResponder(http.MethodGet, baseURL+"/auth/v1/user",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"msg":"invalid JWT"}`))

	_, err := c.UserID(context.Background())
	var remoteErr *Error
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, KindAuth, remoteErr.Kind)
}
