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

/*
Package remote talks to the registration backend: a PostgREST-style table for
submission records and an object storage bucket for the captured images.
*/
package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/civicdocs/docsync/internal/assets"
	"github.com/civicdocs/docsync/internal/cache"
	"github.com/civicdocs/docsync/internal/request"
	"github.com/civicdocs/docsync/model"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBucket  = "registrations"
	DefaultTable   = "submissions"
	DefaultTimeout = 30 * time.Second

	statusPending   = "pending"
	userLookupTTL   = time.Hour
	sessionCacheKey = "docsync:session:"
)

type Config struct {
	BaseURL     string
	APIKey      string
	AccessToken string
	Bucket      string
	Table       string
	// UserID skips token inspection when the owner is known up front.
	UserID  string
	Timeout time.Duration
}

// Client uploads assets and creates submission records. It implements the
// queue's SubmissionService and AssetUploader.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	cache   cache.Cache
	now     func() time.Time
	mu      sync.Mutex
	session *Session
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

// WithSessionCache memoizes user lookups for tokens that carry no subject.
func WithSessionCache(sc cache.Cache) Option {
	return func(c *Client) { c.cache = sc }
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("backend api key is required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:  cfg,
		base: base,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("apikey", c.cfg.APIKey)
	token := c.cfg.AccessToken
	if token == "" {
		token = c.cfg.APIKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// UserID resolves the owner of the configured session.
func (c *Client) UserID(ctx context.Context) (string, error) {
	if c.cfg.UserID != "" {
		return c.cfg.UserID, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && !c.session.Expired(c.now()) {
		return c.session.UserID, nil
	}

	session, err := SessionFromToken(c.cfg.AccessToken, c.now())
	if err != nil {
		return "", err
	}
	if session.UserID == "" {
		if session.UserID, err = c.lookupUser(ctx, session); err != nil {
			return "", err
		}
	}
	c.session = &session
	return session.UserID, nil
}

type authUser struct {
	ID string `json:"id"`
}

func (c *Client) lookupUser(ctx context.Context, session Session) (string, error) {
	sum := sha256.Sum256([]byte(c.cfg.AccessToken))
	key := sessionCacheKey + hex.EncodeToString(sum[:16])

	if c.cache != nil {
		var cached string
		found, err := c.cache.Get(ctx, key, &cached)
		if err != nil {
			logrus.WithError(err).Warn("session cache read failed")
		} else if found && cached != "" {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/auth/v1/user", nil), nil)
	if err != nil {
		return "", err
	}
	c.authorize(req)

	var user authUser
	if _, err := request.Call(c.http, req, &user); err != nil {
		return "", classify("get user", err)
	}
	if user.ID == "" {
		return "", &Error{Kind: KindAuth, Op: "get user", Message: "user not authenticated"}
	}

	if c.cache != nil {
		ttl := userLookupTTL
		if !session.ExpiresAt.IsZero() {
			if left := session.ExpiresAt.Sub(c.now()); left < ttl {
				ttl = left
			}
		}
		if err := c.cache.Set(ctx, key, user.ID, ttl); err != nil {
			logrus.WithError(err).Warn("session cache write failed")
		}
	}
	return user.ID, nil
}

// UploadAsset stores the image behind localRef at {user}/{submissionID}.{ext}
// in the bucket and returns its public URL. Re-uploading the same submission
// overwrites the same object.
func (c *Client) UploadAsset(ctx context.Context, submissionID, localRef string) (string, error) {
	userID, err := c.UserID(ctx)
	if err != nil {
		return "", err
	}

	f, info, err := assets.Open(localRef)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := assets.ObjectKey(userID, submissionID, info.Ext)
	objectPath := "/storage/v1/object/" + url.PathEscape(c.cfg.Bucket) + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(objectPath, nil), f)
	if err != nil {
		return "", err
	}
	req.ContentLength = info.Size
	c.authorize(req)
	req.Header.Set("Content-Type", info.ContentType)
	req.Header.Set("x-upsert", "true")

	if _, err := request.Call(c.http, req, nil); err != nil {
		return "", classify("upload asset", err)
	}

	publicURL := c.endpoint("/storage/v1/object/public/"+url.PathEscape(c.cfg.Bucket)+"/"+key, nil)
	logrus.WithFields(logrus.Fields{
		"submission_id": submissionID,
		"object_key":    key,
	}).Debug("asset uploaded")
	return publicURL, nil
}

// CreateSubmission inserts the backend record. The insert is keyed on
// client_ref and duplicates are ignored, so replaying a submission whose
// earlier attempt reached the server is harmless.
func (c *Client) CreateSubmission(ctx context.Context, sub model.RemoteSubmission) error {
	userID, err := c.UserID(ctx)
	if err != nil {
		return err
	}

	row := submissionRow(sub, userID)
	body, err := request.ToJsonReq([]map[string]interface{}{row})
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	query := url.Values{"on_conflict": {"client_ref"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/rest/v1/"+url.PathEscape(c.cfg.Table), query), body)
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Prefer", "return=minimal,resolution=ignore-duplicates")

	if _, err := request.Call(c.http, req, nil); err != nil {
		return classify("create submission", err)
	}

	logrus.WithFields(logrus.Fields{
		"submission_id": sub.ClientRef,
		"doc_type":      sub.DocumentType,
	}).Debug("submission record created")
	return nil
}

func submissionRow(sub model.RemoteSubmission, userID string) map[string]interface{} {
	row := make(map[string]interface{}, len(sub.FormFields)+6)
	for name, value := range sub.FormFields.Flatten() {
		if strings.TrimSpace(value) == "" {
			row[name] = nil
			continue
		}
		row[name] = value
	}
	row["client_ref"] = sub.ClientRef
	row["doc_type"] = sub.DocumentType.Label()
	row["image_url"] = sub.AssetReference
	row["status"] = statusPending
	row["user_id"] = userID
	if sub.CapturedAt > 0 {
		row["captured_at"] = time.UnixMilli(sub.CapturedAt).UTC().Format(time.RFC3339)
	}
	return row
}
