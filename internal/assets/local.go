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

package assets

import (
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const defaultContentType = "image/jpeg"

// LocalAsset describes a captured file on the device.
type LocalAsset struct {
	Path        string
	Ext         string
	ContentType string
	Size        int64
}

// MissingAssetError means the captured file no longer exists, so the
// submission can never be delivered as captured.
type MissingAssetError struct {
	Ref string
	Err error
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("asset %s is missing", e.Ref)
}

func (e *MissingAssetError) Unwrap() error {
	return e.Err
}

func (e *MissingAssetError) Permanent() bool {
	return true
}

// Resolve converts a local asset reference into a filesystem path. Both plain
// paths and file:// URIs are accepted.
func Resolve(ref string) (string, error) {
	if ref == "" {
		return "", errors.New("empty asset reference")
	}
	if !strings.Contains(ref, "://") {
		return filepath.Clean(ref), nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse asset reference: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported asset scheme %q", u.Scheme)
	}
	p := u.Path
	if u.Host != "" && u.Host != "localhost" {
		// file://relative/name.jpg
		p = path.Join(u.Host, u.Path)
	}
	return filepath.FromSlash(p), nil
}

// Open opens the asset behind ref. The caller closes the file.
func Open(ref string) (*os.File, LocalAsset, error) {
	p, err := Resolve(ref)
	if err != nil {
		return nil, LocalAsset{}, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, LocalAsset{}, &MissingAssetError{Ref: ref, Err: err}
	}
	if err != nil {
		return nil, LocalAsset{}, fmt.Errorf("open asset: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, LocalAsset{}, fmt.Errorf("stat asset: %w", err)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(p), "."))
	if ext == "" {
		ext = "jpg"
	}
	return f, LocalAsset{
		Path:        p,
		Ext:         ext,
		ContentType: ContentType(ext),
		Size:        stat.Size(),
	}, nil
}

// ContentType guesses the MIME type from an extension, defaulting to JPEG.
func ContentType(ext string) string {
	if t := mime.TypeByExtension("." + strings.TrimPrefix(ext, ".")); t != "" {
		return t
	}
	return defaultContentType
}

// ObjectKey is the storage key for a submission's asset: {owner}/{submissionID}.{ext}.
func ObjectKey(owner, submissionID, ext string) string {
	if ext == "" {
		ext = "jpg"
	}
	return path.Join(url.PathEscape(owner), url.PathEscape(submissionID)+"."+ext)
}
