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

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// QueueSchemaVersion is written on every persisted queue record.
// Records without a version come from the first release of the app, which
// stored only timestamp, docType ("birth"/"id"), formData and imageUri.
const QueueSchemaVersion = 1

// ErrUnsupportedVersion is returned when a stored record was written by a newer client.
var ErrUnsupportedVersion = errors.New("unsupported queue record version")

type queueRecord struct {
	Version             int        `json:"version,omitempty"`
	ID                  string     `json:"id,omitempty"`
	CreatedAt           int64      `json:"timestamp"`
	DocumentType        string     `json:"docType"`
	FormFields          FormFields `json:"formData"`
	LocalAssetReference string     `json:"imageUri"`
}

// EncodeQueue serializes the pending queue as a JSON array in queue order.
func EncodeQueue(items []QueuedSubmission) ([]byte, error) {
	records := make([]queueRecord, len(items))
	for i, item := range items {
		records[i] = queueRecord{
			Version:             QueueSchemaVersion,
			ID:                  item.ID,
			CreatedAt:           item.CreatedAt,
			DocumentType:        string(item.DocumentType),
			FormFields:          item.FormFields,
			LocalAssetReference: item.LocalAssetReference,
		}
	}
	return json.Marshal(records)
}

// DecodeQueue parses a blob written by EncodeQueue or by a legacy client.
// An empty blob or JSON null decodes to an empty queue. Records repeating an
// earlier identifier are dropped so the first occurrence keeps its position.
//
// A record that cannot be read does not fail the rest of the queue: it is
// returned untouched in malformed so the caller can keep it somewhere. err is
// only set when data is not a JSON array at all.
func DecodeQueue(data []byte) (items []QueuedSubmission, malformed []json.RawMessage, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []QueuedSubmission{}, nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode queue: %w", err)
	}

	items = make([]QueuedSubmission, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	legacySeq := make(map[int64]int)
	for _, msg := range raw {
		item, err := decodeRecord(msg, legacySeq)
		if err != nil {
			malformed = append(malformed, msg)
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}
	return items, malformed, nil
}

func decodeRecord(msg json.RawMessage, legacySeq map[int64]int) (QueuedSubmission, error) {
	var rec queueRecord
	if err := json.Unmarshal(msg, &rec); err != nil {
		return QueuedSubmission{}, err
	}
	return rec.upgrade(legacySeq)
}

func (r queueRecord) upgrade(legacySeq map[int64]int) (QueuedSubmission, error) {
	switch {
	case r.Version > QueueSchemaVersion:
		return QueuedSubmission{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.Version)
	case r.Version < 0:
		return QueuedSubmission{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.Version)
	}

	rawType := r.DocumentType
	if r.Version == 0 && rawType == "" {
		// the first release only offered birth registration
		rawType = "birth"
	}
	docType, err := ParseDocumentType(rawType)
	if err != nil {
		// Enqueue accepts any type, so an unknown one is carried as written
		// and left for the backend to refuse.
		docType = DocumentType(rawType)
	}

	id := r.ID
	if id == "" {
		if r.Version != 0 {
			return QueuedSubmission{}, errors.New("record is missing its id")
		}
		id = legacySubmissionID(r.CreatedAt, legacySeq[r.CreatedAt])
		legacySeq[r.CreatedAt]++
	}

	return QueuedSubmission{
		ID:                  id,
		CreatedAt:           r.CreatedAt,
		DocumentType:        docType,
		FormFields:          r.FormFields,
		LocalAssetReference: r.LocalAssetReference,
	}, nil
}

// EncodeRejected serializes the dead-letter list.
func EncodeRejected(items []RejectedSubmission) ([]byte, error) {
	if items == nil {
		items = []RejectedSubmission{}
	}
	return json.Marshal(items)
}

// DecodeRejected parses a blob written by EncodeRejected.
func DecodeRejected(data []byte) ([]RejectedSubmission, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []RejectedSubmission{}, nil
	}
	var items []RejectedSubmission
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode rejected submissions: %w", err)
	}
	return items, nil
}
