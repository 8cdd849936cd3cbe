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
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DocumentType identifies the civic document a submission applies for.
type DocumentType string

const (
	BirthCertificate DocumentType = "birth_certificate"
	IdRequest        DocumentType = "id_request"
)

// Form field names captured by the registration forms.
const (
	FieldFullName     = "fullName"
	FieldDateOfBirth  = "dateOfBirth"
	FieldPlaceOfBirth = "placeOfBirth"
	FieldParentNames  = "parentNames"
	FieldIDNumber     = "idNumber"
)

const dateOfBirthLayout = "2006-01-02"

// ParseDocumentType accepts the canonical values as well as the short forms
// ("birth", "id") written by earlier versions of the mobile app.
func ParseDocumentType(s string) (DocumentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "birth", "birth_certificate", "birthcertificate":
		return BirthCertificate, nil
	case "id", "id_request", "idrequest", "id_card":
		return IdRequest, nil
	default:
		return "", fmt.Errorf("unknown document type %q", s)
	}
}

// RequiredFields lists the form fields that must be filled for the document type.
func (d DocumentType) RequiredFields() []string {
	switch d {
	case BirthCertificate:
		return []string{FieldFullName, FieldDateOfBirth, FieldPlaceOfBirth}
	default:
		return []string{FieldFullName, FieldDateOfBirth}
	}
}

// Label is the human readable name stored with the backend record.
func (d DocumentType) Label() string {
	switch d {
	case BirthCertificate:
		return "Birth Certificate"
	case IdRequest:
		return "ID Card"
	default:
		return string(d)
	}
}

func (d DocumentType) String() string {
	return string(d)
}

// QueuedSubmission is a completed registration form waiting to be delivered.
type QueuedSubmission struct {
	ID                  string       `json:"id"`
	CreatedAt           int64        `json:"timestamp"`
	DocumentType        DocumentType `json:"docType"`
	FormFields          FormFields   `json:"formData"`
	LocalAssetReference string       `json:"imageUri"`
}

// Clone returns a deep copy of the submission.
func (s QueuedSubmission) Clone() QueuedSubmission {
	s.FormFields = s.FormFields.Clone()
	return s
}

// Validate checks the submission against the requirements of its document type.
func (s QueuedSubmission) Validate() error {
	errs := validation.Errors{
		"docType":  validation.Validate(s.DocumentType, validation.Required, validation.In(BirthCertificate, IdRequest)),
		"imageUri": validation.Validate(s.LocalAssetReference, validation.Required),
	}
	for _, name := range s.DocumentType.RequiredFields() {
		rules := []validation.Rule{validation.Required}
		if name == FieldDateOfBirth {
			rules = append(rules, validation.Date(dateOfBirthLayout).Error("must be formatted as YYYY-MM-DD"))
		}
		errs[name] = validation.Validate(strings.TrimSpace(s.FormFields.Get(name)), rules...)
	}
	return errs.Filter()
}

// RemoteSubmission is the record created on the backend once the asset has
// been uploaded.
type RemoteSubmission struct {
	ClientRef      string
	DocumentType   DocumentType
	FormFields     FormFields
	AssetReference string
	CapturedAt     int64
}

// NewRemoteSubmission pairs a queued submission with its uploaded asset reference.
func NewRemoteSubmission(s QueuedSubmission, assetReference string) RemoteSubmission {
	return RemoteSubmission{
		ClientRef:      s.ID,
		DocumentType:   s.DocumentType,
		FormFields:     s.FormFields.Clone(),
		AssetReference: assetReference,
		CapturedAt:     s.CreatedAt,
	}
}

// RejectedSubmission is a submission the backend refused permanently.
type RejectedSubmission struct {
	Submission QueuedSubmission `json:"submission"`
	Reason     string           `json:"reason"`
	RejectedAt int64            `json:"rejected_at"`
}
