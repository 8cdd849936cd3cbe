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
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// S3Config points the uploader at an S3-compatible bucket.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL, when set, prefixes the object key in returned references.
	PublicBaseURL string
	// Owner is the first path segment of every object key.
	Owner string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores captured images in an S3-compatible bucket.
type S3Uploader struct {
	client putObjectAPI
	cfg    S3Config
}

// NewS3Uploader builds an S3 client from static credentials when they are
// configured and from the default credential chain otherwise.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3UploaderWithClient(client, cfg), nil
}

func NewS3UploaderWithClient(client putObjectAPI, cfg S3Config) *S3Uploader {
	return &S3Uploader{client: client, cfg: cfg}
}

// UploadAsset puts the image behind localRef at {owner}/{submissionID}.{ext}.
// The same submission always maps to the same key.
func (u *S3Uploader) UploadAsset(ctx context.Context, submissionID, localRef string) (string, error) {
	f, info, err := Open(localRef)
	if err != nil {
		return "", err
	}
	defer f.Close()

	owner := u.cfg.Owner
	if owner == "" {
		owner = "anonymous"
	}
	key := ObjectKey(owner, submissionID, info.Ext)

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size),
		ContentType:   aws.String(info.ContentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	logrus.WithFields(logrus.Fields{
		"submission_id": submissionID,
		"bucket":        u.cfg.Bucket,
		"object_key":    key,
	}).Debug("asset uploaded to s3")

	if u.cfg.PublicBaseURL != "" {
		return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key, nil
	}
	return fmt.Sprintf("s3://%s/%s", u.cfg.Bucket, key), nil
}
