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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPutObject struct {
	mock.Mock
}

func (m *mockPutObject) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if out, ok := args.Get(0).(*s3.PutObjectOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestS3Uploader_UploadAsset(t *testing.T) {
	p := writeImage(t, "capture.jpg", "jpeg-bytes")
	client := &mockPutObject{}
	uploader := NewS3UploaderWithClient(client, S3Config{
		Bucket:        "registrations",
		Owner:         "user-1",
		PublicBaseURL: "https://cdn.example.com/registrations/",
	})

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "registrations" &&
			aws.ToString(in.Key) == "user-1/sub_a.jpg" &&
			aws.ToString(in.ContentType) == "image/jpeg" &&
			aws.ToInt64(in.ContentLength) == int64(len("jpeg-bytes"))
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	ref, err := uploader.UploadAsset(context.Background(), "sub_a", "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/registrations/user-1/sub_a.jpg", ref)
	client.AssertExpectations(t)
}

func TestS3Uploader_Failures(t *testing.T) {
	client := &mockPutObject{}
	uploader := NewS3UploaderWithClient(client, S3Config{Bucket: "registrations"})

	_, err := uploader.UploadAsset(context.Background(), "sub_a", "file:///missing.jpg")
	var missing *MissingAssetError
	assert.True(t, errors.As(err, &missing))
	client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything)

	p := writeImage(t, "capture.jpg", "jpeg-bytes")
	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("SlowDown")).Once()
	_, err = uploader.UploadAsset(context.Background(), "sub_a", p)
	assert.ErrorContains(t, err, "put object anonymous/sub_a.jpg")
}

func TestS3Uploader_AgainstHTTPEndpoint(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(server.URL),
		UsePathStyle:               true,
		Credentials:                credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		HTTPClient:                 server.Client(),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})
	uploader := NewS3UploaderWithClient(client, S3Config{Bucket: "registrations", Owner: "user-1"})

	p := writeImage(t, "capture.jpg", "jpeg-bytes")
	ref, err := uploader.UploadAsset(context.Background(), "sub_a", p)
	require.NoError(t, err)

	assert.Equal(t, "s3://registrations/user-1/sub_a.jpg", ref)
	assert.Equal(t, "/registrations/user-1/sub_a.jpg", gotPath)
	assert.Equal(t, "jpeg-bytes", gotBody)
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)

	uploader, err := NewS3Uploader(context.Background(), S3Config{
		Bucket:          "registrations",
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
	})
	require.NoError(t, err)
	assert.NotNil(t, uploader)
}
