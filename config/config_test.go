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

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Configuration {
	return Configuration{
		Remote: RemoteConfig{Url: "https://project.example.co/", ApiKey: "anon-key"},
	}
}

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := validConfig()
	require.NoError(t, cnf.validateAndAddDefaults())

	assert.Equal(t, "Docsync", cnf.ProjectName)
	assert.Equal(t, "file", cnf.Store.Driver)
	assert.Equal(t, DEFAULT_FILE_PATH, cnf.Store.Path)
	assert.Equal(t, "@offline_queue", cnf.Store.Key)
	assert.Equal(t, "https://project.example.co", cnf.Remote.Url)
	assert.Equal(t, DEFAULT_BUCKET, cnf.Remote.Bucket)
	assert.Equal(t, DEFAULT_TABLE, cnf.Remote.Table)
	assert.Equal(t, 30*time.Second, cnf.RemoteTimeout())
	assert.Equal(t, "remote", cnf.Assets.Driver)
	assert.Equal(t, "https://project.example.co/rest/v1/", cnf.Connectivity.ProbeUrl)
	assert.Equal(t, 30, cnf.Connectivity.Interval)
	assert.Equal(t, 2*time.Minute, cnf.PassLockTTL())
	assert.Equal(t, 10*time.Second, cnf.WriteLockTTL())
}

func TestValidateAndAddDefaults_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Configuration)
		err    string
	}{
		{name: "missing remote url", mutate: func(c *Configuration) { c.Remote.Url = "" }, err: "remote url is required"},
		{name: "missing api key", mutate: func(c *Configuration) { c.Remote.ApiKey = " " }, err: "remote api key is required"},
		{name: "redis without dns", mutate: func(c *Configuration) { c.Store.Driver = "redis" }, err: "redis DNS is required"},
		{name: "unknown store", mutate: func(c *Configuration) { c.Store.Driver = "etcd" }, err: `unknown store driver "etcd"`},
		{name: "s3 without bucket", mutate: func(c *Configuration) { c.Assets.Driver = "s3" }, err: "s3 bucket name is required when the assets driver is s3"},
		{name: "unknown assets", mutate: func(c *Configuration) { c.Assets.Driver = "ftp" }, err: `unknown assets driver "ftp"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cnf := validConfig()
			tt.mutate(&cnf)
			assert.EqualError(t, cnf.validateAndAddDefaults(), tt.err)
		})
	}
}

func TestValidateAndAddDefaults_StoreDrivers(t *testing.T) {
	cnf := validConfig()
	cnf.Store.Driver = " SQLite "
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, "sqlite", cnf.Store.Driver)
	assert.Equal(t, DEFAULT_SQLITE_PATH, cnf.Store.Path)

	cnf = validConfig()
	cnf.Store.Driver = "redis"
	cnf.Store.RedisDns = "localhost:6379"
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, "docsync:", cnf.Store.RedisPrefix)

	cnf = validConfig()
	cnf.Assets.Driver = "s3"
	cnf.Assets.S3BucketName = "captures"
	require.NoError(t, cnf.validateAndAddDefaults())
	assert.Equal(t, DEFAULT_S3_REGION, cnf.Assets.S3Region)
}

func TestLoadConfigFromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "docsync.json")
	sample := validConfig()
	sample.ProjectName = "File Project"
	sample.Store.Driver = "memory"
	data, err := json.Marshal(sample)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, data, 0o600))

	t.Setenv("DOCSYNC_PROJECT_NAME", "Env Project")
	t.Setenv("DOCSYNC_RETRY_SCHEDULE", "@every 15m")

	require.NoError(t, loadConfigFromFile(file))
	loaded, err := Fetch()
	require.NoError(t, err)

	assert.Equal(t, "Env Project", loaded.ProjectName)
	assert.Equal(t, "memory", loaded.Store.Driver)
	assert.Equal(t, "@every 15m", loaded.Queue.RetrySchedule)
	assert.Equal(t, "anon-key", loaded.Remote.ApiKey)
}

func TestInitConfig_EnvOnly(t *testing.T) {
	t.Setenv("DOCSYNC_REMOTE_URL", "https://env.example.co")
	t.Setenv("DOCSYNC_REMOTE_API_KEY", "env-key")
	t.Setenv("DOCSYNC_STORE_DRIVER", "memory")

	require.NoError(t, InitConfig(filepath.Join(t.TempDir(), "missing.json")))
	loaded, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.co", loaded.Remote.Url)
	assert.Equal(t, "env-key", loaded.Remote.ApiKey)
}

func TestLoadConfigFromFile_Malformed(t *testing.T) {
	file := filepath.Join(t.TempDir(), "docsync.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0o600))
	assert.Error(t, loadConfigFromFile(file))
}

func TestMockConfig(t *testing.T) {
	mock := &Configuration{ProjectName: "Mocked"}
	MockConfig(mock)
	got, err := Fetch()
	require.NoError(t, err)
	assert.Same(t, mock, got)
}
