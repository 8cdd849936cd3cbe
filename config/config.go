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
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_STORE_KEY     = "@offline_queue"
	DEFAULT_STORE_DRIVER  = "file"
	DEFAULT_FILE_PATH     = "./docsync-data"
	DEFAULT_SQLITE_PATH   = "./docsync.db"
	DEFAULT_BUCKET        = "registrations"
	DEFAULT_TABLE         = "submissions"
	DEFAULT_S3_REGION     = "us-east-1"
	DEFAULT_PASS_LOCK_TTL = 120

	DEFAULT_WRITE_LOCK_TTL = 10
)

var ConfigStore atomic.Value

type StoreConfig struct {
	Driver             string `json:"driver" envconfig:"DOCSYNC_STORE_DRIVER"`
	Path               string `json:"path" envconfig:"DOCSYNC_STORE_PATH"`
	RedisDns           string `json:"redis_dns" envconfig:"DOCSYNC_STORE_REDIS_DNS"`
	RedisSkipTLSVerify bool   `json:"redis_skip_tls_verify" envconfig:"DOCSYNC_STORE_REDIS_SKIP_TLS_VERIFY"`
	RedisPrefix        string `json:"redis_prefix" envconfig:"DOCSYNC_STORE_REDIS_PREFIX"`
	Key                string `json:"key" envconfig:"DOCSYNC_STORE_KEY"`
}

type RemoteConfig struct {
	Url         string `json:"url" envconfig:"DOCSYNC_REMOTE_URL"`
	ApiKey      string `json:"api_key" envconfig:"DOCSYNC_REMOTE_API_KEY"`
	AccessToken string `json:"access_token" envconfig:"DOCSYNC_REMOTE_ACCESS_TOKEN"`
	UserId      string `json:"user_id" envconfig:"DOCSYNC_REMOTE_USER_ID"`
	Bucket      string `json:"bucket" envconfig:"DOCSYNC_REMOTE_BUCKET"`
	Table       string `json:"table" envconfig:"DOCSYNC_REMOTE_TABLE"`
	Timeout     int    `json:"timeout" envconfig:"DOCSYNC_REMOTE_TIMEOUT"`
}

type AssetsConfig struct {
	Driver             string `json:"driver" envconfig:"DOCSYNC_ASSETS_DRIVER"`
	S3BucketName       string `json:"s3_bucket_name" envconfig:"DOCSYNC_S3_BUCKET_NAME"`
	S3Region           string `json:"s3_region" envconfig:"DOCSYNC_S3_REGION"`
	S3Endpoint         string `json:"s3_endpoint" envconfig:"DOCSYNC_S3_ENDPOINT"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"DOCSYNC_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"DOCSYNC_AWS_SECRET_ACCESS_KEY"`
	PublicBaseUrl      string `json:"public_base_url" envconfig:"DOCSYNC_ASSETS_PUBLIC_BASE_URL"`
}

type ConnectivityConfig struct {
	ProbeUrl   string `json:"probe_url" envconfig:"DOCSYNC_PROBE_URL"`
	Interval   int    `json:"interval" envconfig:"DOCSYNC_PROBE_INTERVAL"`
	MaxBackoff int    `json:"max_backoff" envconfig:"DOCSYNC_PROBE_MAX_BACKOFF"`
	Timeout    int    `json:"timeout" envconfig:"DOCSYNC_PROBE_TIMEOUT"`
}

type QueueConfig struct {
	RetrySchedule           string `json:"retry_schedule" envconfig:"DOCSYNC_RETRY_SCHEDULE"`
	RejectPermanentFailures bool   `json:"reject_permanent_failures" envconfig:"DOCSYNC_REJECT_PERMANENT_FAILURES"`
	PersistEachRemoval      bool   `json:"persist_each_removal" envconfig:"DOCSYNC_PERSIST_EACH_REMOVAL"`
	PassLockTTL             int    `json:"pass_lock_ttl" envconfig:"DOCSYNC_PASS_LOCK_TTL"`
	WriteLockTTL            int    `json:"write_lock_ttl" envconfig:"DOCSYNC_WRITE_LOCK_TTL"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"DOCSYNC_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url" envconfig:"DOCSYNC_WEBHOOK_URL"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type TracingConfig struct {
	Endpoint    string `json:"endpoint" envconfig:"DOCSYNC_OTEL_ENDPOINT"`
	ServiceName string `json:"service_name" envconfig:"DOCSYNC_OTEL_SERVICE_NAME"`
	// StdoutLogs exports user notifications as OpenTelemetry log records on stdout.
	StdoutLogs bool `json:"stdout_logs" envconfig:"DOCSYNC_OTEL_STDOUT_LOGS"`
}

type Configuration struct {
	ProjectName  string             `json:"project_name" envconfig:"DOCSYNC_PROJECT_NAME"`
	Store        StoreConfig        `json:"store"`
	Remote       RemoteConfig       `json:"remote"`
	Assets       AssetsConfig       `json:"assets"`
	Connectivity ConnectivityConfig `json:"connectivity"`
	Queue        QueueConfig        `json:"queue"`
	Notification Notification       `json:"notification"`
	Tracing      TracingConfig      `json:"tracing"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&cnf); err != nil {
			return fmt.Errorf("decode %s: %w", file, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	if err := envconfig.Process("docsync", &cnf); err != nil {
		return err
	}

	if err := cnf.validateAndAddDefaults(); err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	c, ok := ConfigStore.Load().(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded. Create a json file called docsync.json or set DOCSYNC_* variables")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Docsync"
	}

	if err := cnf.Store.defaults(); err != nil {
		return err
	}

	cnf.Remote.Url = strings.TrimRight(strings.TrimSpace(cnf.Remote.Url), "/")
	if cnf.Remote.Url == "" {
		log.Println("Error: Remote URL is empty. It's a required field.")
		return errors.New("remote url is required")
	}
	if strings.TrimSpace(cnf.Remote.ApiKey) == "" {
		log.Println("Error: Remote API key is empty. It's a required field.")
		return errors.New("remote api key is required")
	}
	if cnf.Remote.Bucket == "" {
		cnf.Remote.Bucket = DEFAULT_BUCKET
	}
	if cnf.Remote.Table == "" {
		cnf.Remote.Table = DEFAULT_TABLE
	}
	if cnf.Remote.Timeout <= 0 {
		cnf.Remote.Timeout = 30
	}

	switch cnf.Assets.Driver {
	case "", "remote":
		cnf.Assets.Driver = "remote"
	case "s3":
		if cnf.Assets.S3BucketName == "" {
			return errors.New("s3 bucket name is required when the assets driver is s3")
		}
		if cnf.Assets.S3Region == "" {
			cnf.Assets.S3Region = DEFAULT_S3_REGION
		}
	default:
		return fmt.Errorf("unknown assets driver %q", cnf.Assets.Driver)
	}

	if cnf.Connectivity.ProbeUrl == "" {
		cnf.Connectivity.ProbeUrl = cnf.Remote.Url + "/rest/v1/"
	}
	if cnf.Connectivity.Interval <= 0 {
		cnf.Connectivity.Interval = 30
	}
	if cnf.Connectivity.MaxBackoff <= 0 {
		cnf.Connectivity.MaxBackoff = 300
	}
	if cnf.Connectivity.Timeout <= 0 {
		cnf.Connectivity.Timeout = 5
	}

	if cnf.Queue.PassLockTTL <= 0 {
		cnf.Queue.PassLockTTL = DEFAULT_PASS_LOCK_TTL
	}
	if cnf.Queue.WriteLockTTL <= 0 {
		cnf.Queue.WriteLockTTL = DEFAULT_WRITE_LOCK_TTL
	}
	if cnf.Tracing.ServiceName == "" {
		cnf.Tracing.ServiceName = "docsync"
	}
	return nil
}

func (s *StoreConfig) defaults() error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	s.Path = strings.TrimSpace(s.Path)
	s.RedisDns = strings.TrimSpace(s.RedisDns)

	switch s.Driver {
	case "":
		s.Driver = DEFAULT_STORE_DRIVER
		log.Printf("Warning: Store driver not specified in config. Using %s", DEFAULT_STORE_DRIVER)
		fallthrough
	case "file":
		if s.Path == "" {
			s.Path = DEFAULT_FILE_PATH
		}
	case "sqlite":
		if s.Path == "" {
			s.Path = DEFAULT_SQLITE_PATH
		}
	case "redis":
		if s.RedisDns == "" {
			log.Println("Error: Redis DNS is empty. It's required for the redis store.")
			return errors.New("redis DNS is required")
		}
		if s.RedisPrefix == "" {
			s.RedisPrefix = "docsync:"
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver %q", s.Driver)
	}

	if s.Key == "" {
		s.Key = DEFAULT_STORE_KEY
	}
	return nil
}

// RemoteTimeout returns the backend request timeout.
func (cnf *Configuration) RemoteTimeout() time.Duration {
	return time.Duration(cnf.Remote.Timeout) * time.Second
}

// PassLockTTL returns how long a cross-process reconciliation lock is held at most.
func (cnf *Configuration) PassLockTTL() time.Duration {
	return time.Duration(cnf.Queue.PassLockTTL) * time.Second
}

// WriteLockTTL bounds one read-modify-write of a queue shared through Redis.
func (cnf *Configuration) WriteLockTTL() time.Duration {
	return time.Duration(cnf.Queue.WriteLockTTL) * time.Second
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	l := logrus.New()
	log.SetOutput(l.Writer())
}
