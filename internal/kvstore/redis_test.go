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

package kvstore

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Load(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "docsync:")

	mock.ExpectGet("docsync:@offline_queue").SetVal("[]")
	got, err := store.Load(context.Background(), "@offline_queue")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))

	mock.ExpectGet("docsync:missing").RedisNil()
	_, err = store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectGet("docsync:broken").SetErr(errors.New("connection reset"))
	_, err = store.Load(context.Background(), "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Save(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "docsync:")

	mock.ExpectSet("docsync:@offline_queue", []byte("[]"), 0).SetVal("OK")
	assert.NoError(t, store.Save(context.Background(), "@offline_queue", []byte("[]")))

	mock.ExpectSet("docsync:@offline_queue", []byte("[1]"), 0).SetErr(errors.New("OOM"))
	assert.Error(t, store.Save(context.Background(), "@offline_queue", []byte("[1]")))

	assert.NoError(t, mock.ExpectationsWereMet())
}
