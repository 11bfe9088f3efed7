package sync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"notia/internal/config"
	"notia/internal/worker"
)

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

type MockIndexStatus struct{ mock.Mock }

func (m *MockIndexStatus) LastSync(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockIndexStatus) Count(ctx context.Context) int {
	args := m.Called(ctx)
	return args.Int(0)
}

type MockSourceStatus struct{ mock.Mock }

func (m *MockSourceStatus) LastEditedTime(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

func TestHandler_Enqueue(t *testing.T) {
	t.Run("Rebuild Queued", func(t *testing.T) {
		publisher := new(MockPublisher)
		var published worker.SyncRequested
		publisher.On("Publish", config.TopicIndexSync, mock.Anything).
			Run(func(args mock.Arguments) {
				require.NoError(t, json.Unmarshal(args.Get(1).([]byte), &published))
			}).Return(nil)

		h := NewHandler(publisher, new(MockIndexStatus), new(MockSourceStatus))
		req := httptest.NewRequest(http.MethodPost, "/index/rebuild", nil)
		w := httptest.NewRecorder()
		h.Rebuild(w, req)

		assert.Equal(t, http.StatusAccepted, w.Result().StatusCode)
		assert.Equal(t, worker.ModeRebuild, published.Mode)
		assert.False(t, published.Force)
	})

	t.Run("Incremental With Force", func(t *testing.T) {
		publisher := new(MockPublisher)
		var published worker.SyncRequested
		publisher.On("Publish", config.TopicIndexSync, mock.Anything).
			Run(func(args mock.Arguments) {
				require.NoError(t, json.Unmarshal(args.Get(1).([]byte), &published))
			}).Return(nil)

		h := NewHandler(publisher, new(MockIndexStatus), new(MockSourceStatus))
		req := httptest.NewRequest(http.MethodPost, "/index/sync?force=true", nil)
		w := httptest.NewRecorder()
		h.Sync(w, req)

		assert.Equal(t, http.StatusAccepted, w.Result().StatusCode)
		assert.Equal(t, worker.ModeIncremental, published.Mode)
		assert.True(t, published.Force)
	})

	t.Run("Publish Failure", func(t *testing.T) {
		publisher := new(MockPublisher)
		publisher.On("Publish", config.TopicIndexSync, mock.Anything).Return(errors.New("nsqd gone"))

		h := NewHandler(publisher, new(MockIndexStatus), new(MockSourceStatus))
		req := httptest.NewRequest(http.MethodPost, "/index/sync", nil)
		w := httptest.NewRecorder()
		h.Sync(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode)
	})
}

func TestHandler_Status(t *testing.T) {
	syncTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	getStatus := func(t *testing.T, index *MockIndexStatus, source *MockSourceStatus) (int, map[string]interface{}) {
		t.Helper()
		h := NewHandler(new(MockPublisher), index, source)
		req := httptest.NewRequest(http.MethodGet, "/index/status", nil)
		w := httptest.NewRecorder()
		h.Status(w, req)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&body))
		return w.Result().StatusCode, body
	}

	t.Run("Index Current", func(t *testing.T) {
		index := new(MockIndexStatus)
		source := new(MockSourceStatus)
		index.On("Count", mock.Anything).Return(42)
		index.On("LastSync", mock.Anything).Return(syncTime, nil)
		source.On("LastEditedTime", mock.Anything).Return(syncTime.Add(-time.Hour), nil)

		status, body := getStatus(t, index, source)
		assert.Equal(t, http.StatusOK, status)

		data := body["data"].(map[string]interface{})
		assert.Equal(t, true, data["is_actual"])
		assert.EqualValues(t, 42, data["total_chunks"])
		assert.NotNil(t, data["last_sync"])
	})

	t.Run("Source Newer Than Index", func(t *testing.T) {
		index := new(MockIndexStatus)
		source := new(MockSourceStatus)
		index.On("Count", mock.Anything).Return(42)
		index.On("LastSync", mock.Anything).Return(syncTime, nil)
		source.On("LastEditedTime", mock.Anything).Return(syncTime.Add(time.Hour), nil)

		_, body := getStatus(t, index, source)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, false, data["is_actual"])
	})

	t.Run("Never Synced", func(t *testing.T) {
		index := new(MockIndexStatus)
		source := new(MockSourceStatus)
		index.On("Count", mock.Anything).Return(0)
		index.On("LastSync", mock.Anything).Return(time.Time{}, nil)
		source.On("LastEditedTime", mock.Anything).Return(syncTime, nil)

		_, body := getStatus(t, index, source)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, false, data["is_actual"])
		assert.Nil(t, data["last_sync"])
	})

	t.Run("Source Check Failure Degrades", func(t *testing.T) {
		index := new(MockIndexStatus)
		source := new(MockSourceStatus)
		index.On("Count", mock.Anything).Return(10)
		index.On("LastSync", mock.Anything).Return(syncTime, nil)
		source.On("LastEditedTime", mock.Anything).Return(time.Time{}, errors.New("notion down"))

		status, body := getStatus(t, index, source)
		assert.Equal(t, http.StatusOK, status)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, false, data["is_actual"])
		assert.NotNil(t, data["last_sync"])
	})

	t.Run("Index Read Failure", func(t *testing.T) {
		index := new(MockIndexStatus)
		source := new(MockSourceStatus)
		index.On("Count", mock.Anything).Return(0)
		index.On("LastSync", mock.Anything).Return(time.Time{}, errors.New("weaviate down"))

		status, _ := getStatus(t, index, source)
		assert.Equal(t, http.StatusInternalServerError, status)
	})
}
