package conversation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHandler_List(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("List", mock.Anything).Return([]Conversation{{ID: "conv-1", Title: "deploys"}}, nil)

		h := NewHandler(NewService(repo))
		req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
		w := httptest.NewRecorder()
		h.List(w, req)

		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&body))
		data := body["data"].([]interface{})
		require.Len(t, data, 1)
		assert.Equal(t, "conv-1", data[0].(map[string]interface{})["id"])
	})

	t.Run("Empty List Encoded As Array", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("List", mock.Anything).Return(nil, nil)

		h := NewHandler(NewService(repo))
		req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
		w := httptest.NewRecorder()
		h.List(w, req)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&body))
		data, ok := body["data"].([]interface{})
		assert.True(t, ok)
		assert.Empty(t, data)
	})
}

func TestHandler_GetMessages(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Exists", mock.Anything, "conv-1").Return(true, nil)
		repo.On("Messages", mock.Anything, "conv-1").Return([]Message{
			{ID: "m1", Role: "user", Content: "q"},
		}, nil)

		h := NewHandler(NewService(repo))
		req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1/messages", nil)
		req.SetPathValue("id", "conv-1")
		w := httptest.NewRecorder()
		h.GetMessages(w, req)

		assert.Equal(t, http.StatusOK, w.Result().StatusCode)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&body))
		data := body["data"].(map[string]interface{})
		assert.Equal(t, "conv-1", data["conversation_id"])
		assert.Len(t, data["messages"].([]interface{}), 1)
	})

	t.Run("Not Found", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("Exists", mock.Anything, "missing").Return(false, nil)

		h := NewHandler(NewService(repo))
		req := httptest.NewRequest(http.MethodGet, "/conversations/missing/messages", nil)
		req.SetPathValue("id", "missing")
		w := httptest.NewRecorder()
		h.GetMessages(w, req)

		assert.Equal(t, http.StatusNotFound, w.Result().StatusCode)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&body))
		errMap := body["error"].(map[string]interface{})
		assert.Equal(t, "NOT_FOUND", errMap["code"])
	})
}

func TestHandler_Delete(t *testing.T) {
	repo := new(MockRepository)
	repo.On("Delete", mock.Anything, "conv-1").Return(nil)

	h := NewHandler(NewService(repo))
	req := httptest.NewRequest(http.MethodDelete, "/conversations/conv-1", nil)
	req.SetPathValue("id", "conv-1")
	w := httptest.NewRecorder()
	h.Delete(w, req)

	assert.Equal(t, http.StatusNoContent, w.Result().StatusCode)
	repo.AssertExpectations(t)
}
