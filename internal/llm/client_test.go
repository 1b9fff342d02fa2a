package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

func newTestClient(url string) *Client {
	c := NewClient(Config{APIKey: "sk-test", BaseURL: url + "/", Timeout: time.Second})
	c.backoff = time.Millisecond
	return c
}

func TestInsights_NoKey(t *testing.T) {
	text, err := NewClient(Config{}).Insights(context.Background(), 1, models.UserSummary{UserID: 1})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestInsights_SendsSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		raw, _ := io.ReadAll(r.Body)
		var req chatRequest
		require.NoError(t, json.Unmarshal(raw, &req))
		assert.Equal(t, DefaultModel, req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.True(t, strings.HasPrefix(req.Messages[1].Content, "Data: {"))
		assert.Contains(t, req.Messages[1].Content, `"uid":42`)

		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"  Walk more.  "}}]}`)
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).Insights(context.Background(), 42, models.UserSummary{UserID: 42, Days: 30})
	require.NoError(t, err)
	assert.Equal(t, "Walk more.", text)
}

func TestInsights_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).Insights(context.Background(), 1, models.UserSummary{})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInsights_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Insights(context.Background(), 1, models.UserSummary{})
	require.Error(t, err)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInsights_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Insights(context.Background(), 1, models.UserSummary{})
	require.Error(t, err)
	assert.Equal(t, int32(defaultMaxRetries+1), calls.Load())
}
