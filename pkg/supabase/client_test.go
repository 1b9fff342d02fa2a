package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryAll_PagesUntilShortPage(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/macros", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("apikey"))
		assert.Equal(t, "eq.7", r.URL.Query().Get("user_id"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, r.URL.Query().Get("offset"))
		rows := []map[string]int{{"n": offset}, {"n": offset + 1}}
		if offset >= 2 {
			rows = rows[:1]
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key")
	rows, err := QueryAll[struct {
		N int `json:"n"`
	}](context.Background(), c, "macros", map[string]string{"user_id": "eq.7"}, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, []string{"0", "2"}, offsets)
}

func TestUpload_SetsUpsertAndPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/storage/v1/object/artifacts/analytics/batch_1/relations/vif.parquet", r.URL.Path)
		assert.Equal(t, "true", r.Header.Get("x-upsert"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "PAR1", string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	err := c.Upload(context.Background(), "artifacts", "analytics/batch_1/relations/vif.parquet", strings.NewReader("PAR1"), "")
	require.NoError(t, err)
}

func TestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"denied"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "key").Insert(context.Background(), "analytics_runs", map[string]any{"batch_id": "b"})
	require.Error(t, err)
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}
