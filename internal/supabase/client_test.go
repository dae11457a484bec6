package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestQuerySelectBuildsFilters(t *testing.T) {
	var gotQuery map[string][]string
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/messages", r.URL.Path)
		gotQuery = r.URL.Query()
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"1","name":"a"},{"id":"2","name":"b"}]`))
	}))
	defer srv.Close()

	client := New(srv.URL+"/", "service-key")
	var rows []row
	err := client.From("messages").
		Select("id,name").
		Eq("conversation_id", "c1").
		Order("timestamp", false).
		Order("id", true).
		Limit(20).
		Execute(context.Background(), &rows)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{"id,name"}, gotQuery["select"])
	assert.Equal(t, []string{"eq.c1"}, gotQuery["conversation_id"])
	assert.Equal(t, []string{"timestamp.desc,id.asc"}, gotQuery["order"])
	assert.Equal(t, []string{"20"}, gotQuery["limit"])
	assert.Equal(t, "service-key", gotHeaders.Get("apikey"))
	assert.Equal(t, "Bearer service-key", gotHeaders.Get("Authorization"))
}

func TestQuerySingleNoRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, singleObjectType, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotAcceptable)
		_, _ = w.Write([]byte(`{"code":"PGRST116","details":"The result contains 0 rows","hint":null,"message":"JSON object requested, multiple (or no) rows returned"}`))
	}))
	defer srv.Close()

	var out row
	err := New(srv.URL, "k").From("characters").Eq("id", "nope").Single(context.Background(), &out)
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.NoRows())
	assert.Equal(t, "JSON object requested, multiple (or no) rows returned", apiErr.Error())
	assert.Equal(t, "The result contains 0 rows", apiErr.Details)
}

func TestQueryInsertAndUpsert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		switch r.URL.Path {
		case "/rest/v1/messages":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
			w.Header().Set("Content-Type", "application/vnd.pgrst.object+json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"m1","name":"` + payload["name"].(string) + `"}`))
		case "/rest/v1/users":
			assert.Equal(t, "id", r.URL.Query().Get("on_conflict"))
			assert.Contains(t, r.Header.Get("Prefer"), "resolution=merge-duplicates")
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := New(srv.URL, "k")
	var out row
	require.NoError(t, client.From("messages").Insert(context.Background(), map[string]string{"name": "hi"}, &out))
	assert.Equal(t, row{ID: "m1", Name: "hi"}, out)

	require.NoError(t, client.From("users").OnConflict("id").Upsert(context.Background(), map[string]string{"id": "u1"}))
}

func TestGetUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, authUserPath, r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401,"error_code":"bad_jwt","msg":"invalid JWT"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"user-1","email":"a@b.c","aud":"authenticated"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "anon")
	user, err := client.GetUser(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, &AuthUser{ID: "user-1", Email: "a@b.c"}, user)

	_, err = client.GetUser(context.Background(), "bad")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "401", apiErr.Code)
	assert.Equal(t, "invalid JWT", apiErr.Message)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, authHealthPath, r.URL.Path)
		assert.Equal(t, "Bearer anon", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"version":"v2","name":"GoTrue"}`))
	}))
	status, body, err := New(srv.URL, "anon").Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "GoTrue")

	srv.Close()
	_, _, err = New(srv.URL, "anon").Health(context.Background())
	assert.Error(t, err)
}
