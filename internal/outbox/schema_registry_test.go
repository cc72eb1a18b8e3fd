package outbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaFindsRegisteredSchema(t *testing.T) {
	var lookedUp map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/subjects/sync_entity_changed-value", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lookedUp))
		_, _ = w.Write([]byte(`{"subject":"sync_entity_changed-value","id":17,"version":2}`))
	}))
	defer srv.Close()

	id, err := NewSchemaRegistryClient(srv.URL+"/").EnsureSchema(context.Background(), "sync_entity_changed-value", entityChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 17, id)
	require.JSONEq(t, entityChangedSchema, lookedUp["schema"])
}

func TestEnsureSchemaRegistersWhenLookupMisses(t *testing.T) {
	for name, code := range map[string]int{"subject missing": 40401, "schema missing": 40403} {
		t.Run(name, func(t *testing.T) {
			var registered map[string]string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/subjects/sync_conflicts-value":
					w.WriteHeader(http.StatusNotFound)
					_ = json.NewEncoder(w).Encode(map[string]any{"error_code": code, "message": "not found"})
				case "/subjects/sync_conflicts-value/versions":
					require.Equal(t, "application/vnd.schemaregistry.v1+json", r.Header.Get("Content-Type"))
					require.NoError(t, json.NewDecoder(r.Body).Decode(&registered))
					_, _ = w.Write([]byte(`{"id":5}`))
				default:
					t.Fatalf("unexpected path %s", r.URL.Path)
				}
			}))
			defer srv.Close()

			id, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "sync_conflicts-value", syncConflictDetectedSchema)
			require.NoError(t, err)
			require.Equal(t, 5, id)
			require.Equal(t, "JSON", registered["schemaType"])
			require.JSONEq(t, syncConflictDetectedSchema, registered["schema"])
		})
	}
}

func TestEnsureSchemaSurfacesServerErrors(t *testing.T) {
	var registrations int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/subjects/sync_conflicts-value/versions" {
			registrations++
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "sync_conflicts-value", syncConflictDetectedSchema)
	var regErr *RegistryError
	require.ErrorAs(t, err, &regErr)
	require.Equal(t, http.StatusServiceUnavailable, regErr.Status)
	require.Equal(t, "maintenance", regErr.Message)
	require.Zero(t, registrations, "registration is only attempted after a lookup miss")
}

func TestSchemaRegistryBasicAuthFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "api-key", user)
		require.Equal(t, "s3cret", pass)
		_, _ = w.Write([]byte(`{"id":9}`))
	}))
	defer srv.Close()

	withCreds := "http://api-key:s3cret@" + srv.Listener.Addr().String()
	client := NewSchemaRegistryClient(withCreds)
	require.NotContains(t, client.baseURL, "s3cret")

	id, err := client.EnsureSchema(context.Background(), "sync_entity_changed-value", entityChangedSchema)
	require.NoError(t, err)
	require.Equal(t, 9, id)
}
