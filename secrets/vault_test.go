package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	path, key, err := ParseReference("vault:wrms/prod#jwt_secret")
	require.NoError(t, err)
	assert.Equal(t, "wrms/prod", path)
	assert.Equal(t, "jwt_secret", key)

	for _, bad := range []string{"wrms/prod#x", "vault:wrms/prod", "vault:#key", "vault:path#"} {
		_, _, err := ParseReference(bad)
		assert.Error(t, err, bad)
	}
	assert.False(t, IsReference("plain"))
}

func TestResolver_ReadsKVv2AndCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/secret/data/wrms/prod", r.URL.Path)
		assert.Equal(t, "root-token", r.Header.Get("X-Vault-Token"))
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"data":{"jwt_secret":"s3cret"},"metadata":{"version":1}}}`))
	}))
	defer srv.Close()

	r, err := NewResolver(srv.URL, "root-token", "secret")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		v, err := r.Resolve(context.Background(), "vault:wrms/prod#jwt_secret")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", v)
	}
	assert.Equal(t, int32(1), hits.Load())

	v, err := r.Resolve(context.Background(), "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", v)

	_, err = r.Get(context.Background(), "wrms/prod", "missing")
	assert.Error(t, err)
}
