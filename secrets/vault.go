// Package secrets resolves "vault:<path>#<key>" references against a Vault
// KV-v2 mount. Resolved values are cached for the life of the resolver.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

const prefix = "vault:"

// IsReference reports whether a config value points into Vault.
func IsReference(v string) bool {
	return strings.HasPrefix(v, prefix)
}

// ParseReference splits "vault:wrms/prod#jwt_secret" into path and key.
func ParseReference(ref string) (path, key string, err error) {
	if !IsReference(ref) {
		return "", "", fmt.Errorf("%q is not a vault reference", ref)
	}
	path, key, ok := strings.Cut(strings.TrimPrefix(ref, prefix), "#")
	path = strings.Trim(path, "/")
	if !ok || path == "" || key == "" {
		return "", "", fmt.Errorf("vault reference %q must look like vault:<path>#<key>", ref)
	}
	return path, key, nil
}

// Resolver reads KV-v2 secrets. It is safe for concurrent use.
type Resolver struct {
	api   *vault.Client
	mount string

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver connects to Vault. Empty address and token fall back to
// VAULT_ADDR and VAULT_TOKEN.
func NewResolver(address, token, mount string) (*Resolver, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}
	if address != "" {
		cfg.Address = address
	}
	api, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if token != "" {
		api.SetToken(token)
	}
	if mount == "" {
		mount = "secret"
	}
	return &Resolver{api: api, mount: mount, cache: make(map[string]string)}, nil
}

// Get returns one string value from a KV-v2 secret.
func (r *Resolver) Get(ctx context.Context, path, key string) (string, error) {
	if path == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}
	canonical := path + "#" + key

	r.mu.RLock()
	if v, ok := r.cache[canonical]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	sec, err := r.api.KVv2(r.mount).Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", path, err)
	}
	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, path)
	}
	v, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s#%s is not a string", path, key)
	}

	r.mu.Lock()
	r.cache[canonical] = v
	r.mu.Unlock()
	return v, nil
}

// Resolve returns ref unchanged unless it is a vault reference.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if !IsReference(ref) {
		return ref, nil
	}
	path, key, err := ParseReference(ref)
	if err != nil {
		return "", err
	}
	return r.Get(ctx, path, key)
}
