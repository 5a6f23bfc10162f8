package policy

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cutty/cutty/core/infra/kv"
	"github.com/cutty/cutty/core/infra/logging"
	"github.com/cutty/cutty/core/infra/schema"
)

const (
	storeKeyPrefix   = "security-config-"
	policySchemaFile = "schema/security_policy.schema.json"
)

//go:embed schema/*.json
var policySchemaFS embed.FS

var documentValidator = schema.NewValidator("security-policy", mustSchema(policySchemaFS, policySchemaFile))

func mustSchema(fs embed.FS, name string) []byte {
	data, err := fs.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("policy schema %s: %v", name, err))
	}
	return data
}

// StoreKey is the KV key holding the policy document of an environment.
func StoreKey(env Environment) string {
	return storeKeyPrefix + string(env)
}

// Store persists one policy document per environment.
type Store struct {
	kv kv.Store
}

func NewStore(backend kv.Store) *Store {
	return &Store{kv: backend}
}

// Load returns the stored policy for env. A missing, malformed or invalid
// document yields ErrPolicyNotFound; transport failures are returned wrapped.
func (s *Store) Load(ctx context.Context, env Environment) (SecurityPolicy, error) {
	raw, err := s.kv.Get(ctx, StoreKey(env))
	if errors.Is(err, kv.ErrNotFound) {
		return SecurityPolicy{}, ErrPolicyNotFound
	}
	if err != nil {
		return SecurityPolicy{}, fmt.Errorf("load policy %s: %w", env, err)
	}
	if err := documentValidator.Validate(raw); err != nil {
		logging.Warn("policy-store", "stored policy rejected", "environment", env, "error", err)
		return SecurityPolicy{}, ErrPolicyNotFound
	}
	var p SecurityPolicy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		logging.Warn("policy-store", "stored policy undecodable", "environment", env, "error", err)
		return SecurityPolicy{}, ErrPolicyNotFound
	}
	if res := ValidateConfig(p); !res.Valid {
		logging.Warn("policy-store", "stored policy invalid", "environment", env, "errors", res.Errors)
		return SecurityPolicy{}, ErrPolicyNotFound
	}
	if p.Environment != env {
		logging.Warn("policy-store", "stored policy environment mismatch", "key", StoreKey(env), "environment", p.Environment)
		return SecurityPolicy{}, ErrPolicyNotFound
	}
	return p.Clone(), nil
}

// Save writes the policy under its own environment key.
func (s *Store) Save(ctx context.Context, p SecurityPolicy) error {
	if !p.Environment.valid() {
		return fmt.Errorf("save policy: invalid environment %q", p.Environment)
	}
	data, err := json.Marshal(p.Clone())
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	if err := s.kv.Put(ctx, StoreKey(p.Environment), string(data), 0); err != nil {
		return fmt.Errorf("save policy %s: %w", p.Environment, err)
	}
	return nil
}
