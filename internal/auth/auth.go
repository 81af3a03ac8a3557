package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

const (
	RoleExploreUser   = "explore_user"
	RoleDashboardUser = "dashboard_user"
	RoleAdmin         = "admin"
)

type Identity struct {
	User  string
	Roles []string
}

func (i Identity) HasRole(role string) bool {
	for _, candidate := range i.Roles {
		if candidate == role || candidate == RoleAdmin {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses entries of the form key:user:role|role
// separated by commas.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	entries := strings.Split(spec, ",")
	for _, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:user:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		user := strings.TrimSpace(parts[1])
		if key == "" || user == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/user", entry)
		}
		roles := splitRoles(parts[2])
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
		}
		validator.keys[key] = Identity{User: user, Roles: roles}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

// KeyStore resolves hashed API keys persisted in the catalog.
type KeyStore interface {
	LookupAPIKey(ctx context.Context, keyHash string) (user string, roles string, err error)
}

type CatalogAPIKeyValidator struct {
	store  KeyStore
	logger *slog.Logger
}

func NewCatalogAPIKeyValidator(store KeyStore, logger *slog.Logger) *CatalogAPIKeyValidator {
	return &CatalogAPIKeyValidator{store: store, logger: logger}
}

func (v *CatalogAPIKeyValidator) Validate(ctx context.Context, apiKey string) (Identity, bool) {
	user, roles, err := v.store.LookupAPIKey(ctx, HashAPIKey(apiKey))
	if err != nil {
		if v.logger != nil {
			v.logger.DebugContext(ctx, "catalog api key lookup failed", slog.Any("error", err))
		}
		return Identity{}, false
	}
	parsed := splitRoles(roles)
	if user == "" || len(parsed) == 0 {
		return Identity{}, false
	}
	return Identity{User: user, Roles: parsed}, true
}

// ChainValidator accepts a key as soon as one validator does.
type ChainValidator []APIKeyValidator

func (c ChainValidator) Validate(ctx context.Context, apiKey string) (Identity, bool) {
	for _, validator := range c {
		if validator == nil {
			continue
		}
		if identity, ok := validator.Validate(ctx, apiKey); ok {
			return identity, true
		}
	}
	return Identity{}, false
}

func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

func splitRoles(raw string) []string {
	roleParts := strings.Split(strings.TrimSpace(raw), "|")
	roles := make([]string, 0, len(roleParts))
	for _, role := range roleParts {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
