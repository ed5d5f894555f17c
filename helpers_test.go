package authgate

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fieldsense/authgate/ratelimit"
	"github.com/fieldsense/authgate/rbac"
)

var (
	testJWTSecret  = []byte("jwt-secret-0123456789abcdef012345")
	testCSRFSecret = []byte("csrf-secret-0123456789abcdef01234")
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testJWTSecret
	cfg.CSRF.Secret = testCSRFSecret
	cfg.Audit.Enabled = false
	cfg.RateLimit.Tiers = map[ratelimit.Tier]ratelimit.Limits{
		ratelimit.TierFree:     {PerMinute: 5, PerHour: 100, Burst: 0},
		ratelimit.TierStandard: {PerMinute: 60, PerHour: 1500, Burst: 15},
	}
	cfg.APIKeys = []string{"svc-key-1"}
	return cfg
}

func testPermissions() []rbac.Permission {
	return []rbac.Permission{
		{Resource: "fields", Action: "read"},
		{Resource: "fields", Action: "write"},
		{Resource: "reports", Action: "read"},
		{Resource: "reports", Action: "export"},
	}
}

func testRoles() map[string]RoleSpec {
	return map[string]RoleSpec{
		"viewer": {Permissions: []rbac.Permission{
			{Resource: "fields", Action: "read"},
			{Resource: "reports", Action: "read"},
		}},
		"field_operator": {
			Permissions: []rbac.Permission{{Resource: "fields", Action: "write"}},
			Parents:     []string{"viewer"},
		},
		"farm_manager": {
			Permissions: []rbac.Permission{{Resource: "reports", Action: "export"}},
			Parents:     []string{"field_operator"},
		},
	}
}

func buildTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithPermissions(testPermissions()).
		WithRoles(testRoles()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr
}
