// Package pgtest opens the PostgreSQL database used by integration tests.
package pgtest

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/custody/internal/infra"
	"github.com/congo-pay/custody/internal/ledger"
)

// EnvVar names the connection string integration tests run against.
const EnvVar = "TEST_DATABASE_URL"

// Open connects to the database named by EnvVar and applies the schema. The
// test is skipped when EnvVar is unset.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv(EnvVar)
	if url == "" {
		t.Skipf("%s not set", EnvVar)
	}
	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, url, 8)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := infra.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// Address returns a principal address unique to this run, so tests sharing a
// database never see each other's rows.
func Address(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Fund opens the custody account and credits address with amount from the
// card settlement account.
func Fund(t testing.TB, led ledger.Ledger, address string, amount int64) {
	t.Helper()
	ctx := context.Background()
	account := ledger.PrincipalAccount(address)
	for _, code := range []string{ledger.CustodyAccountCode, ledger.CardSettlementAccountCode, account} {
		if err := led.EnsureAccount(ctx, code); err != nil {
			t.Fatalf("ensure %s: %v", code, err)
		}
	}
	if _, err := led.Transfer(ctx, ledger.CardSettlementAccountCode, account, "test_fund", uuid.NewString(), amount); err != nil {
		t.Fatalf("fund %s: %v", address, err)
	}
}
