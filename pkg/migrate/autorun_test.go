package migrate_test

import (
	"context"
	"io"
	"testing"

	"github.com/lumenfolio/portal-backend/pkg/config"
	"github.com/lumenfolio/portal-backend/pkg/logger"
	"github.com/lumenfolio/portal-backend/pkg/migrate"
)

func TestMaybeRunDev_SkipsOutsideDev(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	cases := []struct {
		name        string
		env         string
		autoMigrate bool
	}{
		{"production env", "production", true},
		{"flag disabled", "dev", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.App.Env = tc.env
			cfg.Flags.AutoMigrate = tc.autoMigrate

			// A nil client proves the guard returns before touching the database.
			if err := migrate.MaybeRunDev(context.Background(), cfg, logg, nil); err != nil {
				t.Fatalf("expected no-op, got %v", err)
			}
		})
	}
}
