// Command tenantctl runs audited maintenance against the tenant database.
// It connects with the maintenance role, which bypasses row-level security,
// so every mutating command requires --reason.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenant-isolation-service/internal/store"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		if store.IsAdminNotFound(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
