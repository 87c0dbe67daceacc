package main

import (
	"fmt"

	"github.com/chronolab/chronovm/pkg/config"
	"github.com/chronolab/chronovm/pkg/governance/store"
	"github.com/chronolab/chronovm/pkg/governance/store/badger"
	"github.com/chronolab/chronovm/pkg/governance/store/memory"
	"github.com/chronolab/chronovm/pkg/governance/store/postgres"
)

// openStore selects and opens the governance persistence backend named by
// cfg.Backend.
func openStore(cfg config.GovernanceConfig) (store.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.New(), nil
	case "postgres":
		s, err := postgres.Open(postgres.Config{DSN: cfg.Postgres.DSN})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres governance store: %w", err)
		}
		return s, nil
	case "badger":
		s, err := badger.Open(cfg.Badger.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger governance store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown governance backend: %q", cfg.Backend)
	}
}
