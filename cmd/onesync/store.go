// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"

	"github.com/sage-x-project/onesync/config"
	"github.com/sage-x-project/onesync/store"
	"github.com/sage-x-project/onesync/store/memory"
	"github.com/sage-x-project/onesync/store/postgres"
)

// openStore builds the store.Store backend cfg names. "memory" (the
// default) keeps every object only for the life of this process, which is
// enough for a single `post`/`trust` invocation against a `serve` running
// in the same process but loses everything between separate CLI
// invocations; "postgres" is what makes repeated `post`/`trust` calls
// across process restarts see the same channels.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.New(), nil
	case "postgres":
		return postgres.NewStore(ctx, &postgres.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Database,
			SSLMode:  cfg.SSLMode,
		})
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}
