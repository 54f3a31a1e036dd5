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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/onesync/crypto"
	"github.com/sage-x-project/onesync/internal/localdir"
	"github.com/sage-x-project/onesync/trust"
)

var trustAllIdentities bool

var trustCmd = &cobra.Command{
	Use:   "trust <sign-key-hex>",
	Short: "Report whether a signing key is trusted, and why",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrust,
}

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.Flags().BoolVar(&trustAllIdentities, "all-identities", false, "treat every locally complete sign key as a root key, not just the main identity's")
}

// runTrust rebuilds the resolver's caches from this instance's own store
// connection and answers one get_key_trust_info query (§4.5). Freshly
// built caches mean this reflects whatever certificates/profiles are
// already durably stored, not anything still pending in a running
// serve instance's in-memory state.
func runTrust(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	keyHex := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	id, err := loadOrCreateIdentity(identityPath, "local@onesync", "onesync-instance")
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	dir := localdir.New(st)
	if err := dir.LoadFromStore(ctx); err != nil {
		return fmt.Errorf("load directory: %w", err)
	}
	dir.AddSignKey(id.Sign.PublicHex())

	mode := trust.RootKeysMainIdentity
	if trustAllIdentities {
		mode = trust.RootKeysAll
	}

	resolver := trust.NewResolver(dir, dir, crypto.New(), mode)
	if err := resolver.RefreshCaches(ctx); err != nil {
		return fmt.Errorf("refresh trust caches: %w", err)
	}

	kt, err := resolver.GetKeyTrustInfo(ctx, keyHex, map[string]struct{}{})
	if err != nil {
		return fmt.Errorf("get key trust info: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "key:     %s\n", keyHex)
	fmt.Fprintf(cmd.OutOrStdout(), "trusted: %t\n", kt.Trusted)
	fmt.Fprintf(cmd.OutOrStdout(), "reason:  %s\n", kt.Reason)
	for _, src := range kt.Sources {
		fmt.Fprintf(cmd.OutOrStdout(), "  via issuer %s, certificate %s\n", src.Issuer.String(), src.CertificateType)
	}
	return nil
}
