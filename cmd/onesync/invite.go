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
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var inviteAdminAddr string

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Issue a one-time pairing invitation token from a running serve instance",
	RunE:  runInvite,
}

func init() {
	rootCmd.AddCommand(inviteCmd)
	inviteCmd.Flags().StringVar(&inviteAdminAddr, "admin-addr", "127.0.0.1:8181", "admin address of the running serve instance to request the invitation from")
}

// runInvite is a thin HTTP client against serve's /invite admin endpoint
// (cmd/onesync/serve.go's startAdminServer): Invitations.Issue tracks
// pending tokens in memory, so only the process that actually holds that
// map can issue one (see the package-level Invitations doc comment).
func runInvite(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("http://%s/invite", inviteAdminAddr)
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("request invitation from %s: %w", inviteAdminAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("serve instance at %s returned %s", inviteAdminAddr, resp.Status)
	}

	var out struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode invitation response: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "token:      %s\n", out.Token)
	fmt.Fprintf(cmd.OutOrStdout(), "expires at: %s\n", out.ExpiresAt)
	if exp, err := time.Parse(time.RFC3339, out.ExpiresAt); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "expires in: %s\n", time.Until(exp).Round(time.Second))
	}
	return nil
}
