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
	"os"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/onesync/pkg/version"
)

var (
	configDir    string
	environment  string
	identityPath string
)

var rootCmd = &cobra.Command{
	Use:     "onesync",
	Short:   "onesync - peer-to-peer content-addressed data sync runtime",
	Version: version.String(),
	Long: `onesync runs and drives the pairing/auth protocol, connection route
manager, and channel manager that make up one instance's side of the
content-addressed object-sync network.

This tool supports:
- Running an instance that accepts and maintains peer connections (serve)
- Issuing a one-time pairing invitation for a new peer (invite)
- Posting application data to a channel (post)
- Reporting how trusted a signing key is (trust)`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory to load environment config files from")
	rootCmd.PersistentFlags().StringVar(&environment, "env", "", "environment to load (defaults to ONESYNC_ENV or development)")
	rootCmd.PersistentFlags().StringVar(&identityPath, "identity", "identity.json", "path to this instance's persisted key pair")

	// Note: commands are registered in their respective files:
	// - serve.go: serveCmd
	// - invite.go: inviteCmd
	// - post.go: postCmd
	// - trust.go: trustCmd
}
