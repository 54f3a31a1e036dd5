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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/onesync/channel"
)

var (
	postChannelID string
	postFile      string
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Create (if needed) a channel and append data to it",
	RunE:  runPost,
}

func init() {
	rootCmd.AddCommand(postCmd)
	postCmd.Flags().StringVar(&postChannelID, "channel", "", "channel id to post to (required)")
	postCmd.Flags().StringVar(&postFile, "file", "", "file to post; defaults to stdin")
	postCmd.MarkFlagRequired("channel")
}

// runPost opens this instance's own store connection, replays the channel
// registry so CreateChannel/PostToChannel see any channels other
// processes sharing the same postgres backend have already created
// (channel.Manager.LoadRegistry), then performs one post_to_channel call
// (§4.4). Against the in-memory store backend this only observes
// channels created earlier in the same process, since memory.Store isn't
// shared across CLI invocations.
func runPost(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

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

	mgr := channel.NewManager(st, 0)
	if err := mgr.LoadRegistry(ctx); err != nil {
		return fmt.Errorf("load channel registry: %w", err)
	}

	if _, err := mgr.CreateChannel(ctx, postChannelID, id.PersonID); err != nil {
		return fmt.Errorf("create channel %q: %w", postChannelID, err)
	}

	data, err := readPostData(postFile)
	if err != nil {
		return err
	}

	if err := mgr.PostToChannel(ctx, postChannelID, id.PersonID, data, nil); err != nil {
		return fmt.Errorf("post to channel %q: %w", postChannelID, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "posted %d bytes to channel %q\n", len(data), postChannelID)
	return nil
}

func readPostData(path string) ([]byte, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
