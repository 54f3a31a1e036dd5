// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"fmt"
	"time"
)

// ConnectionsConfig holds the route manager's connection-acceptance and
// pairing policy (§6 "Connections").
type ConnectionsConfig struct {
	CommServerURL                string        `yaml:"comm_server_url" json:"comm_server_url"`
	AcceptIncomingConnections    bool          `yaml:"accept_incoming_connections" json:"accept_incoming_connections"`
	AcceptUnknownInstances       bool          `yaml:"accept_unknown_instances" json:"accept_unknown_instances"`
	AcceptUnknownPersons         bool          `yaml:"accept_unknown_persons" json:"accept_unknown_persons"`
	AllowPairing                 bool          `yaml:"allow_pairing" json:"allow_pairing"`
	PairingTokenTTL              time.Duration `yaml:"pairing_token_ttl" json:"pairing_token_ttl"`
	AllowSetAuthGroup            bool          `yaml:"allow_set_auth_group" json:"allow_set_auth_group"`
	EstablishOutgoingConnections bool          `yaml:"establish_outgoing_connections" json:"establish_outgoing_connections"`
	ReconnectDelay               time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
}

// ChannelManagerConfig holds channel.Manager's externally configurable
// policy (§6 "Channel Manager").
type ChannelManagerConfig struct {
	// DefaultOwner is the hex-encoded Person id hash posts are attributed
	// to when a caller doesn't name one explicitly. Falls back to the
	// instance owner when empty.
	DefaultOwner string `yaml:"default_owner" json:"default_owner"`
}

// defaultConnectionsConfig returns §6's documented defaults.
func defaultConnectionsConfig() ConnectionsConfig {
	return ConnectionsConfig{
		AllowPairing:                 true,
		PairingTokenTTL:              60 * time.Second,
		AllowSetAuthGroup:            false,
		EstablishOutgoingConnections: true,
		ReconnectDelay:               5 * time.Second,
	}
}

// Validate checks that the connection policy is internally consistent.
func (c *ConnectionsConfig) Validate() error {
	if c.AcceptIncomingConnections && c.CommServerURL == "" {
		return fmt.Errorf("comm_server_url is required when accept_incoming_connections is set")
	}
	if c.PairingTokenTTL < 0 {
		return fmt.Errorf("pairing_token_ttl cannot be negative")
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("reconnect_delay cannot be negative")
	}
	return nil
}
