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

package protocol

import (
	"context"
	"fmt"

	"github.com/sage-x-project/onesync/codec"
	"github.com/sage-x-project/onesync/conn"
	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/model"
)

// SessionOptions carries the protocol-specific inputs RunSession needs
// beyond the Connection itself: which protocol the initiator picks, and
// (for a pairing initiator) the invitation token it was handed out of
// band, e.g. by the `invite` CLI command.
type SessionOptions struct {
	Protocol     codec.StartProtocol
	PairingToken string
}

// RunSession drives protocol selection and dispatch (§4.3) on an
// already-handshaken Connection: the initiator sends start_protocol, the
// responder waits for it, then both sides run the selected protocol.
func (e *Engine) RunSession(ctx context.Context, c *conn.Connection, remotePersonID model.Hash, initiatedLocally bool, opts SessionOptions) error {
	var protocolName string
	if initiatedLocally {
		encoded, err := codec.Encode(opts.Protocol)
		if err != nil {
			return err
		}
		if err := c.SendText(ctx, encoded); err != nil {
			return err
		}
		protocolName = opts.Protocol.Protocol
	} else {
		wctx, cancel := context.WithTimeout(ctx, e.waitTimeoutOrDefault())
		msg, err := c.WaitForJSONWithCommand(wctx, codec.CmdStartProtocol)
		cancel()
		if err != nil {
			_ = c.Close(fmt.Sprintf("timeout waiting for %s", codec.CmdStartProtocol))
			return waitErr(codec.CmdStartProtocol, err)
		}
		protocolName = msg.(codec.StartProtocol).Protocol
	}

	return e.runProtocol(ctx, c, remotePersonID, protocolName, initiatedLocally, opts.PairingToken)
}

func (e *Engine) runProtocol(ctx context.Context, c *conn.Connection, remotePersonID model.Hash, protocolName string, initiatedLocally bool, pairingToken string) error {
	switch protocolName {
	case codec.ProtocolChum:
		return e.runChum(ctx, c, true)
	case codec.ProtocolChumOneTime:
		return e.runChum(ctx, c, false)
	case codec.ProtocolPairing:
		return e.runPairing(ctx, c, remotePersonID, initiatedLocally, pairingToken)
	case codec.ProtocolAccessGroup:
		return e.runAccessGroupSet(ctx, c, initiatedLocally)
	default:
		_ = c.Close("unknown protocol")
		return fmt.Errorf("%w: unknown protocol %q", errs.ProtocolViolation, protocolName)
	}
}

func (e *Engine) runChum(ctx context.Context, c *conn.Connection, keepRunning bool) error {
	if e.Chum == nil {
		return fmt.Errorf("protocol: no chum session configured")
	}
	return e.Chum.Run(ctx, c, keepRunning)
}

// runPairing implements §4.3's 7-step pairing protocol from the
// responder's perspective (receive token, validate, then exchange
// identities). The initiator mirrors it "with steps 3 and 4 swapped": it
// sends its token and exchanges identities without waiting on a
// validation step of its own, since only the invitation's issuer
// validates against the ActiveInvitation set.
func (e *Engine) runPairing(ctx context.Context, c *conn.Connection, remotePersonID model.Hash, initiatedLocally bool, pairingToken string) error {
	if initiatedLocally {
		encoded, err := codec.Encode(codec.NewAuthenticationToken(pairingToken))
		if err != nil {
			return err
		}
		if err := c.SendText(ctx, encoded); err != nil {
			return err
		}
		return e.exchangeIdentitiesAndFinish(ctx, c, remotePersonID)
	}

	token, err := e.waitAuthenticationToken(ctx, c)
	if err != nil {
		return err
	}
	if err := e.Invitations.Redeem(token, e.LocalPersonID); err != nil {
		_ = c.Close("Authentication token is not existing")
		return err
	}
	return e.exchangeIdentitiesAndFinish(ctx, c, remotePersonID)
}

func (e *Engine) waitAuthenticationToken(ctx context.Context, c *conn.Connection) (string, error) {
	wctx, cancel := context.WithTimeout(ctx, e.waitTimeoutOrDefault())
	defer cancel()
	msg, err := c.WaitForJSONWithCommand(wctx, codec.CmdAuthenticationToken)
	if err != nil {
		_ = c.Close(fmt.Sprintf("timeout waiting for %s", codec.CmdAuthenticationToken))
		return "", waitErr(codec.CmdAuthenticationToken, err)
	}
	return msg.(codec.AuthenticationToken).Token, nil
}

// exchangeIdentitiesAndFinish implements pairing steps 4-7: both sides
// send their identity object, the local side persists the peer's as a new
// Profile, pairingSuccess fires, and the connection closes.
func (e *Engine) exchangeIdentitiesAndFinish(ctx context.Context, c *conn.Connection, remotePersonID model.Hash) error {
	localIdentity, err := e.Directory.LocalIdentity(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	encoded, err := codec.Encode(codec.NewIdentity(localIdentity))
	if err != nil {
		return err
	}
	if err := c.SendText(ctx, encoded); err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, e.waitTimeoutOrDefault())
	defer cancel()
	msg, err := c.WaitForJSONWithCommand(wctx, codec.CmdIdentity)
	if err != nil {
		_ = c.Close(fmt.Sprintf("timeout waiting for %s", codec.CmdIdentity))
		return waitErr(codec.CmdIdentity, err)
	}
	remoteIdentity := msg.(codec.Identity).Obj

	if err := e.Directory.SaveIdentity(ctx, remoteIdentity); err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}

	e.onPairingSuccess.Emit(PairingSuccessEvent{PersonID: remotePersonID, Identity: remoteIdentity})
	return c.Close("pairing complete")
}

// runAccessGroupSet implements the accessGroup_set protocol: the
// initiator sends access_group_members, the responder materializes
// Person+Group objects and replies success.
func (e *Engine) runAccessGroupSet(ctx context.Context, c *conn.Connection, initiatedLocally bool) error {
	if !e.AllowSetAuthGroup {
		_ = c.Close("accessGroup_set not permitted")
		return fmt.Errorf("%w: accessGroup_set disabled", errs.AuthenticationFailed)
	}
	if initiatedLocally {
		return fmt.Errorf("protocol: accessGroup_set initiator role is not implemented by this instance")
	}

	wctx, cancel := context.WithTimeout(ctx, e.waitTimeoutOrDefault())
	defer cancel()
	msg, err := c.WaitForJSONWithCommand(wctx, codec.CmdAccessGroupMembers)
	if err != nil {
		_ = c.Close(fmt.Sprintf("timeout waiting for %s", codec.CmdAccessGroupMembers))
		return waitErr(codec.CmdAccessGroupMembers, err)
	}
	members := msg.(codec.AccessGroupMembers)

	if err := e.Directory.SaveAccessGroup(ctx, "", members.Persons); err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}

	encoded, err := codec.Encode(codec.NewSuccess())
	if err != nil {
		return err
	}
	return c.SendText(ctx, encoded)
}
