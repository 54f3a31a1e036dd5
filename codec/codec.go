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

package codec

import (
	"encoding/json"
	"fmt"

	"github.com/sage-x-project/onesync/errs"
)

// Message is implemented by every type in the message catalog.
type Message interface {
	command() Command
}

func (PersonInformation) command() Command   { return CmdPersonInformation }
func (InstanceIDObject) command() Command    { return CmdInstanceIDObject }
func (AuthenticationToken) command() Command { return CmdAuthenticationToken }
func (Identity) command() Command            { return CmdIdentity }
func (StartProtocol) command() Command       { return CmdStartProtocol }
func (AccessGroupMembers) command() Command  { return CmdAccessGroupMembers }
func (Success) command() Command             { return CmdSuccess }
func (PersonObject) command() Command        { return CmdPersonObject }

// Encode marshals msg to its on-wire JSON text frame form.
func Encode(msg Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s: %w", msg.command(), err)
	}
	return b, nil
}

type envelope struct {
	Command Command `json:"command"`
}

// PeekCommand returns the command field of a JSON text frame without fully
// decoding it.
func PeekCommand(data []byte) (Command, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ProtocolViolation, err)
	}
	if e.Command == "" {
		return "", fmt.Errorf("%w: missing command field", errs.ProtocolViolation)
	}
	return e.Command, nil
}

// Decode fully decodes a JSON text frame into its concrete message type,
// returned as the empty interface holding a PersonInformation,
// InstanceIDObject, AuthenticationToken, Identity, StartProtocol,
// AccessGroupMembers, Success, or PersonObject value. An unrecognized
// command is a ProtocolViolation.
func Decode(data []byte) (Message, error) {
	cmd, err := PeekCommand(data)
	if err != nil {
		return nil, err
	}

	var msg Message
	switch cmd {
	case CmdPersonInformation:
		var m PersonInformation
		err = json.Unmarshal(data, &m)
		msg = m
	case CmdInstanceIDObject:
		var m InstanceIDObject
		err = json.Unmarshal(data, &m)
		msg = m
	case CmdAuthenticationToken:
		var m AuthenticationToken
		err = json.Unmarshal(data, &m)
		msg = m
	case CmdIdentity:
		var m Identity
		err = json.Unmarshal(data, &m)
		msg = m
	case CmdStartProtocol:
		var m StartProtocol
		err = json.Unmarshal(data, &m)
		msg = m
	case CmdAccessGroupMembers:
		var m AccessGroupMembers
		err = json.Unmarshal(data, &m)
		msg = m
	case CmdSuccess:
		var m Success
		err = json.Unmarshal(data, &m)
		msg = m
	case CmdPersonObject:
		var m PersonObject
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: unrecognized command %q", errs.ProtocolViolation, cmd)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", errs.ProtocolViolation, cmd, err)
	}
	return msg, nil
}
