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

// Package codec encodes and decodes the protocol message catalog (§6):
// JSON objects tagged by a `command` field, exchanged over an already
// encrypted Connection.
package codec

// Command discriminates the message catalog.
type Command string

const (
	CmdPersonInformation   Command = "person_information"
	CmdInstanceIDObject    Command = "instance_id_object"
	CmdAuthenticationToken Command = "authentication_token"
	CmdIdentity            Command = "identity"
	CmdStartProtocol       Command = "start_protocol"
	CmdAccessGroupMembers  Command = "access_group_members"
	CmdSuccess             Command = "success"
	CmdPersonObject        Command = "person_object"
)

// PersonInformation is exchanged both directions during the
// verify_and_exchange_person_id preamble (§4.3 step 1).
type PersonInformation struct {
	Command         Command `json:"command"`
	PersonID        string  `json:"personId"`
	PersonPublicKey string  `json:"personPublicKey"` // hex
}

// NewPersonInformation builds a PersonInformation message.
func NewPersonInformation(personID, personPublicKeyHex string) PersonInformation {
	return PersonInformation{Command: CmdPersonInformation, PersonID: personID, PersonPublicKey: personPublicKeyHex}
}

// InstanceObject is the wire form of an Instance reference, embedded in
// InstanceIDObject.
type InstanceObject struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Owner string `json:"owner"` // hex person id
}

// InstanceIDObject is exchanged both directions during instance-id exchange
// (§4.3).
type InstanceIDObject struct {
	Command Command        `json:"command"`
	Obj     InstanceObject `json:"obj"`
}

// NewInstanceIDObject builds an InstanceIDObject message.
func NewInstanceIDObject(name, ownerHex string) InstanceIDObject {
	return InstanceIDObject{
		Command: CmdInstanceIDObject,
		Obj:     InstanceObject{Type: "Instance", Name: name, Owner: ownerHex},
	}
}

// AuthenticationToken is sent client to server during the pairing protocol
// (§4.3 "pairing" step 2).
type AuthenticationToken struct {
	Command Command `json:"command"`
	Token   string  `json:"token"`
}

// NewAuthenticationToken builds an AuthenticationToken message.
func NewAuthenticationToken(token string) AuthenticationToken {
	return AuthenticationToken{Command: CmdAuthenticationToken, Token: token}
}

// IdentityEndpoint is the wire form of one CommunicationEndpoint.
type IdentityEndpoint struct {
	Type          string `json:"type"`
	URL           string `json:"url"`
	PublicKey     string `json:"publicKey"`
	PublicSignKey string `json:"publicSignKey"`
}

// IdentityDescription is the wire form of one PersonDescription.
type IdentityDescription struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// IdentityObject is the serialized profile form exchanged during pairing
// (§4.3 "pairing" step 4).
type IdentityObject struct {
	PersonID               string                `json:"personId"`
	CommunicationEndpoints []IdentityEndpoint    `json:"communicationEndpoints"`
	PersonDescriptions     []IdentityDescription `json:"personDescriptions"`
}

// Identity carries an IdentityObject in both directions of the pairing
// protocol.
type Identity struct {
	Command Command        `json:"command"`
	Obj     IdentityObject `json:"obj"`
}

// NewIdentity builds an Identity message.
func NewIdentity(obj IdentityObject) Identity {
	return Identity{Command: CmdIdentity, Obj: obj}
}

// StartProtocol is sent by the initiator to select a protocol (§4.3
// "Protocol selection").
type StartProtocol struct {
	Command  Command `json:"command"`
	Protocol string  `json:"protocol"`
	Version  int     `json:"version"`
}

// Protocol names recognized by StartProtocol.Protocol.
const (
	ProtocolChum        = "chum"
	ProtocolChumOneTime = "chum_one_time"
	ProtocolPairing     = "pairing"
	ProtocolAccessGroup = "accessGroup_set"
)

// ProtocolCurrentVers is the wire version NewStartProtocol stamps on
// outgoing messages.
const ProtocolCurrentVers = 1

// NewStartProtocol builds a StartProtocol message at the current wire
// version.
func NewStartProtocol(protocol string) StartProtocol {
	return StartProtocol{Command: CmdStartProtocol, Protocol: protocol, Version: ProtocolCurrentVers}
}

// AccessGroupMembers is sent client to server for the accessGroup_set
// protocol (§4.3).
type AccessGroupMembers struct {
	Command Command  `json:"command"`
	Persons []string `json:"persons"` // emails
}

// NewAccessGroupMembers builds an AccessGroupMembers message.
func NewAccessGroupMembers(emails []string) AccessGroupMembers {
	return AccessGroupMembers{Command: CmdAccessGroupMembers, Persons: emails}
}

// Success is sent server to client to acknowledge a protocol that needs no
// further payload.
type Success struct {
	Command Command `json:"command"`
}

// NewSuccess builds a Success message.
func NewSuccess() Success { return Success{Command: CmdSuccess} }

// PersonObjectPayload is the wire form of a bare Person reference, used only
// by the legacy chum_one_time pairing variant (§9 Open Questions).
type PersonObjectPayload struct {
	Type  string `json:"type"`
	Email string `json:"email"`
}

// PersonObject carries a PersonObjectPayload in both directions of the
// legacy pairing variant.
type PersonObject struct {
	Command Command             `json:"command"`
	Obj     PersonObjectPayload `json:"obj"`
}

// NewPersonObject builds a PersonObject message.
func NewPersonObject(email string) PersonObject {
	return PersonObject{Command: CmdPersonObject, Obj: PersonObjectPayload{Type: "Person", Email: email}}
}
