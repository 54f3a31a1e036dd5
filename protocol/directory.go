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

	"github.com/sage-x-project/onesync/codec"
	"github.com/sage-x-project/onesync/model"
)

// Directory is the narrow slice of object-store lookups the protocol
// engine needs: known endpoints for a person (to tell a new peer from a
// known one during verify_and_exchange_person_id), the bound remote
// instance per key pair, and the writes pairing/accessGroup_set perform.
// The Channel Manager's store sits behind this interface; protocol never
// touches store.Store directly so it stays agnostic of how objects are
// serialized.
type Directory interface {
	// EndpointsForPerson returns every communication endpoint known locally
	// for personID, or nil if the person has never been seen.
	EndpointsForPerson(ctx context.Context, personID model.Hash) ([]codec.IdentityEndpoint, error)

	// BoundInstance returns the instance id previously bound to the
	// (localKey, remoteKey) pair, if any.
	BoundInstance(ctx context.Context, localKey, remoteKey string) (model.Hash, bool, error)

	// BindInstance records instanceID as bound to (localKey, remoteKey).
	BindInstance(ctx context.Context, localKey, remoteKey string, instanceID model.Hash) error

	// SaveIdentity persists a peer's identity (learned during pairing) as a
	// new Profile.
	SaveIdentity(ctx context.Context, identity codec.IdentityObject) error

	// LocalIdentity returns this instance's own identity object, sent to a
	// newly paired peer.
	LocalIdentity(ctx context.Context) (codec.IdentityObject, error)

	// SaveAccessGroup materializes Person+Group objects for the given
	// member emails, used by accessGroup_set.
	SaveAccessGroup(ctx context.Context, groupName string, memberEmails []string) error
}
