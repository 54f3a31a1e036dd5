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

// Package localdir is the store-backed directory every narrow collaborator
// interface in this module (trust.Directory, protocol.Directory,
// channel.AccessIndex, trust.Keychain) is defined against. The object
// model's store has no reverse index from a subject hash to the
// certificates naming it, nor from a person to its known endpoints — each
// interface's own doc comment says so — so one process keeps that index
// itself, the same way channel.Manager keeps its own merge cache rather
// than asking the store for one (§4.4, §4.5).
package localdir

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sage-x-project/onesync/codec"
	"github.com/sage-x-project/onesync/errs"
	"github.com/sage-x-project/onesync/model"
	"github.com/sage-x-project/onesync/store"
)

// Directory is the single local reverse-index and identity store backing
// every trust/protocol/channel collaborator interface for one onesync
// instance. All writes go through it so the in-memory index never drifts
// from what was actually persisted to st.
type Directory struct {
	st store.Store

	mu             sync.RWMutex
	leute          model.Leute
	someones       map[model.Hash]model.Someone
	profiles       map[model.Hash]model.Profile
	endpoints      map[model.Hash]model.CommunicationEndpoint
	groups         map[model.Hash]model.Group
	certsBySubject map[model.Hash][]model.Certificate
	boundInstances map[string]model.Hash
	signKeys       map[string]struct{} // hex-encoded public sign keys held locally

	localPersonID        model.Hash
	localIdentity        codec.IdentityObject
	endpointsByPersonKey map[string][]codec.IdentityEndpoint
	personByKey          map[string]model.Hash // routing key hex -> person id
}

// New returns an empty Directory backed by st. Callers populate it with
// SetLocalIdentity/AddSignKey/RecordCertificate etc. as objects are created
// or learned from peers.
func New(st store.Store) *Directory {
	return &Directory{
		st:                   st,
		someones:             make(map[model.Hash]model.Someone),
		profiles:             make(map[model.Hash]model.Profile),
		endpoints:            make(map[model.Hash]model.CommunicationEndpoint),
		groups:               make(map[model.Hash]model.Group),
		certsBySubject:       make(map[model.Hash][]model.Certificate),
		boundInstances:       make(map[string]model.Hash),
		signKeys:             make(map[string]struct{}),
		endpointsByPersonKey: make(map[string][]codec.IdentityEndpoint),
		personByKey:          make(map[string]model.Hash),
	}
}

// --- trust.Directory / protocol lookups shared in-memory state -----------

// Leute returns the singleton Leute root accumulated so far.
func (d *Directory) Leute(ctx context.Context) (model.Leute, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.leute, nil
}

// SetLeute replaces the in-memory Leute root and persists it as a new
// version, mirroring the write-through pattern PutIDVersion calls for.
func (d *Directory) SetLeute(ctx context.Context, l model.Leute) error {
	if _, _, err := store.PutIDVersion(ctx, d.st, l, l); err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	d.mu.Lock()
	d.leute = l
	d.mu.Unlock()
	return nil
}

// Someone resolves a Someone by its id hash.
func (d *Directory) Someone(ctx context.Context, someoneHash model.Hash) (model.Someone, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.someones[someoneHash]
	if !ok {
		return model.Someone{}, errs.ChannelNotFound
	}
	return s, nil
}

// AddSomeone persists s and records it in the index, keyed by s.ID().
func (d *Directory) AddSomeone(ctx context.Context, s model.Someone) error {
	if _, _, err := store.PutIDVersion(ctx, d.st, s, s); err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	d.mu.Lock()
	d.someones[s.ID()] = s
	d.mu.Unlock()
	return nil
}

// AllProfiles returns every Profile currently known to this instance.
func (d *Directory) AllProfiles(ctx context.Context) ([]model.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Profile, 0, len(d.profiles))
	for _, p := range d.profiles {
		out = append(out, p)
	}
	return out, nil
}

// AddProfile persists p and records it in the index, keyed by p.ID().
func (d *Directory) AddProfile(ctx context.Context, p model.Profile) error {
	if _, _, err := store.PutIDVersion(ctx, d.st, p, p); err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	d.mu.Lock()
	d.profiles[p.ID()] = p
	d.mu.Unlock()
	return nil
}

// Endpoint resolves a CommunicationEndpoint by its content hash.
func (d *Directory) Endpoint(ctx context.Context, hash model.Hash) (model.CommunicationEndpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.endpoints[hash]
	if !ok {
		return model.CommunicationEndpoint{}, errs.ChannelNotFound
	}
	return e, nil
}

// AddEndpoint persists e and records it under its content hash.
func (d *Directory) AddEndpoint(ctx context.Context, e model.CommunicationEndpoint) (model.Hash, error) {
	h, err := store.PutObject(ctx, d.st, e)
	if err != nil {
		return model.Hash{}, fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	d.mu.Lock()
	d.endpoints[h] = e
	d.mu.Unlock()
	return h, nil
}

// Group resolves a Group by its content hash.
func (d *Directory) Group(ctx context.Context, groupHash model.Hash) (model.Group, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[groupHash]
	if !ok {
		return model.Group{}, errs.ChannelNotFound
	}
	return g, nil
}

// AddGroup persists g and records it under its content hash.
func (d *Directory) AddGroup(ctx context.Context, g model.Group) (model.Hash, error) {
	h, err := store.PutObject(ctx, d.st, g)
	if err != nil {
		return model.Hash{}, fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	d.mu.Lock()
	d.groups[h] = g
	d.mu.Unlock()
	return h, nil
}

// CertificatesForSubject returns every certificate whose Subject() equals
// subject, satisfying both trust.Directory and channel.AccessIndex.
func (d *Directory) CertificatesForSubject(ctx context.Context, subject model.Hash) ([]model.Certificate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]model.Certificate(nil), d.certsBySubject[subject]...), nil
}

// RecordCertificate persists cert and indexes it under cert.Subject().
func (d *Directory) RecordCertificate(ctx context.Context, cert model.Certificate) (model.Hash, error) {
	h, err := store.PutObject(ctx, d.st, cert)
	if err != nil {
		return model.Hash{}, fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	subject := cert.Subject()
	d.mu.Lock()
	d.certsBySubject[subject] = append(d.certsBySubject[subject], cert)
	d.mu.Unlock()
	return h, nil
}

// --- trust.Keychain --------------------------------------------------------

// AddSignKey records pubKeyHex as a locally-held (private half present)
// signing key.
func (d *Directory) AddSignKey(pubKeyHex string) {
	d.mu.Lock()
	d.signKeys[pubKeyHex] = struct{}{}
	d.mu.Unlock()
}

// CompleteSignKeys returns the hex-encoded public sign keys this instance
// holds the private half of.
func (d *Directory) CompleteSignKeys(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.signKeys))
	for k := range d.signKeys {
		out = append(out, k)
	}
	return out, nil
}

// --- protocol.Directory ----------------------------------------------------

// SetLocalIdentity fixes the identity this instance presents to peers
// during pairing.
func (d *Directory) SetLocalIdentity(personID model.Hash, obj codec.IdentityObject) {
	d.mu.Lock()
	d.localPersonID = personID
	d.localIdentity = obj
	d.mu.Unlock()
}

// LocalIdentity returns this instance's own identity object.
func (d *Directory) LocalIdentity(ctx context.Context) (codec.IdentityObject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.localIdentity, nil
}

// EndpointsForPerson returns every communication endpoint known locally for
// personID, or nil if the person has never been seen.
func (d *Directory) EndpointsForPerson(ctx context.Context, personID model.Hash) ([]codec.IdentityEndpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.endpointsByPersonKey[personID.String()], nil
}

// SaveIdentity persists a peer's identity (learned during pairing) as a new
// Profile and records its endpoints against the peer's person id.
func (d *Directory) SaveIdentity(ctx context.Context, identity codec.IdentityObject) error {
	var personID model.Hash
	if err := (&personID).UnmarshalText([]byte(identity.PersonID)); err != nil {
		return fmt.Errorf("%w: bad personId: %v", errs.ProtocolViolation, err)
	}

	endpointHashes := make([]model.Hash, 0, len(identity.CommunicationEndpoints))
	for _, ep := range identity.CommunicationEndpoints {
		h, err := d.AddEndpoint(ctx, model.CommunicationEndpoint{
			Type:          ep.Type,
			URL:           ep.URL,
			PublicKey:     ep.PublicKey,
			PublicSignKey: ep.PublicSignKey,
		})
		if err != nil {
			return err
		}
		endpointHashes = append(endpointHashes, h)
	}

	profile := model.Profile{
		PersonID:               personID,
		Owner:                  personID,
		ProfileID:              "default",
		CommunicationEndpoints: endpointHashes,
	}
	if err := d.AddProfile(ctx, profile); err != nil {
		return err
	}

	d.mu.Lock()
	d.endpointsByPersonKey[personID.String()] = append(
		d.endpointsByPersonKey[personID.String()], identity.CommunicationEndpoints...)
	for _, ep := range identity.CommunicationEndpoints {
		if ep.PublicKey != "" {
			d.personByKey[ep.PublicKey] = personID
		}
	}
	d.mu.Unlock()
	return nil
}

// PersonForKey resolves the person id that presented routingKey (its
// encryption public key hex) during a prior pairing, for callers such as
// a route.Manager connection-event handler that only ever sees a routing
// key and needs the person id RunSession requires.
func (d *Directory) PersonForKey(routingKey string) (model.Hash, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.personByKey[routingKey]
	return h, ok
}

// BoundInstance returns the instance id previously bound to the
// (localKey, remoteKey) pair, if any.
func (d *Directory) BoundInstance(ctx context.Context, localKey, remoteKey string) (model.Hash, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.boundInstances[localKey+"|"+remoteKey]
	return h, ok, nil
}

// BindInstance records instanceID as bound to (localKey, remoteKey).
func (d *Directory) BindInstance(ctx context.Context, localKey, remoteKey string, instanceID model.Hash) error {
	d.mu.Lock()
	d.boundInstances[localKey+"|"+remoteKey] = instanceID
	d.mu.Unlock()
	return nil
}

// SaveAccessGroup materializes a Group object for the given member emails,
// used by accessGroup_set.
func (d *Directory) SaveAccessGroup(ctx context.Context, groupName string, memberEmails []string) error {
	members := make([]model.Hash, 0, len(memberEmails))
	for _, email := range memberEmails {
		members = append(members, model.Person{Email: email}.ID())
	}
	_, err := d.AddGroup(ctx, model.Group{Name: groupName, Members: members})
	return err
}

// LoadFromStore rebuilds the Leute root from the store's persisted head, if
// one exists. Profiles/Someones/certificates/groups discovered only via
// content hashes referenced from Leute are resolved lazily as callers ask
// for them, since the store has no "list all objects" primitive (§"store").
func (d *Directory) LoadFromStore(ctx context.Context) error {
	idHash := model.Leute{}.ID()
	head, err := d.st.Head(ctx, idHash)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	b, err := d.st.Get(ctx, head)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.StoreError, err)
	}
	var l model.Leute
	if err := json.Unmarshal(b, &l); err != nil {
		return fmt.Errorf("%w: decode leute: %v", errs.MergeInconsistency, err)
	}
	d.mu.Lock()
	d.leute = l
	d.mu.Unlock()
	return nil
}
