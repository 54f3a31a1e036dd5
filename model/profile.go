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

package model

// CommunicationEndpoint describes a way to reach a person's instance (the
// glossary's "Endpoint"). It is a plain content-addressed object; a Profile
// only ever references it by hash.
type CommunicationEndpoint struct {
	Type          string `json:"type"` // e.g. "OneInstanceEndpoint"
	InstanceID    Hash   `json:"instanceId"`
	URL           string `json:"url"`
	PublicKey     string `json:"publicKey"`     // hex
	PublicSignKey string `json:"publicSignKey"` // hex
}

// Hash returns this endpoint's content hash.
func (e CommunicationEndpoint) Hash() Hash { return MustHashOf(e) }

// PersonDescription is a single observation about a person (e.g. a display
// name or a photo hash), again referenced from a Profile only by hash.
type PersonDescription struct {
	Type  string `json:"type"` // e.g. "PersonName", "PersonImage"
	Value string `json:"value"`
}

// Hash returns this description's content hash.
func (d PersonDescription) Hash() Hash { return MustHashOf(d) }

// Profile is a bag of endpoints/descriptions about one person (PersonID), as
// written by one observer (Owner), under one label (ProfileID). §3 requires
// every endpoint/description hash to be referenced at most once: enforced by
// the merge helpers below, not by this type itself.
type Profile struct {
	PersonID               Hash   `json:"personId"`
	Owner                  Hash   `json:"owner"`
	ProfileID              string `json:"profileId"`
	CommunicationEndpoints []Hash `json:"communicationEndpoints"`
	PersonDescriptions     []Hash `json:"personDescriptions"`
}

func (p Profile) IDFields() interface{} {
	return struct {
		PersonID  Hash   `json:"personId"`
		Owner     Hash   `json:"owner"`
		ProfileID string `json:"profileId"`
	}{p.PersonID, p.Owner, p.ProfileID}
}

// ID returns the id hash of the profile.
func (p Profile) ID() Hash { return IDHashOf(p) }

// MergeBag returns a copy of p with endpoints and descriptions from other
// unioned in, each hash kept at most once — the "last-writer-plus-set-union"
// semantics called for by §9 for Profile/Someone/Leute CRDT bags.
func (p Profile) MergeBag(other Profile) Profile {
	merged := p
	merged.CommunicationEndpoints = unionHashes(p.CommunicationEndpoints, other.CommunicationEndpoints)
	merged.PersonDescriptions = unionHashes(p.PersonDescriptions, other.PersonDescriptions)
	return merged
}

func unionHashes(a, b []Hash) []Hash {
	seen := make(map[Hash]struct{}, len(a)+len(b))
	out := make([]Hash, 0, len(a)+len(b))
	for _, h := range a {
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	for _, h := range b {
		if _, ok := seen[h]; !ok {
			seen[h] = struct{}{}
			out = append(out, h)
		}
	}
	return out
}

// Identity links one Person to every Profile the local user's Someone has
// observed for that person.
type Identity struct {
	Person   Hash   `json:"person"`
	Profiles []Hash `json:"profiles"`
}

// Someone is a container joining multiple person identities believed to be
// the same real person.
type Someone struct {
	SomeoneID   string     `json:"someoneId"`
	MainProfile Hash       `json:"mainProfile"`
	Identities  []Identity `json:"identity"`
}

func (s Someone) IDFields() interface{} {
	return struct {
		SomeoneID string `json:"someoneId"`
	}{s.SomeoneID}
}

func (s Someone) ID() Hash { return IDHashOf(s) }

// MergeBag unions the identity/profile bags of two Someone versions,
// preferring other's MainProfile when it is set — the one scalar field the
// source system allows callers to replace outright (§9).
func (s Someone) MergeBag(other Someone) Someone {
	merged := s
	if !other.MainProfile.IsZero() {
		merged.MainProfile = other.MainProfile
	}
	byPerson := make(map[Hash]int, len(s.Identities))
	merged.Identities = append([]Identity(nil), s.Identities...)
	for i, id := range merged.Identities {
		byPerson[id.Person] = i
	}
	for _, id := range other.Identities {
		if i, ok := byPerson[id.Person]; ok {
			merged.Identities[i].Profiles = unionHashes(merged.Identities[i].Profiles, id.Profiles)
		} else {
			merged.Identities = append(merged.Identities, id)
			byPerson[id.Person] = len(merged.Identities) - 1
		}
	}
	return merged
}

// Group is a named set of persons, usable as an access-control target.
type Group struct {
	Name    string `json:"name"`
	Members []Hash `json:"members"` // Person id hashes
}

func (g Group) Hash() Hash { return MustHashOf(g) }

// leuteSingletonMarker is the constant id field of the one.leute root object:
// it is a singleton, so its id fields are a constant rather than derived state.
const leuteSingletonMarker = "one.leute"

// Leute is the top-level index of all known Someones and Groups for this
// installation; exactly one instance exists per store.
type Leute struct {
	Me     Hash   `json:"me"`     // Someone id hash
	Others []Hash `json:"other"`  // Someone id hashes
	Groups []Hash `json:"group"`  // Group hashes
}

func (l Leute) IDFields() interface{} { return leuteSingletonMarker }

func (l Leute) ID() Hash { return IDHashOf(l) }

// MergeBag unions Leute's Others/Groups bags, keeping Me from other when set.
func (l Leute) MergeBag(other Leute) Leute {
	merged := l
	if !other.Me.IsZero() {
		merged.Me = other.Me
	}
	merged.Others = unionHashes(l.Others, other.Others)
	merged.Groups = unionHashes(l.Groups, other.Groups)
	return merged
}
