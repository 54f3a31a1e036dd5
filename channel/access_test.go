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

package channel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/onesync/model"
)

type fakeAccessIndex struct {
	certs  map[model.Hash][]model.Certificate
	groups map[model.Hash]model.Group
}

func (f *fakeAccessIndex) CertificatesForSubject(ctx context.Context, subject model.Hash) ([]model.Certificate, error) {
	return f.certs[subject], nil
}

func (f *fakeAccessIndex) Group(ctx context.Context, groupHash model.Hash) (model.Group, error) {
	return f.groups[groupHash], nil
}

func TestSharedWithDirectPersons(t *testing.T) {
	channelID := model.Hash{1}
	alice := model.Person{Email: "alice@example.com"}.ID()
	bob := model.Person{Email: "bob@example.com"}.ID()

	idx := &fakeAccessIndex{
		certs: map[model.Hash][]model.Certificate{
			channelID: {
				{Type: model.CertAccess, Access: &model.AccessPayload{Object: channelID, Persons: []model.Hash{alice, bob}}},
			},
		},
	}

	got, err := SharedWith(context.Background(), idx, channelID)
	require.NoError(t, err)
	require.ElementsMatch(t, []model.Hash{alice, bob}, got)
}

func TestSharedWithExpandsGroupsAndDedupes(t *testing.T) {
	channelID := model.Hash{2}
	alice := model.Person{Email: "alice2@example.com"}.ID()
	bob := model.Person{Email: "bob2@example.com"}.ID()
	carol := model.Person{Email: "carol2@example.com"}.ID()

	group := model.Group{Name: "team", Members: []model.Hash{bob, carol}}
	groupHash := group.Hash()

	idx := &fakeAccessIndex{
		certs: map[model.Hash][]model.Certificate{
			channelID: {
				{Type: model.CertAccess, Access: &model.AccessPayload{Object: channelID, Persons: []model.Hash{alice}, Groups: []model.Hash{groupHash}}},
				{Type: model.CertAccessUnversioned, Access: &model.AccessPayload{Object: channelID, Persons: []model.Hash{bob}}},
			},
		},
		groups: map[model.Hash]model.Group{groupHash: group},
	}

	got, err := SharedWith(context.Background(), idx, channelID)
	require.NoError(t, err)
	require.ElementsMatch(t, []model.Hash{alice, bob, carol}, got)
}

func TestSharedWithIgnoresUnrelatedCertificateTypes(t *testing.T) {
	channelID := model.Hash{3}
	other := model.Person{Email: "other3@example.com"}.ID()

	idx := &fakeAccessIndex{
		certs: map[model.Hash][]model.Certificate{
			channelID: {
				{Type: model.CertRelation, Relation: &model.RelationPayload{Other: other, Kind: "friend"}},
			},
		},
	}

	got, err := SharedWith(context.Background(), idx, channelID)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSharedWithNoCertificates(t *testing.T) {
	idx := &fakeAccessIndex{}
	got, err := SharedWith(context.Background(), idx, model.Hash{9})
	require.NoError(t, err)
	require.Empty(t, got)
}
