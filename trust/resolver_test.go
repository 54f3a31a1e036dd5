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

package trust

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/onesync/crypto"
	"github.com/sage-x-project/onesync/model"
)

type fakeDirectory struct {
	leute          model.Leute
	someones       map[model.Hash]model.Someone
	profiles       []model.Profile
	endpoints      map[model.Hash]model.CommunicationEndpoint
	certsBySubject map[model.Hash][]model.Certificate
}

func (f *fakeDirectory) Leute(ctx context.Context) (model.Leute, error) { return f.leute, nil }

func (f *fakeDirectory) Someone(ctx context.Context, h model.Hash) (model.Someone, error) {
	return f.someones[h], nil
}

func (f *fakeDirectory) AllProfiles(ctx context.Context) ([]model.Profile, error) {
	return f.profiles, nil
}

func (f *fakeDirectory) Endpoint(ctx context.Context, h model.Hash) (model.CommunicationEndpoint, error) {
	return f.endpoints[h], nil
}

func (f *fakeDirectory) CertificatesForSubject(ctx context.Context, subject model.Hash) ([]model.Certificate, error) {
	return f.certsBySubject[subject], nil
}

type fakeKeychain struct{ complete []string }

func (f *fakeKeychain) CompleteSignKeys(ctx context.Context) ([]string, error) { return f.complete, nil }

// trustFixture builds the §4.5 scenario 3 ("Trust inheritance") graph: root
// key R's person signs itself a self-declare right and signs Q an
// everybody-declare right; Q's key KQ is trusted transitively via an
// affirmation R signs on Q's profile; Q then vouches for key KX (found on
// profile PX) via a TrustKeysCertificate.
type trustFixture struct {
	dir      *fakeDirectory
	keychain *fakeKeychain
	api      crypto.API

	rHex, qHex, kxHex string
	pxID              model.Hash
	rightEverybody    model.Certificate
}

func buildTrustFixture(t *testing.T) trustFixture {
	t.Helper()
	api := crypto.New()

	rPerson := model.Person{Email: "root@example.com"}.ID()
	qPerson := model.Person{Email: "q@example.com"}.ID()
	xPerson := model.Person{Email: "x@example.com"}.ID()

	rSK, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)
	qSK, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)
	kxSK, err := crypto.GenerateSignKeyPair()
	require.NoError(t, err)

	rHex := rSK.PublicHex()
	qHex := qSK.PublicHex()
	kxHex := kxSK.PublicHex()

	epR := model.CommunicationEndpoint{Type: "OneInstanceEndpoint", PublicSignKey: rHex}
	epQ := model.CommunicationEndpoint{Type: "OneInstanceEndpoint", PublicSignKey: qHex}
	epX := model.CommunicationEndpoint{Type: "OneInstanceEndpoint", PublicSignKey: kxHex}

	pR := model.Profile{PersonID: rPerson, Owner: rPerson, ProfileID: "main", CommunicationEndpoints: []model.Hash{epR.Hash()}}
	pQ := model.Profile{PersonID: qPerson, Owner: qPerson, ProfileID: "main", CommunicationEndpoints: []model.Hash{epQ.Hash()}}
	pX := model.Profile{PersonID: xPerson, Owner: xPerson, ProfileID: "main", CommunicationEndpoints: []model.Hash{epX.Hash()}}

	sign := func(sk *crypto.SignKeyPair, issuer model.Hash, data []byte) model.Signature {
		sigBytes, err := api.Sign(data, sk.Private)
		require.NoError(t, err)
		return model.Signature{Issuer: issuer, Data: hex.EncodeToString(data), SignatureHex: hex.EncodeToString(sigBytes)}
	}

	rightSelfR := model.Certificate{
		Type:      model.CertRightForSelf,
		Signature: sign(rSK, rPerson, []byte("right-self-R")),
		Right:     &model.RightPayload{Person: rPerson},
	}
	rightEverybodyQ := model.Certificate{
		Type:      model.CertRightForEverybody,
		Signature: sign(rSK, rPerson, []byte("right-everybody-Q")),
		Right:     &model.RightPayload{Person: qPerson},
	}
	affirmPQ := model.Certificate{
		Type:      model.CertAffirmation,
		Signature: sign(rSK, rPerson, []byte("affirm-PQ")),
		Affirmation: &model.AffirmationPayload{
			Data: pQ.ID(),
		},
	}
	trustKeysPX := model.Certificate{
		Type:      model.CertTrustKeys,
		Signature: sign(qSK, qPerson, []byte("trust-keys-PX")),
		TrustKeys: &model.TrustKeysPayload{Profile: pX.ID()},
	}

	someoneR := model.Hash{1}
	dir := &fakeDirectory{
		leute: model.Leute{Me: someoneR},
		someones: map[model.Hash]model.Someone{
			someoneR: {SomeoneID: "me", Identities: []model.Identity{{Person: rPerson, Profiles: []model.Hash{pR.ID()}}}},
		},
		profiles: []model.Profile{pR, pQ, pX},
		endpoints: map[model.Hash]model.CommunicationEndpoint{
			epR.Hash(): epR,
			epQ.Hash(): epQ,
			epX.Hash(): epX,
		},
		certsBySubject: map[model.Hash][]model.Certificate{
			rPerson:  {rightSelfR},
			qPerson:  {rightEverybodyQ},
			pQ.ID():  {affirmPQ},
			pX.ID():  {trustKeysPX},
		},
	}

	return trustFixture{
		dir:            dir,
		keychain:       &fakeKeychain{complete: []string{rHex}},
		api:            api,
		rHex:           rHex,
		qHex:           qHex,
		kxHex:          kxHex,
		pxID:           pX.ID(),
		rightEverybody: rightEverybodyQ,
	}
}

func TestGetKeyTrustInfoInheritsThroughCertificateChain(t *testing.T) {
	fx := buildTrustFixture(t)
	r := NewResolver(fx.dir, fx.keychain, fx.api, RootKeysMainIdentity)
	require.NoError(t, r.RefreshCaches(context.Background()))

	kt, err := r.GetKeyTrustInfo(context.Background(), fx.kxHex, nil)
	require.NoError(t, err)
	require.True(t, kt.Trusted)
	require.Len(t, kt.Sources, 1)
	require.Equal(t, model.CertTrustKeys, kt.Sources[0].CertificateType)
	require.True(t, kt.Sources[0].KeyTrustInfo.Trusted)
}

func TestGetKeyTrustInfoRevokedAfterRightCertificateRemoved(t *testing.T) {
	fx := buildTrustFixture(t)
	r := NewResolver(fx.dir, fx.keychain, fx.api, RootKeysMainIdentity)
	require.NoError(t, r.RefreshCaches(context.Background()))

	kt, err := r.GetKeyTrustInfo(context.Background(), fx.kxHex, nil)
	require.NoError(t, err)
	require.True(t, kt.Trusted)

	qPerson := model.Person{Email: "q@example.com"}.ID()
	delete(fx.dir.certsBySubject, qPerson)

	require.NoError(t, r.RefreshCaches(context.Background()))
	kt2, err := r.GetKeyTrustInfo(context.Background(), fx.kxHex, nil)
	require.NoError(t, err)
	require.False(t, kt2.Trusted)
}

func TestGetKeyTrustInfoUnknownKey(t *testing.T) {
	fx := buildTrustFixture(t)
	r := NewResolver(fx.dir, fx.keychain, fx.api, RootKeysMainIdentity)
	require.NoError(t, r.RefreshCaches(context.Background()))

	kt, err := r.GetKeyTrustInfo(context.Background(), "deadbeef", nil)
	require.NoError(t, err)
	require.False(t, kt.Trusted)
	require.Equal(t, "no profiles contain this key", kt.Reason)
}

func TestGetKeyTrustInfoBreaksCycles(t *testing.T) {
	fx := buildTrustFixture(t)
	r := NewResolver(fx.dir, fx.keychain, fx.api, RootKeysMainIdentity)
	require.NoError(t, r.RefreshCaches(context.Background()))

	stack := map[string]struct{}{fx.kxHex: {}}
	kt, err := r.GetKeyTrustInfo(context.Background(), fx.kxHex, stack)
	require.NoError(t, err)
	require.False(t, kt.Trusted)
	require.Equal(t, "endless loop", kt.Reason)
}

func TestVerifySignatureWithTrustedKeys(t *testing.T) {
	fx := buildTrustFixture(t)
	r := NewResolver(fx.dir, fx.keychain, fx.api, RootKeysMainIdentity)
	require.NoError(t, r.RefreshCaches(context.Background()))

	qPerson := model.Person{Email: "q@example.com"}.ID()
	ok, err := r.VerifySignatureWithTrustedKeys(context.Background(), fx.rightEverybody.Signature)
	require.NoError(t, err)
	// rightEverybody is signed by R (a root key), not Q.
	require.True(t, ok)

	forged := model.Signature{Issuer: qPerson, Data: fx.rightEverybody.Signature.Data, SignatureHex: "00"}
	ok2, err := r.VerifySignatureWithTrustedKeys(context.Background(), forged)
	require.NoError(t, err)
	require.False(t, ok2)
}
