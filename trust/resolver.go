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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sage-x-project/onesync/crypto"
	"github.com/sage-x-project/onesync/internal/metrics"
	"github.com/sage-x-project/onesync/model"
)

// RootKeyMode selects which local identities contribute to the root key
// set (§4.5 "Mode All includes all local identities, not just the main
// one").
type RootKeyMode int

const (
	RootKeysMainIdentity RootKeyMode = iota
	RootKeysAll
)

// TrustSource records one step of a successful trust derivation: issuer's
// certificate vouched for the key, and issuer's own trust is kt.
type TrustSource struct {
	Issuer          model.Hash
	CertificateType model.CertificateType
	KeyTrustInfo    *KeyTrustInfo
}

// KeyTrustInfo is the result of get_key_trust_info (§4.5).
type KeyTrustInfo struct {
	Trusted bool
	Reason  string
	Sources []TrustSource
}

type personRight struct {
	declareForEverybody bool
	declareForSelf      bool
}

// Resolver builds the keysToProfile / keysOfPerson / personRights maps from
// a Directory and answers trust queries against them, grounded in the
// teacher's MultiChainResolver aggregation pattern generalized from
// "iterate sub-resolvers" to "iterate profiles referencing a key, iterate
// certificates on each profile".
type Resolver struct {
	dir      Directory
	keychain Keychain
	api      crypto.API
	mode     RootKeyMode

	mu            sync.RWMutex
	rootKeys      map[string]struct{}
	keysToProfile map[string]map[model.Hash]model.Profile
	keysOfPerson  map[model.Hash]map[string]struct{}
	personRights  map[model.Hash]personRight

	memoMu sync.Mutex
	memo   map[string]*KeyTrustInfo
}

// NewResolver returns a Resolver with empty caches; call RefreshCaches
// before the first query.
func NewResolver(dir Directory, keychain Keychain, api crypto.API, mode RootKeyMode) *Resolver {
	return &Resolver{
		dir:      dir,
		keychain: keychain,
		api:      api,
		mode:     mode,
	}
}

// RefreshCaches rebuilds every in-memory map from the store and drops the
// trust memo. Callers invoke this on relevant store events (new
// certificate, new profile, new right) per §4.5.
func (r *Resolver) RefreshCaches(ctx context.Context) error {
	profiles, err := r.dir.AllProfiles(ctx)
	if err != nil {
		return fmt.Errorf("trust: list profiles: %w", err)
	}

	keysToProfile := make(map[string]map[model.Hash]model.Profile)
	keysOfPerson := make(map[model.Hash]map[string]struct{})

	for _, p := range profiles {
		profileHash := p.ID()
		for _, epHash := range p.CommunicationEndpoints {
			ep, err := r.dir.Endpoint(ctx, epHash)
			if err != nil {
				return fmt.Errorf("trust: resolve endpoint: %w", err)
			}
			key := ep.PublicSignKey
			if key == "" {
				continue
			}
			if keysToProfile[key] == nil {
				keysToProfile[key] = make(map[model.Hash]model.Profile)
			}
			keysToProfile[key][profileHash] = p

			if keysOfPerson[p.PersonID] == nil {
				keysOfPerson[p.PersonID] = make(map[string]struct{})
			}
			keysOfPerson[p.PersonID][key] = struct{}{}
		}
	}

	rootPersons, err := r.rootPersons(ctx)
	if err != nil {
		return err
	}
	complete, err := r.keychain.CompleteSignKeys(ctx)
	if err != nil {
		return fmt.Errorf("trust: list complete keys: %w", err)
	}
	completeSet := make(map[string]struct{}, len(complete))
	for _, k := range complete {
		completeSet[k] = struct{}{}
	}

	rootKeys := make(map[string]struct{})
	for person := range rootPersons {
		for key := range keysOfPerson[person] {
			if _, ok := completeSet[key]; ok {
				rootKeys[key] = struct{}{}
			}
		}
	}

	personRights := make(map[model.Hash]personRight)
	for person := range keysOfPerson {
		right := personRight{}
		certs, err := r.dir.CertificatesForSubject(ctx, person)
		if err != nil {
			return fmt.Errorf("trust: list right certificates: %w", err)
		}
		for _, c := range certs {
			if c.Type != model.CertRightForEverybody && c.Type != model.CertRightForSelf {
				continue
			}
			if !r.signedByAnyRootKey(c.Signature, rootKeys) {
				continue
			}
			if c.Type == model.CertRightForEverybody {
				right.declareForEverybody = true
			} else {
				right.declareForSelf = true
			}
		}
		personRights[person] = right
	}

	r.mu.Lock()
	r.rootKeys = rootKeys
	r.keysToProfile = keysToProfile
	r.keysOfPerson = keysOfPerson
	r.personRights = personRights
	r.mu.Unlock()

	r.memoMu.Lock()
	r.memo = make(map[string]*KeyTrustInfo)
	r.memoMu.Unlock()

	return nil
}

// rootPersons resolves the set of Person id hashes whose profiles'
// keys are eligible to become root keys: the main identity's persons under
// RootKeysMainIdentity, every known identity's persons under RootKeysAll.
//
// Flagged divergence (left as-is per the spec's instruction not to guess
// intent): the documented preference is "the default profile owned by
// self", but the profile-selection heuristic below simply takes the main
// Someone's own identities rather than resolving a dedicated "default
// profile" — mirroring a stray `mainProfile = identities()[0]`-style
// shortcut in the source this was distilled from.
func (r *Resolver) rootPersons(ctx context.Context) (map[model.Hash]struct{}, error) {
	leute, err := r.dir.Leute(ctx)
	if err != nil {
		return nil, fmt.Errorf("trust: load leute root: %w", err)
	}

	someoneHashes := []model.Hash{leute.Me}
	if r.mode == RootKeysAll {
		someoneHashes = append(someoneHashes, leute.Others...)
	}

	persons := make(map[model.Hash]struct{})
	for _, sh := range someoneHashes {
		if sh.IsZero() {
			continue
		}
		someone, err := r.dir.Someone(ctx, sh)
		if err != nil {
			return nil, fmt.Errorf("trust: load someone: %w", err)
		}
		for _, id := range someone.Identities {
			persons[id.Person] = struct{}{}
		}
	}
	return persons, nil
}

// signedByAnyRootKey verifies sig against every current root key,
// constant-time (it does not stop at the first match, matching §4.5 step
// 4's "constant-time iteration — do not short-circuit for verification").
func (r *Resolver) signedByAnyRootKey(sig model.Signature, rootKeys map[string]struct{}) bool {
	verified := false
	for _, key := range sortedKeys(rootKeys) {
		if r.verify(sig, key) {
			verified = true
		}
	}
	return verified
}

// verify checks sig against the single candidate key hex, swallowing
// decode/verification failures as "does not match" since a malformed key
// or signature is not grounds to abort the whole trust computation.
func (r *Resolver) verify(sig model.Signature, keyHex string) bool {
	start := time.Now()
	ok := r.verifyUnrecorded(sig, keyHex)
	metrics.CryptoOperations.WithLabelValues("verify", "ed25519").Inc()
	metrics.CryptoOperationDuration.WithLabelValues("verify", "ed25519").Observe(time.Since(start).Seconds())
	metrics.GetGlobalCollector().RecordVerification(ok, time.Since(start))
	if !ok {
		metrics.CryptoErrors.WithLabelValues("verify").Inc()
	}
	return ok
}

func (r *Resolver) verifyUnrecorded(sig model.Signature, keyHex string) bool {
	pub, err := crypto.DecodeSignPublicKey(keyHex)
	if err != nil {
		return false
	}
	data, err := hex.DecodeString(sig.Data)
	if err != nil {
		return false
	}
	signature, err := hex.DecodeString(sig.SignatureHex)
	if err != nil {
		return false
	}
	return r.api.Verify(data, signature, pub) == nil
}

// GetKeyTrustInfo implements get_key_trust_info (§4.5 steps 1-5): key is
// trusted if some certificate chain, rooted in a current root key, vouches
// for it. stack carries the keys currently being evaluated by an ancestor
// call, breaking cycles without unbounded recursion.
func (r *Resolver) GetKeyTrustInfo(ctx context.Context, keyHex string, stack map[string]struct{}) (*KeyTrustInfo, error) {
	start := time.Now()
	if _, onStack := stack[keyHex]; onStack {
		return &KeyTrustInfo{Trusted: false, Reason: "endless loop"}, nil
	}

	r.memoMu.Lock()
	if kt, ok := r.memo[keyHex]; ok {
		r.memoMu.Unlock()
		metrics.GetGlobalCollector().RecordTrustResolution(true, time.Since(start))
		metrics.TrustResolutionCacheHits.Inc()
		return kt, nil
	}
	r.memoMu.Unlock()
	metrics.TrustResolutionCacheMisses.Inc()
	defer func() {
		metrics.GetGlobalCollector().RecordTrustResolution(false, time.Since(start))
	}()

	r.mu.RLock()
	rootKeys := r.rootKeys
	profiles := r.keysToProfile[keyHex]
	r.mu.RUnlock()

	if _, isRoot := rootKeys[keyHex]; isRoot {
		kt := &KeyTrustInfo{Trusted: true, Reason: "root key"}
		r.memoize(keyHex, kt)
		return kt, nil
	}

	if len(profiles) == 0 {
		kt := &KeyTrustInfo{Trusted: false, Reason: "no profiles contain this key"}
		r.memoize(keyHex, kt)
		return kt, nil
	}

	childStack := make(map[string]struct{}, len(stack)+1)
	for k := range stack {
		childStack[k] = struct{}{}
	}
	childStack[keyHex] = struct{}{}

	kt := &KeyTrustInfo{Reason: "no vouching certificate found"}
	for _, profileHash := range sortedProfileHashes(profiles) {
		certs, err := r.dir.CertificatesForSubject(ctx, profileHash)
		if err != nil {
			return nil, fmt.Errorf("trust: list certificates on profile: %w", err)
		}
		for _, c := range certs {
			eligible := false
			switch c.Type {
			case model.CertTrustKeys:
				r.mu.RLock()
				right := r.personRights[c.Signature.Issuer]
				r.mu.RUnlock()
				eligible = right.declareForEverybody
			case model.CertAffirmation:
				r.mu.RLock()
				right := r.personRights[c.Signature.Issuer]
				r.mu.RUnlock()
				eligible = right.declareForSelf
			}
			if !eligible {
				continue
			}

			signingKey, ok := r.findSigningKey(c.Signature)
			if !ok {
				continue
			}

			childInfo, err := r.GetKeyTrustInfo(ctx, signingKey, childStack)
			if err != nil {
				return nil, err
			}
			if childInfo.Trusted {
				kt.Trusted = true
				kt.Reason = "vouched for"
				kt.Sources = append(kt.Sources, TrustSource{
					Issuer:          c.Signature.Issuer,
					CertificateType: c.Type,
					KeyTrustInfo:    childInfo,
				})
			}
		}
	}

	r.memoize(keyHex, kt)
	return kt, nil
}

// findSigningKey determines which of issuer's known keys actually produced
// sig, verifying against every candidate without short-circuiting (§4.5
// step 4).
func (r *Resolver) findSigningKey(sig model.Signature) (string, bool) {
	r.mu.RLock()
	candidates := r.keysOfPerson[sig.Issuer]
	r.mu.RUnlock()

	found := ""
	ok := false
	for _, key := range sortedKeys(candidates) {
		if r.verify(sig, key) {
			found = key
			ok = true
		}
	}
	return found, ok
}

// VerifySignatureWithTrustedKeys implements verify_signature_with_trusted_keys
// (§4.5): true iff any trusted key of sig.Issuer verifies sig.
func (r *Resolver) VerifySignatureWithTrustedKeys(ctx context.Context, sig model.Signature) (bool, error) {
	r.mu.RLock()
	candidates := r.keysOfPerson[sig.Issuer]
	r.mu.RUnlock()

	for _, key := range sortedKeys(candidates) {
		if !r.verify(sig, key) {
			continue
		}
		kt, err := r.GetKeyTrustInfo(ctx, key, nil)
		if err != nil {
			return false, err
		}
		if kt.Trusted {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) memoize(keyHex string, kt *KeyTrustInfo) {
	r.memoMu.Lock()
	r.memo[keyHex] = kt
	r.memoMu.Unlock()
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedProfileHashes(m map[model.Hash]model.Profile) []model.Hash {
	out := make([]model.Hash, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
