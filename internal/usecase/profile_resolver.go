// Package usecase orchestrates the domain ports into the scheduled
// WorkerLoop (component H), the interactive BatchProcessor (component I),
// and ProfileResolver (component D).
package usecase

import (
	"strings"

	"github.com/fairyhunter13/subscription-fleet/internal/domain"
)

// ProfileResolver resolves an account email to a browser profile id
// (spec §4.4): the mapping-sheet cache first, falling back to a live
// profile-registry search on a cache miss.
type ProfileResolver struct {
	gateway  domain.SheetGateway
	registry domain.ProfileRegistryClient
}

// NewProfileResolver constructs a ProfileResolver. registry may be nil if
// no fallback is configured, in which case a cache miss simply resolves to
// nil (the executor's own last-ditch search logic then applies).
func NewProfileResolver(gateway domain.SheetGateway, registry domain.ProfileRegistryClient) *ProfileResolver {
	return &ProfileResolver{gateway: gateway, registry: registry}
}

// Resolve returns a profile id, or nil if none could be found. A nil
// result is not an error: the core still calls the executor, which has its
// own last-ditch search logic the core treats as opaque.
func (r *ProfileResolver) Resolve(ctx domain.Context, email string) (*string, error) {
	if id, ok, err := r.gateway.ResolveProfileID(ctx, email); err != nil {
		return nil, err
	} else if ok {
		return &id, nil
	}

	if r.registry == nil {
		return nil, nil
	}

	candidates, err := r.registry.FindByNameOrRemark(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	for _, c := range candidates {
		if isSyntacticallyValidProfileID(c) {
			return &c, nil
		}
	}
	return &candidates[0], nil
}

// isSyntacticallyValidProfileID applies the minimal shape check spec §4.4
// calls for: a candidate with embedded whitespace or control characters is
// almost certainly a mis-split search result, not a profile id.
func isSyntacticallyValidProfileID(id string) bool {
	trimmed := strings.TrimSpace(id)
	return trimmed != "" && trimmed == id && !strings.ContainsAny(id, " \t\n")
}
