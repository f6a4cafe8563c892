package reconcile

import (
	"slices"

	"github.com/samber/lo"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

// Rebased is a local diff moved onto a fresher remote copy.
type Rebased struct {
	Diff binder.Diff

	// Conflicts lists positions both sides changed; the remote kept them.
	Conflicts []int

	// Dropped lists local placements whose card the remote already holds
	// elsewhere.
	Dropped []binder.Identity

	// SettingsConflict is set when both sides changed settings or metadata
	// and the remote's were kept.
	SettingsConflict bool
}

// Rebase moves local, computed against base, on top of remote. base may be
// nil when the state the local copy started from is unknown; every remote
// position then counts as changed. Overlaps resolve in favour of the remote.
func Rebase(base, remote *binder.Binder, local binder.Diff) Rebased {
	remoteDelta := binder.ComputeDiff(base, remote)
	touched := lo.SliceToMap(remoteDelta.Positions(), func(p int) (int, bool) { return p, true })

	out := Rebased{Diff: binder.Diff{Set: make(map[int]binder.CardRef)}}

	for _, pos := range sortedKeys(local.Set) {
		ref := local.Set[pos]
		if touched[pos] {
			if rc, ok := remote.Cards.Get(pos); !ok || rc.Identity() != ref.Identity() {
				out.Conflicts = append(out.Conflicts, pos)
			}
			continue
		}
		out.Diff.Set[pos] = ref
	}
	for _, pos := range local.Cleared {
		if touched[pos] {
			if _, ok := remote.Cards.Get(pos); ok {
				out.Conflicts = append(out.Conflicts, pos)
			}
			continue
		}
		out.Diff.Cleared = append(out.Diff.Cleared, pos)
	}

	// A placement collides when the remote keeps the same card at a
	// position this diff leaves alone. Dropping one placement can expose
	// another, so repeat until stable.
	for changed := true; changed; {
		changed = false
		for _, pos := range sortedKeys(out.Diff.Set) {
			ref := out.Diff.Set[pos]
			rp, ok := remote.Cards.Find(ref.Identity())
			if !ok || rp == pos || out.touches(rp) {
				continue
			}
			delete(out.Diff.Set, pos)
			out.Dropped = append(out.Dropped, ref.Identity())
			changed = true
		}
	}

	if local.Settings != nil {
		if remoteDelta.Settings == nil {
			out.Diff.Settings = local.Settings
		} else {
			out.SettingsConflict = true
		}
	}
	if local.Metadata != nil {
		if remoteDelta.Metadata == nil {
			out.Diff.Metadata = local.Metadata
		} else {
			out.SettingsConflict = true
		}
	}

	slices.Sort(out.Conflicts)
	return out
}

func (r *Rebased) touches(pos int) bool {
	if _, ok := r.Diff.Set[pos]; ok {
		return true
	}
	return slices.Contains(r.Diff.Cleared, pos)
}

func sortedKeys(m map[int]binder.CardRef) []int {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
