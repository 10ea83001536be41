package reconcile

import "time"

// Options tune a single reconciliation pass.
type Options[T Record] struct {
	// Protected suppresses deletions of synced local records missing remotely,
	// and defers stale-copy cleanup, while a local write may not be echoed yet.
	Protected bool
	// Now and RecentWindow define "recently synced" for stale-copy detection.
	Now          time.Time
	RecentWindow time.Duration
	// Similar is the legacy update heuristic. It is only consulted when at
	// least one side has no lineage id.
	Similar func(local, remote T) bool
	// Orphaned marks remote-only records whose parent no longer exists
	// locally; they are pruned remotely instead of inserted.
	Orphaned func(remote T) bool
	// Pending reports business keys with a journaled operation; remote-only
	// records under those keys are left alone until the replay lands.
	Pending func(key string) bool
	Keep    KeepPolicy
}

// Update replaces a local record with the remote record it became.
type Update[T Record] struct {
	Old T
	New T
}

// Ambiguity is a remote record the heuristic could not pin to one local record.
type Ambiguity[T Record] struct {
	Remote     T
	Candidates []T
}

// Plan lists the mutations one pass performs.
type Plan[T Record] struct {
	// Insert holds remote-only records to store locally as synced.
	Insert []T
	// Refresh holds remote copies newer than their synced local row.
	Refresh []T
	// Updates pairs local records with the remote records superseding them.
	Updates []Update[T]
	// DeleteLocal holds synced local records that vanished remotely.
	DeleteLocal []T
	// LocalDuplicates holds local losers of duplicate cleanup.
	LocalDuplicates []T
	// DeleteRemote holds remote duplicates, stale copies and orphans.
	DeleteRemote []T
	// Resubmit holds local records to mark dirty for re-upload.
	Resubmit []T
	// Ambiguous holds heuristic matches left unmerged.
	Ambiguous []Ambiguity[T]
	Skipped   int
}

// Empty reports whether the plan changes nothing.
func (p Plan[T]) Empty() bool {
	return len(p.Insert) == 0 && len(p.Refresh) == 0 && len(p.Updates) == 0 &&
		len(p.DeleteLocal) == 0 && len(p.LocalDuplicates) == 0 &&
		len(p.DeleteRemote) == 0 && len(p.Resubmit) == 0
}

// Touched returns every local-side record the plan adds, replaces or removes.
func (p Plan[T]) Touched() []T {
	out := make([]T, 0, len(p.Insert)+len(p.Refresh)+2*len(p.Updates)+len(p.DeleteLocal)+len(p.LocalDuplicates))
	out = append(out, p.Insert...)
	out = append(out, p.Refresh...)
	for _, u := range p.Updates {
		out = append(out, u.Old, u.New)
	}
	out = append(out, p.DeleteLocal...)
	out = append(out, p.LocalDuplicates...)
	return out
}

type builder[T Record] struct {
	opts       Options[T]
	plan       Plan[T]
	remoteSurv map[string]T
	localOnly  []T
	remoteOnly []T
	consumed   map[string]bool
}

// Build computes the reconciliation plan for local against remote:
//
//  1. both sides are indexed by business key, duplicates resolved by Keep;
//  2. remote-only keys are inserted locally, unless they are the stale
//     pre-update copy of a record edited here;
//  3. synced local-only keys are deleted, outside the protection window and
//     when no similar remote record exists;
//  4. a local and a remote record sharing a lineage (or, for legacy records,
//     matched by Similar) but not a key are treated as one record updated;
//  5. duplicates on either side are removed, keeping the Keep survivor.
//
// Unsynced local records are never deleted except as the Old side of an
// update to a specific remote counterpart.
func Build[T Record](local, remote []T, opts Options[T]) Plan[T] {
	b := &builder[T]{opts: opts, consumed: make(map[string]bool)}

	localSurv, localKeys, localLosers := dedupe(local, opts.Keep)
	remoteSurv, remoteKeys, remoteLosers := dedupe(remote, opts.Keep)
	b.remoteSurv = remoteSurv
	b.plan.LocalDuplicates = localLosers
	b.plan.DeleteRemote = append(b.plan.DeleteRemote, remoteLosers...)

	for _, key := range localKeys {
		l := localSurv[key]
		r, ok := remoteSurv[key]
		if !ok {
			b.localOnly = append(b.localOnly, l)
			continue
		}
		b.consumed[key] = true
		b.matchSameKey(l, r)
	}
	for _, key := range remoteKeys {
		if _, ok := localSurv[key]; !ok {
			b.remoteOnly = append(b.remoteOnly, remoteSurv[key])
		}
	}

	byLineage := make(map[string]T)
	for _, key := range localKeys {
		l := localSurv[key]
		if lin := l.Lineage(); lin != "" {
			byLineage[lin] = l
		}
	}

	for _, r := range b.staleSiblings() {
		b.plan.DeleteRemote = append(b.plan.DeleteRemote, r)
	}

	for _, r := range b.remoteOnly {
		key := r.BusinessKey()
		if opts.Pending != nil && opts.Pending(key) {
			b.plan.Skipped++
			continue
		}
		if opts.Orphaned != nil && opts.Orphaned(r) {
			b.plan.DeleteRemote = append(b.plan.DeleteRemote, r)
			continue
		}
		if l, ok := byLineage[r.Lineage()]; ok && r.Lineage() != "" {
			b.matchLineage(l, r)
			continue
		}
		b.matchHeuristic(r)
	}

	for _, l := range b.localOnly {
		key := l.BusinessKey()
		if b.consumed[key] || !l.IsSynced() {
			continue
		}
		if b.similarRemoteExists(l) {
			b.plan.Skipped++
			continue
		}
		if opts.Protected {
			b.plan.Skipped++
			continue
		}
		b.plan.DeleteLocal = append(b.plan.DeleteLocal, l)
	}

	return b.plan
}

// matchSameKey handles a key present on both sides.
func (b *builder[T]) matchSameKey(l, r T) {
	if l.Identity() == r.Identity() {
		if l.IsSynced() && r.Stamp().After(l.Stamp()) {
			b.plan.Refresh = append(b.plan.Refresh, r)
		}
		return
	}
	// Same key, different documents: a duplicate spanning both stores.
	if prefer(b.opts.Keep, r, l) {
		b.plan.Updates = append(b.plan.Updates, Update[T]{Old: l, New: r})
		return
	}
	b.plan.DeleteRemote = append(b.plan.DeleteRemote, r)
	if l.IsSynced() {
		b.plan.Resubmit = append(b.plan.Resubmit, l)
	}
}

// staleSiblings drops all but the newest remote-only record of each lineage
// from consideration and returns the dropped ones.
func (b *builder[T]) staleSiblings() []T {
	newest := make(map[string]int)
	var stale []T
	kept := b.remoteOnly[:0:0]
	for _, r := range b.remoteOnly {
		lin := r.Lineage()
		if lin == "" {
			kept = append(kept, r)
			continue
		}
		idx, ok := newest[lin]
		if !ok {
			newest[lin] = len(kept)
			kept = append(kept, r)
			continue
		}
		if r.Stamp().After(kept[idx].Stamp()) {
			stale = append(stale, kept[idx])
			kept[idx] = r
		} else {
			stale = append(stale, r)
		}
	}
	b.remoteOnly = kept
	return stale
}

// matchLineage resolves a remote-only record whose lineage exists locally
// under another key.
func (b *builder[T]) matchLineage(l, r T) {
	key := l.BusinessKey()
	if current, ok := b.remoteSurv[key]; ok {
		// The local key is already confirmed remotely; r is a leftover copy.
		if r.Stamp().After(current.Stamp()) {
			b.plan.Updates = append(b.plan.Updates, Update[T]{Old: l, New: r})
			b.plan.DeleteRemote = append(b.plan.DeleteRemote, current)
		} else {
			b.plan.DeleteRemote = append(b.plan.DeleteRemote, r)
		}
		return
	}
	b.consumed[key] = true
	b.resolvePair(l, r)
}

// matchHeuristic applies the legacy similarity rule to a remote-only record.
func (b *builder[T]) matchHeuristic(r T) {
	candidates := b.candidates(r)
	switch {
	case len(candidates) == 0:
		b.plan.Insert = append(b.plan.Insert, r)
	case len(candidates) == 1 && b.similarRemoteOnly(candidates[0]) == 1:
		l := candidates[0]
		b.consumed[l.BusinessKey()] = true
		b.resolvePair(l, r)
	default:
		// Leave both sides as they are; neither local record is deleted.
		b.plan.Ambiguous = append(b.plan.Ambiguous, Ambiguity[T]{Remote: r, Candidates: candidates})
		b.plan.Insert = append(b.plan.Insert, r)
		for _, c := range candidates {
			b.consumed[c.BusinessKey()] = true
		}
	}
}

// resolvePair settles a local record and the remote record it was matched to.
func (b *builder[T]) resolvePair(l, r T) {
	switch {
	case r.Stamp().After(l.Stamp()):
		b.plan.Updates = append(b.plan.Updates, Update[T]{Old: l, New: r})
	case !l.IsSynced():
		// The pending local edit supersedes r; its upload recreates the record.
		b.plan.DeleteRemote = append(b.plan.DeleteRemote, r)
	case b.opts.Protected || b.recent(l):
		// r is the pre-update copy and our write has not been echoed yet.
		b.plan.Skipped++
	default:
		b.plan.DeleteRemote = append(b.plan.DeleteRemote, r)
		b.plan.Resubmit = append(b.plan.Resubmit, l)
	}
}

func (b *builder[T]) recent(l T) bool {
	if b.opts.RecentWindow <= 0 || b.opts.Now.IsZero() {
		return false
	}
	return b.opts.Now.Sub(l.Stamp()) < b.opts.RecentWindow
}

func (b *builder[T]) similar(l, r T) bool {
	if b.opts.Similar == nil {
		return false
	}
	if l.Lineage() != "" && r.Lineage() != "" {
		return false
	}
	return b.opts.Similar(l, r)
}

func (b *builder[T]) candidates(r T) []T {
	var out []T
	for _, l := range b.localOnly {
		if b.consumed[l.BusinessKey()] || !l.IsSynced() {
			continue
		}
		if b.similar(l, r) {
			out = append(out, l)
		}
	}
	return out
}

func (b *builder[T]) similarRemoteOnly(l T) int {
	n := 0
	for _, r := range b.remoteOnly {
		if b.similar(l, r) {
			n++
		}
	}
	return n
}

func (b *builder[T]) similarRemoteExists(l T) bool {
	for _, r := range b.remoteSurv {
		if b.similar(l, r) {
			return true
		}
	}
	return false
}

// Duplicates plans duplicate cleanup only, for both sides.
func Duplicates[T Record](local, remote []T, keep KeepPolicy) Plan[T] {
	_, _, localLosers := dedupe(local, keep)
	_, _, remoteLosers := dedupe(remote, keep)
	return Plan[T]{LocalDuplicates: localLosers, DeleteRemote: remoteLosers}
}
