// Package merge implements the incremental translation merge: candidates
// whose id already carries an accepted translation are never re-sent to
// the network, and accepted entries are never overwritten. Stale entries
// whose id no longer exists in the current extraction are dropped.
package merge

import "github.com/mc-localize/mctrans/asset"

// Records maps unit ids to previously accepted translations. The pipeline
// treats it as append-only: existing entries are copied through untouched.
type Records map[string]string

// Partition splits candidate units into those still needing translation
// and the accepted records that carry forward. Only entries whose id
// exists in the candidate set survive — a key renamed or removed from the
// source drops its stale accepted text.
func Partition(accepted Records, candidates []asset.TranslationUnit) (pending []asset.TranslationUnit, kept Records) {
	kept = make(Records)
	for _, u := range candidates {
		if t, ok := accepted[u.ID]; ok && t != "" {
			kept[u.ID] = t
			continue
		}
		pending = append(pending, u)
	}
	return pending, kept
}

// Combine builds the final output mapping: accepted entries win over newly
// translated ones for the same id, so a prior human edit is never clobbered
// by a fresh machine translation.
func Combine(kept Records, newly Records) Records {
	out := make(Records, len(kept)+len(newly))
	for id, t := range newly {
		out[id] = t
	}
	for id, t := range kept {
		out[id] = t
	}
	return out
}

// Overlay layers sources of accepted translations in priority order:
// later arguments win. Used to stack a bundled baseline under an existing
// output file.
func Overlay(layers ...Records) Records {
	out := make(Records)
	for _, layer := range layers {
		for id, t := range layer {
			if t != "" {
				out[id] = t
			}
		}
	}
	return out
}
