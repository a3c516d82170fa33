// Package batch groups masked units into fixed-size ordered request
// batches. Batches never span documents: the prompt context (mod id) must
// stay homogeneous within one network call.
package batch

import "github.com/mc-localize/mctrans/mask"

// Batch is one translation request: an ordered slice of masked units from
// a single document. Response position N maps to Units[N].
type Batch struct {
	// DocumentID identifies the source document (asset path, possibly
	// with an archive-internal suffix).
	DocumentID string
	// ModID is the module identifier substituted into the prompt.
	ModID string
	// Index is the batch's position within the document, starting at 0.
	Index int
	// Units are the masked units in document order.
	Units []mask.MaskedUnit
}

// Split chunks a document's units into batches of at most size units,
// preserving order. A non-positive size falls back to 20, matching the
// dispatcher's safe default. A document with fewer units than size yields
// exactly one batch; an empty document yields none.
func Split(documentID, modID string, units []mask.MaskedUnit, size int) []Batch {
	if size <= 0 {
		size = 20
	}
	var batches []Batch
	for i := 0; i < len(units); i += size {
		end := i + size
		if end > len(units) {
			end = len(units)
		}
		batches = append(batches, Batch{
			DocumentID: documentID,
			ModID:      modID,
			Index:      len(batches),
			Units:      units[i:end],
		})
	}
	return batches
}
