// Package stream implements the stream selector of spec §4.5: picking the
// best video or audio entry out of an Adaptive stream list for a quality
// target.
package stream

import (
	"fmt"
	"sort"

	"bilidl/internal/model"
)

// highQualityFloor is the quality id (1080P+) at or above which an unmet
// target is reported as a likely membership/login gap rather than a quiet
// downgrade.
const highQualityFloor = 112

// NoStreamsError is returned when the candidate list is empty.
type NoStreamsError struct{ Kind string }

func (e *NoStreamsError) Error() string {
	return fmt.Sprintf("no %s streams available; may require membership or re-login", e.Kind)
}

// SelectVideo picks an entry from entries for targetQualityID, per spec:
// exact match wins; else the highest entry with QualityID <= target; else
// the lowest available entry, with a non-empty warning string returned when
// the target is highQualityFloor or above. Never panics on a non-empty list.
func SelectVideo(entries []model.StreamEntry, targetQualityID int) (model.StreamEntry, string, error) {
	if len(entries) == 0 {
		return model.StreamEntry{}, "", &NoStreamsError{Kind: "video"}
	}

	sorted := make([]model.StreamEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].QualityID < sorted[j].QualityID })

	for _, e := range sorted {
		if e.QualityID == targetQualityID {
			return e, "", nil
		}
	}

	var best *model.StreamEntry
	for i := range sorted {
		if sorted[i].QualityID <= targetQualityID {
			if best == nil || sorted[i].QualityID > best.QualityID {
				best = &sorted[i]
			}
		}
	}
	if best != nil {
		return *best, "", nil
	}

	fallback := sorted[0]
	warning := ""
	if targetQualityID >= highQualityFloor {
		warning = fmt.Sprintf("target quality %d may require membership or re-login; falling back to lowest available %d", targetQualityID, fallback.QualityID)
	}
	return fallback, warning, nil
}

// SelectAudio ranks entries strictly by Bandwidth descending and returns the
// top one. Ties keep first-in-response-order (stable sort).
func SelectAudio(entries []model.StreamEntry) (model.StreamEntry, error) {
	if len(entries) == 0 {
		return model.StreamEntry{}, &NoStreamsError{Kind: "audio"}
	}
	sorted := make([]model.StreamEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Bandwidth > sorted[j].Bandwidth })
	return sorted[0], nil
}
