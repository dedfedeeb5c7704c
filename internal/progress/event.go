// Package progress defines the milestone events emitted by the crawl
// driver and the hub that batches them out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageCategoryStart Stage = "CATEGORY_START"
	StageCategoryDone  Stage = "CATEGORY_DONE"
	StageCategoryError Stage = "CATEGORY_ERROR"
	StagePageDone      Stage = "PAGE_DONE"
	StageItemSaved     Stage = "ITEM_SAVED"
	StageItemSkipped   Stage = "ITEM_SKIPPED"
)

// Event captures one crawl milestone.
type Event struct {
	// RunID identifies the scrape run.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage is the milestone kind.
	Stage Stage
	// Category scopes category/page/item events.
	Category string
	// Page is the 1-based archive page index for page events.
	Page int
	// URL is the optional page or item URL.
	URL string
	// Bytes carries the fetched page size for page events.
	Bytes int64
	// Dur captures fetch or run latency.
	Dur time.Duration
	// Note carries low-volume context such as skip reasons.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageCategoryStart, StageCategoryDone, StageCategoryError:
		if e.Category == "" {
			return fmt.Errorf("%s requires category", e.Stage)
		}
	case StagePageDone:
		if e.Category == "" || e.Page < 1 {
			return errors.New("page event requires category and page >= 1")
		}
	case StageItemSaved, StageItemSkipped:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
