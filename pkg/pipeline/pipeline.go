// Package pipeline composes ordered per-stage contributions into one
// terminal derived view. Stage plugins register a phase number and a
// store key, write an ordered integer-index slice to that key (or leave
// it undefined to contribute nothing), and the terminal computeds pick
// the highest populated stage, so any stage can be skipped without
// explicit wiring between stages.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zengrid-dev/zengrid/pkg/store"
)

// Well-known store keys.
const (
	// RowsRawKey holds the injected base collection.
	RowsRawKey = "rows.raw"
	// RowsIndicesKey holds the base integer index list the first stage
	// starts from, and the fallback when no stage contributes.
	RowsIndicesKey = "rows.indices"
	// ViewIndicesKey is the terminal computed: the final row ordering.
	ViewIndicesKey = "view.indices"
	// ViewCountKey is the terminal computed holding len(view.indices).
	ViewCountKey = "view.count"
	// PhaseRevisionKey counts phase registrations, so the terminal
	// computeds re-evaluate when a stage registers after setup.
	PhaseRevisionKey = "pipeline.revision"
)

// coreOwner owns the terminal computeds.
const coreOwner = "pipeline-core"

// ErrPhaseClaimed is returned when a phase number is already registered
// under a different name.
var ErrPhaseClaimed = errors.New("zengrid: pipeline phase already claimed")

// Phase is one stage's contribution slot.
type Phase struct {
	// Name identifies the stage (usually the plugin name).
	Name string `json:"name"`
	// Phase orders the stage; higher phases run later and win.
	Phase int `json:"phase"`
	// Key is the store key the stage writes its index slice to.
	Key string `json:"key"`
}

// Registry tracks the registered pipeline stages.
type Registry struct {
	mu     sync.Mutex
	phases []Phase

	// st is set by SetupCoreComputeds; afterwards every registration
	// bumps PhaseRevisionKey so the terminal computeds pick up stages
	// registered late.
	st *store.Store
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterPhase claims a phase number for a named stage. Re-registering
// the same (name, phase) pair is a no-op; a phase number claimed by a
// different name fails.
func (r *Registry) RegisterPhase(name string, phase int, storeKey string) error {
	r.mu.Lock()
	for _, p := range r.phases {
		if p.Phase == phase {
			r.mu.Unlock()
			if p.Name == name {
				return nil
			}
			return fmt.Errorf("%w: phase %d belongs to %q, requested by %q",
				ErrPhaseClaimed, phase, p.Name, name)
		}
	}
	r.phases = append(r.phases, Phase{Name: name, Phase: phase, Key: storeKey})
	sort.Slice(r.phases, func(i, j int) bool { return r.phases[i].Phase < r.phases[j].Phase })
	st := r.st
	r.mu.Unlock()

	if st != nil {
		_ = st.Update(PhaseRevisionKey, func(v any) any {
			n, _ := v.(int)
			return n + 1
		})
	}
	return nil
}

// Phases returns the registered stages sorted by phase ascending.
func (r *Registry) Phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, len(r.phases))
	copy(out, r.phases)
	return out
}

// ResolveKey returns the store key of a named stage.
func (r *Registry) ResolveKey(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.phases {
		if p.Name == name {
			return p.Key, true
		}
	}
	return "", false
}

// SetupCoreComputeds installs the two terminal computeds. They register
// at the terminal phase so they may read any stage's output regardless
// of the stage's own phase; the reads go through GetUnphased because
// looking at later stages is exactly their job.
//
// view.indices walks the stages from highest phase to lowest and
// returns the first populated contribution, falling back to
// rows.indices when no stage has contributed. view.count is its length.
func (r *Registry) SetupCoreComputeds(st *store.Store) error {
	r.mu.Lock()
	r.st = st
	r.mu.Unlock()

	if err := st.Extend(PhaseRevisionKey, len(r.Phases()), coreOwner, 0); err != nil {
		return err
	}

	err := st.Computed(ViewIndicesKey, func() any {
		_ = st.GetUnphased(PhaseRevisionKey)
		for _, p := range r.reversePhases() {
			if indices, ok := asIndices(st.GetUnphased(p.Key)); ok {
				return indices
			}
		}
		if indices, ok := asIndices(st.GetUnphased(RowsIndicesKey)); ok {
			return indices
		}
		return []int{}
	}, coreOwner, store.PhaseTerminal)
	if err != nil {
		return err
	}

	return st.Computed(ViewCountKey, func() any {
		indices, _ := st.GetUnphased(ViewIndicesKey).([]int)
		return len(indices)
	}, coreOwner, store.PhaseTerminal)
}

// reversePhases returns the stages sorted by phase descending.
func (r *Registry) reversePhases() []Phase {
	phases := r.Phases()
	out := make([]Phase, 0, len(phases))
	for i := len(phases) - 1; i >= 0; i-- {
		out = append(out, phases[i])
	}
	return out
}

// asIndices interprets a stage's store value. nil (an undefined key, or
// a stage that has withdrawn its contribution) means "not populated".
func asIndices(v any) ([]int, bool) {
	if v == nil {
		return nil, false
	}
	indices, ok := v.([]int)
	if !ok || indices == nil {
		return nil, false
	}
	return indices, true
}
