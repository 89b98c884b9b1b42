package callback

import (
	"fmt"

	"github.com/hashicorp/go-memdb"

	"github.com/zhichaoleo/roboptim-core/internal/optimization"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

const (
	historyTable  = "states"
	indexID       = "id"
	indexFeasible = "feasible"
)

// record is one stored iteration. Key is the zero-padded iteration number:
// memdb's integer indexers use varints, which do not sort by value.
type record struct {
	Key      string
	Feasible bool
	State    *solver.State
}

func iterationKey(iteration int) string {
	if iteration < 0 {
		iteration = 0
	}
	return fmt.Sprintf("%020d", iteration)
}

// History stores a snapshot of every iteration in an in-memory database
// indexed by iteration number and feasibility. Readers can query it while
// the solve is running.
type History struct {
	db        *memdb.MemDB
	limit     int
	tolerance float64
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithLimit keeps only the last n iterations. Zero means unlimited.
func WithLimit(n int) HistoryOption {
	return func(h *History) { h.limit = n }
}

// WithFeasibilityTolerance sets the largest constraint violation still
// counted as feasible.
func WithFeasibilityTolerance(tol float64) HistoryOption {
	return func(h *History) { h.tolerance = tol }
}

func historySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			historyTable: {
				Name: historyTable,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					indexFeasible: {
						Name:    indexFeasible,
						Indexer: &memdb.BoolFieldIndex{Field: "Feasible"},
					},
				},
			},
		},
	}
}

// NewHistory returns an empty history.
func NewHistory(opts ...HistoryOption) (*History, error) {
	db, err := memdb.NewMemDB(historySchema())
	if err != nil {
		return nil, optimization.WrapError(err, "creating history database").WithOperation("callback.NewHistory")
	}
	h := &History{db: db, tolerance: 1e-8}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// OnIterationEnd stores a snapshot of state.
func (h *History) OnIterationEnd(state *solver.State) error {
	snap, err := state.Snapshot()
	if err != nil {
		return err
	}
	txn := h.db.Txn(true)
	defer txn.Abort()

	rec := &record{Key: iterationKey(snap.Iteration), Feasible: snap.MaxViolation() <= h.tolerance, State: snap}
	if err := txn.Insert(historyTable, rec); err != nil {
		return optimization.WrapError(err, "storing iteration").WithOperation("History.OnIterationEnd")
	}
	if h.limit > 0 && snap.Iteration > h.limit {
		// Iterations below the cut-off are dropped in order.
		it, err := txn.Get(historyTable, indexID)
		if err != nil {
			return err
		}
		var stale []interface{}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			if obj.(*record).State.Iteration > snap.Iteration-h.limit {
				break
			}
			stale = append(stale, obj)
		}
		for _, obj := range stale {
			if err := txn.Delete(historyTable, obj); err != nil {
				return err
			}
		}
	}
	txn.Commit()
	return nil
}

// Len returns the number of stored iterations.
func (h *History) Len() int {
	return len(h.All())
}

// Get returns the state of one iteration.
func (h *History) Get(iteration int) (*solver.State, bool) {
	txn := h.db.Txn(false)
	obj, err := txn.First(historyTable, indexID, iterationKey(iteration))
	if err != nil || obj == nil {
		return nil, false
	}
	return obj.(*record).State, true
}

// Last returns the most recent state.
func (h *History) Last() (*solver.State, bool) {
	txn := h.db.Txn(false)
	obj, err := txn.Last(historyTable, indexID)
	if err != nil || obj == nil {
		return nil, false
	}
	return obj.(*record).State, true
}

// All returns every stored state in iteration order.
func (h *History) All() []*solver.State {
	return h.Since(0)
}

// Since returns the stored states from iteration from onwards.
func (h *History) Since(from int) []*solver.State {
	txn := h.db.Txn(false)
	it, err := txn.LowerBound(historyTable, indexID, iterationKey(from))
	if err != nil {
		return nil
	}
	var out []*solver.State
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, obj.(*record).State)
	}
	return out
}

// Feasible returns the stored states whose constraint violation is within
// tolerance, in iteration order.
func (h *History) Feasible() []*solver.State {
	txn := h.db.Txn(false)
	it, err := txn.Get(historyTable, indexFeasible, true)
	if err != nil {
		return nil
	}
	var out []*solver.State
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, obj.(*record).State)
	}
	return out
}

// Best returns the feasible state with the lowest objective value.
func (h *History) Best() (*solver.State, bool) {
	var best *solver.State
	for _, s := range h.Feasible() {
		if best == nil || s.Value < best.Value {
			best = s
		}
	}
	return best, best != nil
}
