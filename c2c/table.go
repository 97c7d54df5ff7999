// Package c2c implements the cluster-to-cluster channel negotiation carried
// over RPC. Every ordered pair of clusters has a status cell; a channel from
// src to dst can be used once both the (src, dst) and (dst, src) cells are
// open and their permissions agree.
package c2c

import (
	"errors"
	"fmt"

	"github.com/manycore-odp/c2c/mem/atomics"
)

// Protocol errors.
var (
	ErrAlreadyOpen  = errors.New("c2c: channel already open")
	ErrNotOpen      = errors.New("c2c: channel not open")
	ErrClosed       = errors.New("c2c: channel closed")
	ErrAccessDenied = errors.New("c2c: access denied")
	ErrBadCluster   = errors.New("c2c: cluster out of range")
)

// Params are the channel parameters declared by the opener of a direction.
type Params struct {
	RxEnabled bool
	TxEnabled bool
	MinRx     uint32
	MaxRx     uint32

	// MTU is the largest transfer the opener accepts to receive.
	MTU    uint32
	CnocRx uint8
}

// A Cell is the state of one direction of a channel. The zero value is a
// closed cell.
type Cell struct {
	Opened    bool
	RxEnabled bool
	TxEnabled bool
	MinRx     uint32
	MaxRx     uint32
	RxSize    uint32
	CnocRx    uint8
}

// QueryResult is the negotiated view of a channel.
type QueryResult struct {
	Closed bool
	EAcces bool
	MTU    uint32
	MinRx  uint32
	MaxRx  uint32
	CnocRx uint8
}

// StatusTable holds the cells of every ordered pair of n clusters. The cells
// live in memory shared by the cores of the server cluster, and every access
// goes through the cache maintenance of the core. It is not safe for
// concurrent use; it belongs to the dispatch loop of one server.
type StatusTable struct {
	n     int
	core  *atomics.Core
	cells []Cell
}

// NewStatusTable creates a table of closed cells for n clusters, accessed by
// a core without a data cache.
func NewStatusTable(n int) *StatusTable {
	return NewSharedStatusTable(
		atomics.MakeCoreBuilder().Build("StatusTable.Core"), n)
}

// NewSharedStatusTable creates a table of closed cells for n clusters,
// accessed by core.
func NewSharedStatusTable(core *atomics.Core, n int) *StatusTable {
	if n <= 0 {
		panic("number of clusters must be positive")
	}

	if core == nil {
		panic("status table must have a core")
	}

	return &StatusTable{
		n:     n,
		core:  core,
		cells: make([]Cell, n*n),
	}
}

// NumClusters returns the number of clusters of the table.
func (t *StatusTable) NumClusters() int {
	return t.n
}

func (t *StatusTable) index(src, dst int) (int, error) {
	if src < 0 || src >= t.n || dst < 0 || dst >= t.n {
		return 0, fmt.Errorf("%w: (%d, %d)", ErrBadCluster, src, dst)
	}

	return src*t.n + dst, nil
}

// Cell returns the state of the src to dst direction.
func (t *StatusTable) Cell(src, dst int) Cell {
	i, err := t.index(src, dst)
	if err != nil {
		panic(err)
	}

	return atomics.Load(t.core, &t.cells[i])
}

// Open records the parameters src declares for its channel to dst.
func (t *StatusTable) Open(src, dst int, p Params) error {
	i, err := t.index(src, dst)
	if err != nil {
		return err
	}

	v := atomics.Open(t.core, &t.cells[i])
	if v.Get().Opened {
		v.Discard()
		return fmt.Errorf("%w: (%d, %d)", ErrAlreadyOpen, src, dst)
	}

	*v.Get() = Cell{
		Opened:    true,
		RxEnabled: p.RxEnabled,
		TxEnabled: p.TxEnabled,
		MinRx:     p.MinRx,
		MaxRx:     p.MaxRx,
		RxSize:    p.MTU,
		CnocRx:    p.CnocRx,
	}
	v.Release()

	return nil
}

// Close returns the src to dst direction to the closed state.
func (t *StatusTable) Close(src, dst int) error {
	i, err := t.index(src, dst)
	if err != nil {
		return err
	}

	v := atomics.Open(t.core, &t.cells[i])
	if !v.Get().Opened {
		v.Discard()
		return fmt.Errorf("%w: (%d, %d)", ErrNotOpen, src, dst)
	}

	*v.Get() = Cell{}
	v.Release()

	return nil
}

// Query resolves how dst receives from src. Both directions must be open,
// src must be allowed to transmit, and dst must be allowed to receive. The
// MTU is the smaller of the two declared receive sizes; the receive bounds
// and the control receive resource come from the dst to src cell.
func (t *StatusTable) Query(src, dst int) (QueryResult, error) {
	fi, err := t.index(src, dst)
	if err != nil {
		return QueryResult{}, err
	}

	ri, _ := t.index(dst, src)
	fwd := atomics.Load(t.core, &t.cells[fi])
	rev := atomics.Load(t.core, &t.cells[ri])

	if !fwd.Opened || !rev.Opened {
		return QueryResult{Closed: true},
			fmt.Errorf("%w: (%d, %d)", ErrClosed, src, dst)
	}

	if !fwd.TxEnabled || !rev.RxEnabled {
		return QueryResult{EAcces: true},
			fmt.Errorf("%w: (%d, %d)", ErrAccessDenied, src, dst)
	}

	return QueryResult{
		MTU:    min(fwd.RxSize, rev.RxSize),
		MinRx:  rev.MinRx,
		MaxRx:  rev.MaxRx,
		CnocRx: rev.CnocRx,
	}, nil
}

// Snapshot returns a copy of all the cells, row by row.
func (t *StatusTable) Snapshot() []Cell {
	cells := make([]Cell, len(t.cells))
	atomics.ReadSlice(t.core, cells, t.cells)

	return cells
}
