/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type result struct {
	resp *Response
	err  error
}

type pendingRequest struct {
	id      uint64
	kind    Kind
	created time.Time
	timer   *time.Timer
	// done has capacity 1 and receives exactly one result.
	done chan result
}

func (p *pendingRequest) finish(resp *Response, err error) {
	if p.timer != nil {
		p.timer.Stop()
	}

	p.done <- result{resp: resp, err: err}
}

// pendingTable holds in-flight requests by id plus the per-kind arrival order
// used to pair responses that carry no id.
type pendingTable struct {
	byID  map[uint64]*pendingRequest
	order map[Kind][]uint64
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		byID:  make(map[uint64]*pendingRequest),
		order: make(map[Kind][]uint64),
	}
}

func (t *pendingTable) add(p *pendingRequest) {
	t.byID[p.id] = p
	t.order[p.kind] = append(t.order[p.kind], p.id)

	pendingRequests.Inc()
}

func (t *pendingTable) get(id uint64) *pendingRequest {
	return t.byID[id]
}

// oldest returns the earliest registered request of kind still pending.
func (t *pendingTable) oldest(kind Kind) *pendingRequest {
	ids := t.order[kind]
	if len(ids) == 0 {
		return nil
	}

	return t.byID[ids[0]]
}

func (t *pendingTable) remove(id uint64) *pendingRequest {
	p, ok := t.byID[id]
	if !ok {
		return nil
	}

	delete(t.byID, id)

	ids := t.order[p.kind]
	if i := slices.Index(ids, id); i >= 0 {
		ids = slices.Delete(ids, i, i+1)
	}

	if len(ids) == 0 {
		delete(t.order, p.kind)
	} else {
		t.order[p.kind] = ids
	}

	pendingRequests.Dec()

	return p
}

// drain empties the table and returns its requests in submission order.
func (t *pendingTable) drain() []*pendingRequest {
	ids := maps.Keys(t.byID)
	slices.Sort(ids)

	out := make([]*pendingRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.byID[id])
	}

	pendingRequests.Sub(float64(len(ids)))

	t.byID = make(map[uint64]*pendingRequest)
	t.order = make(map[Kind][]uint64)

	return out
}

func (t *pendingTable) len() int {
	return len(t.byID)
}
