package orders

import "sort"

// Quantities maps product id to line quantity for one order.
type Quantities map[int64]int

// Delta maps product id to the signed change in stock required by an order
// mutation. A positive entry consumes stock, a negative one returns it.
// Products present before or after the mutation always have an entry, even
// when the net change is zero.
type Delta map[int64]int

// Diff computes after - before for every product in either set. It has no
// side effects.
func Diff(before, after Quantities) Delta {
	d := make(Delta, len(before)+len(after))
	for id, q := range before {
		d[id] -= q
	}
	for id, q := range after {
		d[id] += q
	}
	return d
}

// ProductIDs returns the touched products in ascending order. Locks are
// acquired in this order so two transactions never wait on each other in a
// cycle.
func (d Delta) ProductIDs() []int64 {
	ids := make([]int64, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Negate turns a consumption into a credit.
func (d Delta) Negate() Delta {
	out := make(Delta, len(d))
	for id, q := range d {
		out[id] = -q
	}
	return out
}

// Stock is a snapshot of live stock per product, taken inside the same
// transaction that will apply the delta. Absent keys are unknown products.
type Stock map[int64]int

// CheckFeasibility verifies that stock can absorb every positive entry of d.
// All failing products are reported together: unknown products as a
// ProductNotFoundError, shortfalls as an InsufficientStockError, both wrapped
// in a FeasibilityError. It returns nil when the delta can be applied.
func CheckFeasibility(d Delta, stock Stock) error {
	var missing []int64
	var short []Shortage
	for _, id := range d.ProductIDs() {
		available, ok := stock[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if need := d[id]; need > 0 && available < need {
			short = append(short, Shortage{ProductID: id, Requested: need, Available: available})
		}
	}
	if len(missing) == 0 && len(short) == 0 {
		return nil
	}
	fe := &FeasibilityError{}
	if len(missing) > 0 {
		fe.Missing = &ProductNotFoundError{IDs: missing}
	}
	if len(short) > 0 {
		fe.Shortages = &InsufficientStockError{Shortages: short}
	}
	return fe
}
