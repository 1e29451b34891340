package product

import "fmt"

// Quantity is the remaining stock of a product: either unlimited or a finite count.
// The zero value is Unlimited.
type Quantity struct {
	limited bool
	n       int
}

func Unlimited() Quantity { return Quantity{} }

// Limited returns a finite stock of n units. Negative values clamp to zero.
func Limited(n int) Quantity {
	if n < 0 {
		n = 0
	}
	return Quantity{limited: true, n: n}
}

func (q Quantity) IsUnlimited() bool { return !q.limited }

// Count reports the finite stock; ok is false for Unlimited.
func (q Quantity) Count() (n int, ok bool) { return q.n, q.limited }

// Exhausted reports a finite stock of zero.
func (q Quantity) Exhausted() bool { return q.limited && q.n == 0 }

// Covers reports whether units can be sold from this stock.
func (q Quantity) Covers(units int) bool {
	if units <= 0 {
		return false
	}
	return !q.limited || units <= q.n
}

// Take removes units from the stock, clamping at zero. The shortfall is the
// number of units that could not be covered.
func (q Quantity) Take(units int) (rest Quantity, shortfall int) {
	if !q.limited || units <= 0 {
		return q, 0
	}
	if units > q.n {
		return Limited(0), units - q.n
	}
	return Limited(q.n - units), 0
}

// Ptr converts to the nullable column representation.
func (q Quantity) Ptr() *int {
	if !q.limited {
		return nil
	}
	n := q.n
	return &n
}

// FromPtr converts from the nullable column representation.
func FromPtr(p *int) Quantity {
	if p == nil {
		return Unlimited()
	}
	return Limited(*p)
}

func (q Quantity) String() string {
	if !q.limited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", q.n)
}
