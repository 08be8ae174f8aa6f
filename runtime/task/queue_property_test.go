package task

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestQueueDequeueOrderProperty verifies the specification's ordering
// invariant: for any sequence of enqueued tasks, Dequeue returns them in
// (priority ascending, enqueue-sequence ascending) order, grounded on the
// teacher's runtime/registry property-test style (gopter-generated input
// slices checked against a derived expectation).
func TestQueueDequeueOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	priorityGen := gen.IntRange(0, 4).Map(func(i int) Priority { return Priority(i) })

	properties.Property("dequeue order matches (priority, sequence)", prop.ForAll(
		func(priorities []Priority) bool {
			q := New(len(priorities) + 1)
			type expected struct {
				id       string
				priority Priority
				sequence int
			}
			var want []expected
			for i, p := range priorities {
				id := fmt.Sprintf("t%03d", i)
				if q.Enqueue(&Task{ID: id, Priority: p}, nil) != Admitted {
					return false
				}
				want = append(want, expected{id: id, priority: p, sequence: i})
			}
			// stable-sort `want` by priority (sequence order is already ascending)
			// to get the expected dequeue order.
			for i := 1; i < len(want); i++ {
				for j := i; j > 0; j-- {
					a, b := want[j-1], want[j]
					if a.priority > b.priority {
						want[j-1], want[j] = b, a
						continue
					}
					break
				}
			}
			for _, w := range want {
				got := q.Dequeue()
				if got == nil || got.ID != w.id {
					return false
				}
			}
			return q.Dequeue() == nil
		},
		gen.SliceOf(priorityGen),
	))

	properties.TestingRun(t)
}
