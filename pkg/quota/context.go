package quota

import (
	"github.com/dmitrymomot/meterkit/pkg/plans"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

// Context is the snapshot taken by Prepare and consumed by Commit.
type Context struct {
	Month string
	Usage *usage.Record
	Plan  plans.Plan
}

// Remaining returns how many actions the snapshot allowed, or plans.Unlimited.
func (c *Context) Remaining() int64 {
	return c.Plan.Remaining(c.Usage.Count)
}
