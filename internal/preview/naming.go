package preview

import (
	"strconv"
	"strings"
	"time"
)

// Sanitize turns a page path into a filesystem-safe name fragment.
func Sanitize(pagePath string) string {
	return strings.ReplaceAll(pagePath, "/", "_")
}

// Namer derives artifact base names from a page path and the current time
// in epoch milliseconds. Successive names never reuse a millisecond.
type Namer struct {
	now  func() time.Time
	last int64
}

// NewNamer returns a Namer reading the clock from now.
func NewNamer(now func() time.Time) *Namer {
	if now == nil {
		now = time.Now
	}
	return &Namer{now: now}
}

// Name returns "<sanitized path>_<epochMillis>".
func (n *Namer) Name(pagePath string) string {
	ms := n.now().UnixMilli()
	if ms <= n.last {
		ms = n.last + 1
	}
	n.last = ms
	return Sanitize(pagePath) + "_" + strconv.FormatInt(ms, 10)
}
