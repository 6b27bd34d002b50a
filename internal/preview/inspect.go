package preview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/v0xg/mppreview/internal/errs"
)

// inspect reads the page data and counts the elements of every selector.
func (p *Previewer) inspect(ctx context.Context, page PageHandle) (ElementStats, json.RawMessage, error) {
	p.step(5, "Reading page data")

	data, err := page.Data(ctx)
	if err != nil {
		p.stepFailed()
		return ElementStats{}, nil, errs.New(errs.InspectionFailure, "read page data", err)
	}

	counts := make([]int, len(Selectors))
	for i, sel := range Selectors {
		n, err := page.Count(ctx, sel)
		if err != nil {
			p.stepFailed()
			return ElementStats{}, nil, errs.New(errs.InspectionFailure, fmt.Sprintf("count %s elements", sel), err)
		}
		counts[i] = n
	}
	p.stepDone()

	stats := NewElementStats(counts[0], counts[1], counts[2], counts[3])
	fmt.Fprintf(p.out, "  view: %d  text: %d  button: %d  image: %d  total: %d\n",
		stats.View, stats.Text, stats.Button, stats.Image, stats.Total)
	return stats, data, nil
}
