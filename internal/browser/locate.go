package browser

import (
	"context"
	"time"

	"github.com/xkilldash9x/jobagent-cli/api/schemas"
)

// Locate resolves the first candidate of set that is present. The first
// candidate gets an explicit wait of up to timeout; the fallbacks are plain
// lookups, since by then the page has had its chance to render.
func Locate(ctx context.Context, b schemas.Browser, set schemas.SelectorSet, timeout time.Duration) (schemas.Locator, schemas.Element, error) {
	var lastErr error
	for i, loc := range set.Candidates {
		wait := time.Duration(0)
		if i == 0 {
			wait = timeout
		}
		el, err := b.FindElement(ctx, loc, wait)
		if err == nil {
			return loc, el, nil
		}
		if ctx.Err() != nil {
			return schemas.Locator{}, nil, ctx.Err()
		}
		lastErr = err
	}
	u, _ := b.CurrentURL(ctx)
	return schemas.Locator{}, nil, &schemas.PageStructureError{Element: set.Name, URL: u, Err: lastErr}
}
