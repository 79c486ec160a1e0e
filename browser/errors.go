package browser

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/aluiziolira/marketplace-capture/scraper"
)

var (
	staleMarkers = []string{
		"could not find node",
		"no node with given id",
		"node is detached",
		"cannot find context with specified id",
	}
	blockedMarkers = []string{
		"could not compute box model",
		"node is either not visible",
		"not visible",
	}
)

// classify maps a DevTools failure onto the loop's error classes and
// attaches the caller's stack. Cancellation passes through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.WithStack(scraper.ErrWaitTimeout{Err: err})
	}

	msg := strings.ToLower(err.Error())
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return pkgerrors.WithStack(scraper.ErrElementStale{Err: err})
		}
	}
	for _, m := range blockedMarkers {
		if strings.Contains(msg, m) {
			return pkgerrors.WithStack(scraper.ErrElementNotInteractable{Err: err})
		}
	}
	return pkgerrors.WithStack(err)
}
