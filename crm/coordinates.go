package crm

import (
	"context"
	"time"

	"github.com/drinkorder/order-gateway/schedule"
)

const (
	coordinateDebounce = 500 * time.Millisecond
	updateMaxAttempts  = 3
	updateBaseBackoff  = time.Second
	updateMaxBackoff   = 5 * time.Second
)

// CoordinateUpdater debounces chip coordinate writes per customer:
// dragging a chip produces a burst of positions, and only the last one
// within the window is worth persisting.
type CoordinateUpdater struct {
	client    *Client
	debouncer *schedule.Debouncer
}

// NewCoordinateUpdater creates an updater backed by client.
func NewCoordinateUpdater(client *Client) *CoordinateUpdater {
	return &CoordinateUpdater{
		client:    client,
		debouncer: schedule.NewDebouncer(coordinateDebounce),
	}
}

// Update schedules a coordinate write for a customer chip. The returned
// channel completes with the write's result, schedule.ErrSuperseded if
// a newer position displaced this one, or schedule.ErrStopped.
func (u *CoordinateUpdater) Update(instanceURL, accessToken, customerID string, x, y float64) <-chan error {
	return u.debouncer.Submit(customerID, func(ctx context.Context) error {
		return u.patchWithRetry(ctx, instanceURL, accessToken, customerID, x, y)
	})
}

// Stop cancels pending writes.
func (u *CoordinateUpdater) Stop() {
	u.debouncer.Stop()
}

func (u *CoordinateUpdater) patchWithRetry(ctx context.Context, instanceURL, accessToken, customerID string, x, y float64) error {
	fields := map[string]interface{}{
		"XCoord__c": x,
		"YCoord__c": y,
	}

	var err error
	for attempt := 1; attempt <= updateMaxAttempts; attempt++ {
		err = u.client.UpdateRecord(ctx, instanceURL, accessToken, VisitorChipObject, customerID, fields)
		if err == nil {
			return nil
		}
		if attempt == updateMaxAttempts {
			break
		}

		backoff := updateBaseBackoff << uint(attempt)
		if backoff > updateMaxBackoff {
			backoff = updateMaxBackoff
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
