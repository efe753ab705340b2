package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrStop ends RunFrames without an error.
var ErrStop = errors.New("render: stop")

// RunFrames calls frame once per interval until ctx is done or frame returns
// an error. A panic inside frame is logged and the next frame is scheduled
// as usual. Returning ErrStop ends the loop cleanly.
func RunFrames(ctx context.Context, interval time.Duration, frame func(now time.Time) error, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	now := time.Now()
	for {
		err := runFrame(frame, now)
		switch {
		case errors.Is(err, ErrStop):
			return nil
		case errors.Is(err, errPanicked):
			logger.Error("frame panicked", zap.Error(err))
		case err != nil:
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case now = <-ticker.C:
		}
	}
}

var errPanicked = errors.New("render: frame panicked")

func runFrame(frame func(now time.Time) error, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanicked, r)
		}
	}()
	return frame(now)
}
