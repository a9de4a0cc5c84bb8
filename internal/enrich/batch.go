package enrich

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/narrativeforge-backend/internal/observability"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

// DefaultBatchSize bounds simultaneous calls to one optional service.
const DefaultBatchSize = 3

// Worker produces at most one value per item. A nil value, an error or a panic
// drops the item.
type Worker[In, Out any] func(ctx context.Context, item In) (*Out, error)

// RunAll processes items in fixed-size batches: concurrently inside a batch,
// batch after batch. Successful values keep their input order. Items not yet
// started when ctx is done are dropped.
func RunAll[In, Out any](ctx context.Context, log *logger.Logger, items []In, batchSize int, worker Worker[In, Out]) []Out {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.Nop()
	}
	slots := make([]*Out, len(items))
	for start := 0; start < len(items); start += batchSize {
		if ctx.Err() != nil {
			log.Warn("batch aborted", "remaining", len(items)-start, "error", ctx.Err())
			break
		}
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				slots[i] = runOne(ctx, log, i, items[i], worker)
				return nil
			})
		}
		_ = g.Wait()
	}

	out := make([]Out, 0, len(items))
	for _, v := range slots {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func runOne[In, Out any](ctx context.Context, log *logger.Logger, idx int, item In, worker Worker[In, Out]) (v *Out) {
	defer func() {
		if r := recover(); r != nil {
			observability.Current().IncBatchDropped("panic")
			log.Error("batch item panicked", "index", idx, "panic", fmt.Sprint(r))
			v = nil
		}
	}()
	out, err := worker(ctx, item)
	if err != nil {
		observability.Current().IncBatchDropped("error")
		log.Warn("batch item failed", "index", idx, "error", err.Error())
		return nil
	}
	if out == nil {
		observability.Current().IncBatchDropped("nil")
	}
	return out
}
