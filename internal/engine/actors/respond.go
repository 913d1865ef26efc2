package actors

import (
	stdctx "context"
	"log"
	"time"

	"buddywalk/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

const defaultOperationTimeout = 5 * time.Second

// respond runs op with a bounded context, records its latency and answers the
// sender with either the result or an *utils.AppError.
func respond(context actor.Context, metrics *utils.MetricsCollector, timeout time.Duration, operation string, op func(stdctx.Context) (interface{}, error)) {
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	startTime := time.Now()
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), timeout)
	defer cancel()

	result, err := op(ctx)
	if metrics != nil {
		metrics.AddOperationLatency(operation, time.Since(startTime))
	}
	if err != nil {
		appErr := utils.AsAppError(err)
		if appErr.Code == utils.ErrDatabase {
			log.Printf("%s failed: %v", operation, err)
		}
		context.Respond(appErr)
		return
	}
	context.Respond(result)
}
