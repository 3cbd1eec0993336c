package fetcher

import (
	"context"

	"github.com/sumiripple/sumiripple/pkg/failure"
	"github.com/sumiripple/sumiripple/pkg/retry"
)

type Fetcher interface {
	Fetch(
		ctx context.Context,
		crawlDepth int,
		fetchParam FetchParam,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)
}
