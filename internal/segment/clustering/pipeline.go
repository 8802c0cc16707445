package clustering

import (
	"time"

	customerdomain "github.com/apipatb/earning-sub011/internal/customer/domain"
	"github.com/apipatb/earning-sub011/internal/segment/domain"
)

// Outcome is the result of clustering an organization's customers.
type Outcome struct {
	Selection
	Iterations int
}

// Run extracts features, normalizes them, clusters into cfg.K groups and
// selects the strongest cluster. No customers is not an error: the outcome
// is simply empty.
func Run(cfg domain.MLConfig, customers []customerdomain.Activity, maxIter int, now time.Time) (Outcome, error) {
	ds, err := Extract(cfg.Type, customers, now)
	if err != nil {
		return Outcome{}, err
	}

	result, err := KMeans(Normalize(ds.Rows), cfg.K, maxIter)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Selection:  Select(cfg.Type, ds, result),
		Iterations: result.Iterations,
	}, nil
}
