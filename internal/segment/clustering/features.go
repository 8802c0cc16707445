package clustering

import (
	"fmt"
	"math"
	"time"

	customerdomain "github.com/apipatb/earning-sub011/internal/customer/domain"
	"github.com/apipatb/earning-sub011/internal/segment/domain"
	"github.com/bwmarrin/snowflake"
)

// NeverPurchased is the recency, in days, of a customer without purchases.
const NeverPurchased = 999

// RecencyDays is the number of whole days between the last purchase and now.
func RecencyDays(lastPurchaseAt *time.Time, now time.Time) float64 {
	if lastPurchaseAt == nil || lastPurchaseAt.IsZero() {
		return NeverPurchased
	}
	return wholeDays(*lastPurchaseAt, now)
}

func wholeDays(from, to time.Time) float64 {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return math.Floor(d.Hours() / 24)
}

// Dataset is a feature matrix with the customer behind each row.
type Dataset struct {
	IDs  []snowflake.ID
	Rows [][]float64
}

// Extract builds the feature vector of every customer for the clustering
// type. Column order follows domain.MLType.Features.
func Extract(t domain.MLType, customers []customerdomain.Activity, now time.Time) (Dataset, error) {
	vector, ok := extractors[t]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidMLConfig, t)
	}

	ds := Dataset{
		IDs:  make([]snowflake.ID, 0, len(customers)),
		Rows: make([][]float64, 0, len(customers)),
	}
	for _, c := range customers {
		ds.IDs = append(ds.IDs, c.ID)
		ds.Rows = append(ds.Rows, vector(c, now))
	}
	return ds, nil
}

var extractors = map[domain.MLType]func(customerdomain.Activity, time.Time) []float64{
	domain.MLTypeRFM: func(c customerdomain.Activity, now time.Time) []float64 {
		return []float64{
			RecencyDays(c.LastPurchaseAt, now),
			float64(c.PurchaseCount),
			c.TotalPurchases,
		}
	},
	domain.MLTypeBehavioral: func(c customerdomain.Activity, now time.Time) []float64 {
		avg := 0.0
		if c.PurchaseCount > 0 {
			avg = c.TotalPurchases / float64(c.PurchaseCount)
		}
		return []float64{
			float64(c.PurchaseCount),
			avg,
			float64(c.OpenTicketCount),
			float64(c.TotalQuantity),
		}
	},
	domain.MLTypeEngagement: func(c customerdomain.Activity, now time.Time) []float64 {
		return []float64{
			wholeDays(c.CreatedAt, now),
			float64(c.PurchaseCount),
			float64(c.TicketCount),
			float64(c.InvoiceCount),
			RecencyDays(c.LastPurchaseAt, now),
		}
	},
}
