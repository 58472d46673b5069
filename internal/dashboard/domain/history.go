package dashboard

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	telemetry "soilwatch/internal/telemetry/domain"
)

// DefaultBucketWidth is the chart bucket width.
const DefaultBucketWidth = 3 * time.Hour

// Bucket holds the per-family averages of the readings whose capture time
// falls in [Start, Start+width). A nil average means no channel of that
// family carried a value.
type Bucket struct {
	Start        time.Time `json:"start"`
	Readings     int       `json:"readings"`
	SoilMoisture *float64  `json:"soil_moisture"`
	Temperature  *float64  `json:"temperature"`
	Humidity     *float64  `json:"humidity"`
}

// BucketStart floors t to the wall-clock hour in loc that is a multiple of
// the bucket width in hours. Widths under one hour count as one hour.
func BucketStart(t time.Time, loc *time.Location, width time.Duration) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	hours := int(width / time.Hour)
	if hours < 1 {
		hours = 1
	}
	local := t.In(loc)
	hour := local.Hour() - local.Hour()%hours
	return time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
}

type familySum struct {
	sum   decimal.Decimal
	count int64
}

func (f *familySum) add(values []*float64) {
	for _, v := range values {
		if v == nil || !telemetry.Finite(*v) {
			continue
		}
		f.sum = f.sum.Add(decimal.NewFromFloat(*v))
		f.count++
	}
}

// average rounds half away from zero to one decimal place.
func (f familySum) average() *float64 {
	if f.count == 0 {
		return nil
	}
	avg, _ := f.sum.Div(decimal.NewFromInt(f.count)).Round(1).Float64()
	return &avg
}

type bucketAcc struct {
	start    time.Time
	readings int
	soil     familySum
	temp     familySum
	humidity familySum
}

// Aggregate groups readings into fixed-width buckets in loc and averages
// each channel family over the present values. Input order does not matter;
// output is ascending by bucket start.
func Aggregate(readings []telemetry.Reading, loc *time.Location, width time.Duration) []Bucket {
	if len(readings) == 0 {
		return []Bucket{}
	}
	if width <= 0 {
		width = DefaultBucketWidth
	}
	accs := make(map[int64]*bucketAcc)
	for _, reading := range readings {
		if reading.CreatedAt.IsZero() {
			continue
		}
		start := BucketStart(reading.CreatedAt, loc, width)
		key := start.UnixNano()
		acc, ok := accs[key]
		if !ok {
			acc = &bucketAcc{start: start}
			accs[key] = acc
		}
		acc.readings++
		acc.soil.add(reading.SoilMoisture())
		acc.temp.add(reading.Temperature())
		acc.humidity.add(reading.Humidity())
	}

	buckets := make([]Bucket, 0, len(accs))
	for _, acc := range accs {
		buckets = append(buckets, Bucket{
			Start:        acc.start,
			Readings:     acc.readings,
			SoilMoisture: acc.soil.average(),
			Temperature:  acc.temp.average(),
			Humidity:     acc.humidity.average(),
		})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Start.Before(buckets[j].Start)
	})
	return buckets
}
