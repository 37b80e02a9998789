package classify

import "time"

type Bucket string

const (
	BucketCovid     Bucket = "covid"
	BucketPostCovid Bucket = "post_covid"
)

const (
	covidFirstYear = 2020
	covidLastYear  = 2021
)

// Classify maps a comment timestamp to its period bucket. Comments published
// before 2020 have no bucket.
func Classify(ts time.Time) (Bucket, bool) {
	return ClassifyYear(ts.UTC().Year())
}

func ClassifyYear(year int) (Bucket, bool) {
	switch {
	case year >= covidFirstYear && year <= covidLastYear:
		return BucketCovid, true
	case year > covidLastYear:
		return BucketPostCovid, true
	default:
		return "", false
	}
}
