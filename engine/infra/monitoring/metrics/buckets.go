package metrics

// LeaseWaitBuckets defines latency buckets, in seconds, for time spent
// waiting on a pooled connection.
var LeaseWaitBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2}

