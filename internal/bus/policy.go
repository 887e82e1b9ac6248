package bus

// CoalesceByKey builds an OverflowPolicy for the delta bus: coalesce by
// controlId (the latest wins) and then drop-oldest. keyOf extracts the
// coalescing key (the controlId) from a message.
func CoalesceByKey[T any, K comparable](keyOf func(T) K) OverflowPolicy[T] {
	return func(queued []T, next T, capacity int) []T {
		key := keyOf(next)
		out := queued[:0:0]
		replaced := false
		for _, q := range queued {
			if keyOf(q) == key {
				if !replaced {
					out = append(out, next)
					replaced = true
				}
				continue
			}
			out = append(out, q)
		}
		if !replaced {
			out = append(out, next)
		}
		if len(out) > capacity {
			out = out[len(out)-capacity:]
		}
		return out
	}
}
