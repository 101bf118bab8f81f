package gossip

import "math/bits"

// Fanout returns the number of peers a message is sent to when n peers are
// known. A positive factor is used as is, capped at n. Otherwise the fan-out
// is ceil(log2(n)), and at least 1.
func Fanout(n, factor int) int {
	if n <= 0 {
		return 0
	}
	if factor > 0 {
		if factor > n {
			return n
		}
		return factor
	}
	f := bits.Len(uint(n - 1))
	if f < 1 {
		f = 1
	}
	return f
}
