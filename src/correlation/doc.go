// Package correlation matches responses to the requests that caused them.
//
// Every request sent to a peer is registered with AddPendingRequest under the
// CorrelationID of its envelope. The matching response is claimed with
// TryMatchResponse. A request that is not answered within its TTL is evicted
// by a timer. Match and eviction remove the entry under the same lock, so
// exactly one of them happens for each request, and each produces one
// reputation event for the peer: Timely or Timeout.
//
// A response arriving exactly at, or after, the TTL deadline is not matched,
// even if the eviction timer has not run yet; the request is evicted on the
// spot instead.
package correlation
