// Package peersync reconciles the node's view of the delta chain with the
// views of its peers.
//
// A sync round queries a random sample of peers, groups their answers, and
// ranks the groups by the number of peers that agree and, on a tie, by the
// sum of their reputation scores. The best answer is accepted only if it is
// backed by a quorum of the queried peers. Failed rounds are retried with an
// exponential backoff, and reported as stalled once the retries are
// exhausted.
//
// The accepted delta height never decreases. Callers that depend on the
// chain having reached a given height block in WaitForDeltaHeight.
package peersync
