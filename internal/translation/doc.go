// Package translation turns recognized source text into the job's target
// languages, one provider-chain call per (segment, language) pair, and
// tolerates a bounded share of failed pairs by leaving the original audio in
// place for them.
package translation
