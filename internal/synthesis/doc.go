// Package synthesis renders translated segment text into speech clips, one
// provider-chain call per (segment, language) pair, writing the results into
// the job's scratch directory for the mixdown stage to pick up.
package synthesis
