// Package queue persists dubbing jobs in SQLite and models their lifecycle.
//
// A job carries a committed pipeline stage and a dispatch status. The stage
// only moves forward as stages commit; the status moves a job between
// waiting, in-flight, and terminal states and is what the workflow lanes
// poll on. CommitStage writes the job row and its checkpoint in one
// transaction, so a crash never leaves a committed stage without the
// checkpoint needed to resume after it.
package queue
