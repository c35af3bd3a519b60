// Package transcription recognizes speech in the source media and merges the
// transcript with the job's segment plan, either by filling pre-supplied hint
// slots or by deriving segment timings from the transcript itself.
package transcription
