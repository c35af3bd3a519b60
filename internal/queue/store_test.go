package queue_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"mockingbird/internal/queue"
	"mockingbird/internal/testsupport"
)

func TestNewJobCreatesInitialCheckpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, cfg, "Sample Movie", "es", "fr")
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusPending || job.Stage != queue.StageCreated {
		t.Fatalf("unexpected initial state: status=%s stage=%s", job.Status, job.Stage)
	}
	if len(job.TargetLanguages) != 2 || job.TargetLanguages[0] != "es" {
		t.Fatalf("unexpected target languages: %v", job.TargetLanguages)
	}

	snapshot, err := job.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if snapshot.StretchCeiling != cfg.Dubbing.StretchCeiling {
		t.Fatalf("config snapshot not taken: %v", snapshot.StretchCeiling)
	}

	cp, err := store.LoadCheckpoint(ctx, job.ID)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp.Stage != queue.StageCreated {
		t.Fatalf("expected initial checkpoint at created, got %s", cp.Stage)
	}
	if len(cp.Segments) != 0 {
		t.Fatalf("expected empty checkpoint segments, got %d", len(cp.Segments))
	}
}

func TestNewJobRequiresLanguagesAndSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.NewJob(ctx, "/media/a.wav", "A", nil, queue.NewProcessingConfig(cfg)); err == nil {
		t.Fatal("expected error when target languages missing")
	}
	if _, err := store.NewJob(ctx, "  ", "A", []string{"es"}, queue.NewProcessingConfig(cfg)); err == nil {
		t.Fatal("expected error when source path missing")
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job, err := store.GetByID(context.Background(), "no-such-job")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for missing job, got %#v", job)
	}
}

func TestUpdateRoundTrips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, cfg, "Round Trip")
	job.DetectedLanguage = "en"
	job.Title = "Round Trip (1994)"
	if err := job.SetSegments([]queue.Segment{{Index: 0, Start: 0, End: 2, SourceText: "hi"}}); err != nil {
		t.Fatalf("SetSegments: %v", err)
	}
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.DetectedLanguage != "en" || fetched.Title != "Round Trip (1994)" {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
	segments, err := fetched.Segments()
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segments) != 1 || segments[0].SourceText != "hi" {
		t.Fatalf("unexpected segments: %#v", segments)
	}
}

func TestCommitStageWritesRowAndCheckpointTogether(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, cfg, "Commit")
	segments := []queue.Segment{
		{Index: 0, Start: 0, End: 1.5, SourceText: "one"},
		{Index: 1, Start: 2, End: 3, SourceText: "two"},
	}
	if err := job.SetSegments(segments); err != nil {
		t.Fatalf("SetSegments: %v", err)
	}
	job.Stage = queue.StageTranscribed
	job.Status = queue.NextStatus(job.Stage)
	if err := store.CommitStage(ctx, job); err != nil {
		t.Fatalf("CommitStage: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Stage != queue.StageTranscribed || fetched.Status != queue.StatusTranscribed {
		t.Fatalf("unexpected state after commit: status=%s stage=%s", fetched.Status, fetched.Stage)
	}

	cp, err := store.LoadCheckpoint(ctx, job.ID)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp.Stage != queue.StageTranscribed {
		t.Fatalf("expected checkpoint overwritten to transcribed, got %s", cp.Stage)
	}
	if len(cp.Segments) != 2 || cp.Segments[1].SourceText != "two" {
		t.Fatalf("unexpected checkpoint segments: %#v", cp.Segments)
	}
}

func TestSaveAndLoadCheckpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, cfg, "Checkpointed")

	cp := &queue.Checkpoint{
		JobID:    job.ID,
		Stage:    queue.StageTranslated,
		Segments: []queue.Segment{{Index: 0, Start: 0, End: 1, Translations: map[string]string{"es": "hola"}}},
		Config:   queue.NewProcessingConfig(cfg),
	}
	if err := store.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	loaded, err := store.LoadCheckpoint(ctx, job.ID)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if loaded.Stage != queue.StageTranslated {
		t.Fatalf("expected translated checkpoint, got %s", loaded.Stage)
	}
	if loaded.Segments[0].Translations["es"] != "hola" {
		t.Fatalf("unexpected checkpoint segments: %#v", loaded.Segments)
	}
	if loaded.Config.Workers != cfg.Dubbing.Workers {
		t.Fatalf("unexpected checkpoint config: %#v", loaded.Config)
	}

	if err := store.DeleteCheckpoint(ctx, job.ID); err != nil {
		t.Fatalf("DeleteCheckpoint: %v", err)
	}
	if _, err := store.LoadCheckpoint(ctx, job.ID); !errors.Is(err, queue.ErrCheckpointNotFound) {
		t.Fatalf("expected ErrCheckpointNotFound, got %v", err)
	}
}

func TestCompleteJobDropsCheckpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, cfg, "Complete")
	job.Stage = queue.StageMixed
	job.SetProgressComplete("Mix", "done")
	if err := store.CompleteJob(ctx, job); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Status != queue.StatusCompleted || fetched.Stage != queue.StageMixed {
		t.Fatalf("unexpected final state: status=%s stage=%s", fetched.Status, fetched.Stage)
	}
	if _, err := store.LoadCheckpoint(ctx, job.ID); !errors.Is(err, queue.ErrCheckpointNotFound) {
		t.Fatalf("expected checkpoint removed on completion, got %v", err)
	}
}

func TestRetryFailedResumesAfterCommittedStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a := testsupport.NewJob(t, store, cfg, "Job A")
	a.Stage = queue.StageTranscribed
	a.SetFailed("translate blew up")
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("Update A: %v", err)
	}

	b := testsupport.NewJob(t, store, cfg, "Job B")
	b.SetFailed("validation blew up")
	if err := store.Update(ctx, b); err != nil {
		t.Fatalf("Update B: %v", err)
	}

	updated, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed all: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 jobs retried, got %d", updated)
	}

	retriedA, err := store.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID A: %v", err)
	}
	if retriedA.Status != queue.StatusTranscribed {
		t.Fatalf("expected A to resume waiting for translation, got %s", retriedA.Status)
	}
	if retriedA.Stage != queue.StageTranscribed {
		t.Fatal("retry must not rewind the committed stage")
	}
	if retriedA.ErrorMessage != "" {
		t.Fatalf("expected error cleared, got %q", retriedA.ErrorMessage)
	}

	retriedB, err := store.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetByID B: %v", err)
	}
	if retriedB.Status != queue.StatusPending {
		t.Fatalf("expected B back at pending, got %s", retriedB.Status)
	}

	// Targeted retry only touches the named job.
	retriedA.SetFailed("again")
	retriedB.SetFailed("again")
	if err := store.Update(ctx, retriedA); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.Update(ctx, retriedB); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, err = store.RetryFailed(ctx, a.ID)
	if err != nil {
		t.Fatalf("RetryFailed targeted: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 job retried, got %d", updated)
	}
	unchanged, err := store.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetByID B: %v", err)
	}
	if unchanged.Status != queue.StatusFailed {
		t.Fatalf("expected B untouched, got %s", unchanged.Status)
	}
}

func TestPauseAndResume(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, cfg, "Pausable")
	job.Stage = queue.StageValidated
	job.Status = queue.StatusValidated
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	paused, err := store.PauseJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("PauseJob: %v", err)
	}
	if !paused {
		t.Fatal("expected job to pause")
	}
	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Status != queue.StatusPaused {
		t.Fatalf("expected paused, got %s", fetched.Status)
	}

	if again, err := store.PauseJob(ctx, job.ID); err != nil || again {
		t.Fatalf("expected second pause to be a no-op, got %v, %v", again, err)
	}

	resumed, err := store.ResumeJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ResumeJob: %v", err)
	}
	if !resumed {
		t.Fatal("expected job to resume")
	}
	fetched, err = store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.Status != queue.StatusValidated {
		t.Fatalf("expected resume at validated, got %s", fetched.Status)
	}

	done := testsupport.NewJob(t, store, cfg, "Done")
	done.Status = queue.StatusCompleted
	done.Stage = queue.StageMixed
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if paused, err := store.PauseJob(ctx, done.ID); err != nil || paused {
		t.Fatalf("completed jobs must not pause, got %v, %v", paused, err)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	cases := []struct {
		name     string
		inFlight queue.Status
		expected queue.Status
	}{
		{"validating", queue.StatusValidating, queue.StatusPending},
		{"transcribing", queue.StatusTranscribing, queue.StatusValidated},
		{"translating", queue.StatusTranslating, queue.StatusTranscribed},
		{"synthesizing", queue.StatusSynthesizing, queue.StatusTranslated},
		{"mixing", queue.StatusMixing, queue.StatusSynthesized},
	}
	ids := make([]string, 0, len(cases))
	for _, tc := range cases {
		job := testsupport.NewJob(t, store, cfg, fmt.Sprintf("Stuck %s", tc.name))
		job.Status = tc.inFlight
		job.ProgressStage = tc.name
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("Update: %v", err)
		}
		ids = append(ids, job.ID)
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if int(count) != len(cases) {
		t.Fatalf("expected %d jobs reset, got %d", len(cases), count)
	}

	for idx, tc := range cases {
		updated, err := store.GetByID(ctx, ids[idx])
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if updated.Status != tc.expected {
			t.Fatalf("%s: expected status %s, got %s", tc.name, tc.expected, updated.Status)
		}
		if updated.LastHeartbeat != nil {
			t.Fatalf("%s: expected heartbeat cleared", tc.name)
		}
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	t.Run("all statuses", func(t *testing.T) {
		cfg := testsupport.NewConfig(t)
		store := testsupport.MustOpenStore(t, cfg)

		ctx := context.Background()
		past := time.Now().Add(-2 * time.Hour).UTC()
		cases := []struct {
			name     string
			inFlight queue.Status
			expected queue.Status
		}{
			{"validating", queue.StatusValidating, queue.StatusPending},
			{"transcribing", queue.StatusTranscribing, queue.StatusValidated},
			{"translating", queue.StatusTranslating, queue.StatusTranscribed},
			{"synthesizing", queue.StatusSynthesizing, queue.StatusTranslated},
			{"mixing", queue.StatusMixing, queue.StatusSynthesized},
		}
		ids := make([]string, 0, len(cases))
		for _, tc := range cases {
			job := testsupport.NewJob(t, store, cfg, fmt.Sprintf("Stale %s", tc.name))
			job.Status = tc.inFlight
			job.LastHeartbeat = &past
			if err := store.Update(ctx, job); err != nil {
				t.Fatalf("Update: %v", err)
			}
			ids = append(ids, job.ID)
		}

		count, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(-1*time.Hour))
		if err != nil {
			t.Fatalf("ReclaimStaleProcessing: %v", err)
		}
		if int(count) != len(cases) {
			t.Fatalf("expected %d jobs reclaimed, got %d", len(cases), count)
		}

		for idx, tc := range cases {
			updated, err := store.GetByID(ctx, ids[idx])
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if updated.Status != tc.expected {
				t.Fatalf("%s: expected %s after reclaim, got %s", tc.name, tc.expected, updated.Status)
			}
			if updated.LastHeartbeat != nil {
				t.Fatalf("%s: expected heartbeat cleared, got %v", tc.name, updated.LastHeartbeat)
			}
		}
	})

	t.Run("filtered statuses", func(t *testing.T) {
		cfg := testsupport.NewConfig(t)
		store := testsupport.MustOpenStore(t, cfg)

		ctx := context.Background()
		past := time.Now().Add(-2 * time.Hour).UTC()

		translating := testsupport.NewJob(t, store, cfg, "Stale Translating")
		translating.Status = queue.StatusTranslating
		translating.LastHeartbeat = &past
		if err := store.Update(ctx, translating); err != nil {
			t.Fatalf("Update translating: %v", err)
		}

		mixing := testsupport.NewJob(t, store, cfg, "Stale Mixing")
		mixing.Status = queue.StatusMixing
		mixing.LastHeartbeat = &past
		if err := store.Update(ctx, mixing); err != nil {
			t.Fatalf("Update mixing: %v", err)
		}

		count, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(-1*time.Hour), queue.StatusMixing)
		if err != nil {
			t.Fatalf("ReclaimStaleProcessing filtered: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 job reclaimed, got %d", count)
		}

		reclaimed, err := store.GetByID(ctx, mixing.ID)
		if err != nil {
			t.Fatalf("GetByID mixing: %v", err)
		}
		if reclaimed.Status != queue.StatusSynthesized {
			t.Fatalf("expected mixing rolled back to synthesized, got %s", reclaimed.Status)
		}

		unchanged, err := store.GetByID(ctx, translating.ID)
		if err != nil {
			t.Fatalf("GetByID translating: %v", err)
		}
		if unchanged.Status != queue.StatusTranslating {
			t.Fatalf("expected translating untouched, got %s", unchanged.Status)
		}
		if unchanged.LastHeartbeat == nil || !unchanged.LastHeartbeat.Equal(past) {
			t.Fatalf("expected translating heartbeat unchanged, got %v", unchanged.LastHeartbeat)
		}
	})
}

func TestUpdateHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, cfg, "Heartbeat")
	job.Status = queue.StatusValidating
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := store.UpdateHeartbeat(ctx, job.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	updated, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.LastHeartbeat == nil {
		t.Fatal("expected last heartbeat to be set")
	}
}

func TestUpdateProgressPreservesHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, cfg, "Progress")
	job.Status = queue.StatusSynthesizing
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.UpdateHeartbeat(ctx, job.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	before, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if before.LastHeartbeat == nil {
		t.Fatal("expected heartbeat set before progress update")
	}
	origHeartbeat := *before.LastHeartbeat

	before.SetProgress("Synthesize", "segment 3 of 9", 33.3)
	if err := store.UpdateProgress(ctx, before); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	after, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after.LastHeartbeat == nil || !after.LastHeartbeat.Equal(origHeartbeat) {
		t.Fatalf("expected heartbeat unchanged, got %v", after.LastHeartbeat)
	}
	if after.ProgressStage != "Synthesize" || after.ProgressPercent != 33.3 {
		t.Fatalf("expected progress persisted, got %q %f", after.ProgressStage, after.ProgressPercent)
	}
	if after.Status != queue.StatusSynthesizing {
		t.Fatalf("progress update must not change status, got %s", after.Status)
	}
}

func TestErrorHistoryAndWarningCount(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, cfg, "History")

	if err := store.RecordError(ctx, job.ID, queue.StageTranscribed, -1, "service", "whisper timed out"); err != nil {
		t.Fatalf("RecordError: %v", err)
	}
	if err := store.RecordWarning(ctx, job.ID, queue.StageTranslated, 4, "segment", "fallback produced empty text"); err != nil {
		t.Fatalf("RecordWarning: %v", err)
	}
	if err := store.RecordWarning(ctx, job.ID, queue.StageMixed, 4, "sync", "truncated 1.0s"); err != nil {
		t.Fatalf("RecordWarning: %v", err)
	}

	history, err := store.JobErrors(ctx, job.ID)
	if err != nil {
		t.Fatalf("JobErrors: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 recorded entries, got %d", len(history))
	}
	if history[0].Severity != queue.SeverityError || history[0].SegmentIndex != nil {
		t.Fatalf("unexpected first entry: %#v", history[0])
	}
	if history[1].SegmentIndex == nil || *history[1].SegmentIndex != 4 {
		t.Fatalf("expected segment index 4, got %#v", history[1].SegmentIndex)
	}
	for i, entry := range history {
		if entry.CreatedAt.IsZero() {
			t.Fatalf("entry %d missing timestamp", i)
		}
		if entry.Stage == "" {
			t.Fatalf("entry %d missing stage", i)
		}
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched.WarningCount != 2 {
		t.Fatalf("expected 2 warnings derived, got %d", fetched.WarningCount)
	}
	fetched.Status = queue.StatusCompleted
	if !fetched.CompletedWithWarnings() {
		t.Fatal("expected completion-with-warnings")
	}
}

func TestListAndNextForStatuses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a := testsupport.NewJob(t, store, cfg, "Job A")
	b := testsupport.NewJob(t, store, cfg, "Job B")
	b.Status = queue.StatusValidated
	b.Stage = queue.StageValidated
	if err := store.Update(ctx, b); err != nil {
		t.Fatalf("Update: %v", err)
	}
	c := testsupport.NewJob(t, store, cfg, "Job C")
	c.SetFailed("boom")
	if err := store.Update(ctx, c); err != nil {
		t.Fatalf("Update: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}
	if all[0].ID != a.ID || all[1].ID != b.ID || all[2].ID != c.ID {
		t.Fatalf("expected creation order A,B,C, got %s,%s,%s", all[0].ID, all[1].ID, all[2].ID)
	}

	filtered, err := store.List(ctx, queue.StatusValidated, queue.StatusFailed)
	if err != nil {
		t.Fatalf("filtered List: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(filtered))
	}

	next, err := store.NextForStatuses(ctx, queue.StatusPending)
	if err != nil {
		t.Fatalf("NextForStatuses: %v", err)
	}
	if next == nil || next.ID != a.ID {
		t.Fatalf("expected oldest pending job A, got %#v", next)
	}

	none, err := store.NextForStatuses(ctx, queue.StatusMixing)
	if err != nil {
		t.Fatalf("NextForStatuses empty: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no mixing jobs, got %#v", none)
	}

	byStatus, err := store.JobsByStatus(ctx, queue.StatusValidated)
	if err != nil {
		t.Fatalf("JobsByStatus: %v", err)
	}
	if len(byStatus) != 1 || byStatus[0].ID != b.ID {
		t.Fatalf("unexpected validated jobs: %#v", byStatus)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewJob(t, store, cfg, "Pending One")
	processing := testsupport.NewJob(t, store, cfg, "Mixing One")
	processing.Status = queue.StatusMixing
	if err := store.Update(ctx, processing); err != nil {
		t.Fatalf("Update: %v", err)
	}
	failed := testsupport.NewJob(t, store, cfg, "Failed One")
	failed.SetFailed("x")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	paused := testsupport.NewJob(t, store, cfg, "Paused One")
	paused.Status = queue.StatusPaused
	if err := store.Update(ctx, paused); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusPending] != 1 || stats[queue.StatusMixing] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 4 || health.Pending != 1 || health.Processing != 1 || health.Failed != 1 || health.Paused != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}
}

func TestRemoveCascades(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, cfg, "Removable")
	if err := store.RecordError(ctx, job.ID, queue.StageCreated, -1, "validation", "bad media"); err != nil {
		t.Fatalf("RecordError: %v", err)
	}

	removed, err := store.Remove(ctx, job.ID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("expected job removed")
	}
	if _, err := store.LoadCheckpoint(ctx, job.ID); !errors.Is(err, queue.ErrCheckpointNotFound) {
		t.Fatalf("expected checkpoint removed with job, got %v", err)
	}
	history, err := store.JobErrors(ctx, job.ID)
	if err != nil {
		t.Fatalf("JobErrors: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected error history removed with job, got %d entries", len(history))
	}

	removed, err = store.Remove(ctx, job.ID)
	if err != nil {
		t.Fatalf("Remove again: %v", err)
	}
	if removed {
		t.Fatal("expected second remove to report no rows")
	}
}

func TestClearFamilies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	completed := testsupport.NewJob(t, store, cfg, "Completed One")
	completed.Status = queue.StatusCompleted
	completed.Stage = queue.StageMixed
	if err := store.Update(ctx, completed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	failed := testsupport.NewJob(t, store, cfg, "Failed One")
	failed.SetFailed("nope")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update: %v", err)
	}
	testsupport.NewJob(t, store, cfg, "Pending One")

	n, err := store.ClearCompleted(ctx)
	if err != nil {
		t.Fatalf("ClearCompleted: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 completed cleared, got %d", n)
	}
	n, err = store.ClearFailed(ctx)
	if err != nil {
		t.Fatalf("ClearFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 failed cleared, got %d", n)
	}
	n, err = store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 remaining job cleared, got %d", n)
	}
}
