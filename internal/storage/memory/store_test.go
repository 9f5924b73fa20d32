package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/nichewire/syndicator/internal/extract"
	"github.com/nichewire/syndicator/internal/pipeline"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	job := pipeline.Job{ID: "job-1", Status: pipeline.JobStatusQueued}

	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if err := store.CreateJob(ctx, job); err == nil {
		t.Fatal("expected duplicate job error")
	}
	if err := store.UpdateJobStatus(ctx, job.ID, pipeline.JobStatusRunning, "", pipeline.JobCounters{}); err != nil {
		t.Fatalf("UpdateJobStatus running error = %v", err)
	}

	err := store.UpdateJobStatus(
		ctx,
		job.ID,
		pipeline.JobStatusSucceeded,
		"",
		pipeline.JobCounters{ArticlesExtracted: 3, ArticlesPublished: 2},
	)
	if err != nil {
		t.Fatalf("UpdateJobStatus succeeded error = %v", err)
	}
	final, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if final.Status != pipeline.JobStatusSucceeded || final.Started == nil || final.Finished == nil {
		t.Fatalf("expected timestamps set, got %+v", final)
	}
	if final.Counters.ArticlesExtracted != 3 {
		t.Fatalf("expected counters to persist, got %+v", final)
	}
}

func TestJobStoreSnapshot(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	jobs := []pipeline.Job{
		{ID: "a", Status: pipeline.JobStatusQueued},
		{ID: "b", Status: pipeline.JobStatusQueued},
		{ID: "c", Status: pipeline.JobStatusQueued},
	}
	for _, job := range jobs {
		if err := store.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob() error = %v", err)
		}
	}

	mustUpdate := func(id string, status pipeline.JobStatus, counters pipeline.JobCounters) {
		t.Helper()
		if err := store.UpdateJobStatus(ctx, id, status, "", counters); err != nil {
			t.Fatalf("UpdateJobStatus(%s) error = %v", id, err)
		}
	}
	mustUpdate("a", pipeline.JobStatusRunning, pipeline.JobCounters{})
	mustUpdate("b", pipeline.JobStatusSucceeded, pipeline.JobCounters{ArticlesExtracted: 5, ArticlesPublished: 4})
	mustUpdate("c", pipeline.JobStatusFailed, pipeline.JobCounters{ArticlesExtracted: 1})

	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.JobsRunning != 1 || snap.JobsSucceeded != 1 || snap.JobsFailed != 1 {
		t.Fatalf("unexpected job counts: %+v", snap)
	}
	if snap.ArticlesStored != 6 || snap.ArticlesPublished != 4 {
		t.Fatalf("unexpected article totals: %+v", snap)
	}
	if snap.LastScrapeAt.IsZero() {
		t.Fatal("expected last scrape timestamp")
	}
}

func TestArticleStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewArticleStore()
	ctx := context.Background()

	articles := []pipeline.StoredArticle{
		{ID: "1", JobID: "job-1", Article: extract.Article{Title: "First"}, PublishState: pipeline.PublishStatePending},
		{ID: "2", JobID: "job-1", Article: extract.Article{Title: "Second"}, PublishState: pipeline.PublishStatePending},
		{ID: "3", JobID: "job-2", Article: extract.Article{Title: "Third"}, PublishState: pipeline.PublishStatePending},
	}
	for _, a := range articles {
		if err := store.StoreArticle(ctx, a); err != nil {
			t.Fatalf("StoreArticle() error = %v", err)
		}
	}
	if err := store.StoreArticle(ctx, articles[0]); err == nil {
		t.Fatal("expected duplicate article error")
	}

	if err := store.UpdatePublishState(ctx, "2", pipeline.PublishStatePublished, "urn:li:share:55"); err != nil {
		t.Fatalf("UpdatePublishState() error = %v", err)
	}
	if err := store.UpdatePublishState(ctx, "missing", pipeline.PublishStatePublished, ""); err == nil {
		t.Fatal("expected error for unknown article")
	}

	forJob, err := store.ListArticles(ctx, "job-1")
	if err != nil || len(forJob) != 2 {
		t.Fatalf("ListArticles() unexpected result: %v err=%v", forJob, err)
	}
	if forJob[1].PostURN != "urn:li:share:55" {
		t.Fatalf("expected publish state update to persist, got %+v", forJob[1])
	}

	recent, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "3" || recent[1].ID != "2" {
		t.Fatalf("expected newest-first order, got %+v", recent)
	}

	stored, published, err := store.CountArticles(ctx)
	if err != nil || stored != 3 || published != 1 {
		t.Fatalf("CountArticles() = (%d, %d, %v)", stored, published, err)
	}
}

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "jobs/1/page.html", "text/html", bytes.NewReader([]byte("<html/>")))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://jobs/1/page.html" {
		t.Fatalf("unexpected uri %q", uri)
	}
	data, ok := store.Object("jobs/1/page.html")
	if !ok || string(data) != "<html/>" {
		t.Fatalf("expected stored bytes, got %q ok=%v", data, ok)
	}
}
