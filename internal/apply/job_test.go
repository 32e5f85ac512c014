package apply

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSortJobsDescending(t *testing.T) {
	jobs := []Job{
		{JobID: "200", Title: "B"},
		{JobID: "100", Title: "C"},
		{JobID: "300", Title: "A"},
	}
	SortJobsDescending(jobs)

	want := []string{"300", "200", "100"}
	for i, id := range want {
		if jobs[i].JobID != id {
			t.Fatalf("position %d: got %s, want %s", i, jobs[i].JobID, id)
		}
	}
}

func TestSortJobsDescendingStringFallback(t *testing.T) {
	jobs := []Job{
		{JobID: "abc"},
		{JobID: "xyz"},
		{JobID: "def"},
	}
	SortJobsDescending(jobs)

	want := []string{"xyz", "def", "abc"}
	for i, id := range want {
		if jobs[i].JobID != id {
			t.Fatalf("position %d: got %s, want %s", i, jobs[i].JobID, id)
		}
	}
}

func TestJobURL(t *testing.T) {
	j := Job{JobID: "4242"}
	got := j.JobURL("https://www.linkedin.com/")
	want := "https://www.linkedin.com/jobs/view/4242"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestLoadJobsFileBareArray(t *testing.T) {
	path := writeTempJobs(t, `[{"jobId":"1","title":"a","company":"x"}]`)
	jobs, err := LoadJobsFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobID != "1" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestLoadJobsFileWrappedObject(t *testing.T) {
	path := writeTempJobs(t, `{"jobs":[{"jobId":"7","title":"b","company":"y"}]}`)
	jobs, err := LoadJobsFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobID != "7" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

type staticJobCache struct {
	jobs []Job
}

func (s staticJobCache) CachedJobs(context.Context) ([]Job, error) {
	return s.jobs, nil
}

func TestResolveExplicitWins(t *testing.T) {
	src := &JobSource{Store: staticJobCache{jobs: []Job{{JobID: "9"}}}}
	jobs, err := src.Resolve(context.Background(), []Job{{JobID: "1"}, {JobID: "2"}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(jobs) != 2 || jobs[0].JobID != "2" {
		t.Fatalf("unexpected queue: %+v", jobs)
	}
}

func TestResolveFallsBackToCache(t *testing.T) {
	src := &JobSource{Store: staticJobCache{jobs: []Job{{JobID: "5"}, {JobID: "8"}}}}
	jobs, err := src.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(jobs) != 2 || jobs[0].JobID != "8" {
		t.Fatalf("unexpected queue: %+v", jobs)
	}
}

func TestResolveFallsBackToFile(t *testing.T) {
	path := writeTempJobs(t, `[{"jobId":"11"},{"jobId":"22"}]`)
	src := &JobSource{Store: staticJobCache{}, FilePath: path}
	jobs, err := src.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(jobs) != 2 || jobs[0].JobID != "22" {
		t.Fatalf("unexpected queue: %+v", jobs)
	}
}

func writeTempJobs(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp jobs: %v", err)
	}
	return path
}

func TestResolveLeavesExplicitSliceUntouched(t *testing.T) {
	explicit := []Job{{JobID: "1"}, {JobID: "3"}, {JobID: "2"}}
	src := &JobSource{Store: staticJobCache{}}

	jobs, err := src.Resolve(context.Background(), explicit)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if jobs[0].JobID != "3" {
		t.Fatalf("queue not sorted: %+v", jobs)
	}
	if explicit[0].JobID != "1" || explicit[1].JobID != "3" || explicit[2].JobID != "2" {
		t.Fatalf("caller slice reordered: %+v", explicit)
	}
}
