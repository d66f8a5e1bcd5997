// internal/export/export.go

// Package export writes per-repository analytics artifacts to the output
// directory. The returned paths become the result files of the analytics
// request that produced them.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"git-analytics-service/internal/analytics"
	"git-analytics-service/internal/model"
)

// Writer renders analytics artifacts into a base directory.
type Writer struct {
	dir string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory %q: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// WriteRepositoryArtifacts writes the JSON summary plus CSV digests for one
// analyzed repository and returns the created file paths.
func (w *Writer) WriteRepositoryArtifacts(projectName string, repo model.Repository, result analytics.Result, commits []model.Commit) ([]string, error) {
	stamp := time.Now().UTC().Format("20060102_150405")
	base := fmt.Sprintf("git_analytics_%s_%s_%s", projectName, repo.Name, stamp)

	jsonPath := filepath.Join(w.dir, base+".json")
	if err := w.writeJSON(jsonPath, repo, result); err != nil {
		return nil, err
	}

	commitsPath := filepath.Join(w.dir, base+"_commits.csv")
	if err := w.writeCommitsCSV(commitsPath, commits); err != nil {
		return nil, err
	}

	authorsPath := filepath.Join(w.dir, base+"_authors.csv")
	if err := w.writeAuthorsCSV(authorsPath, result.AuthorAnalytics); err != nil {
		return nil, err
	}

	return []string{jsonPath, commitsPath, authorsPath}, nil
}

func (w *Writer) writeJSON(path string, repo model.Repository, result analytics.Result) error {
	doc := struct {
		Repository   model.Repository `json:"repository"`
		GeneratedAt  time.Time        `json:"generated_at"`
		Analytics    analytics.Result `json:"analytics"`
		SchemaFormat string           `json:"schema_format"`
	}{
		Repository:   repo,
		GeneratedAt:  time.Now().UTC(),
		Analytics:    result,
		SchemaFormat: "v1",
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func (w *Writer) writeCommitsCSV(path string, commits []model.Commit) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"commit_id", "author_name", "author_email", "author_date", "added", "edited", "deleted", "message"}); err != nil {
		return err
	}
	for _, c := range commits {
		record := []string{
			c.ID,
			c.AuthorName,
			c.AuthorEmail,
			c.AuthorDate.Format(time.RFC3339),
			strconv.Itoa(c.ChangeCounts.Added),
			strconv.Itoa(c.ChangeCounts.Edited),
			strconv.Itoa(c.ChangeCounts.Deleted),
			c.Message,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (w *Writer) writeAuthorsCSV(path string, aa analytics.AuthorAnalytics) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"author", "commits", "additions", "edits", "deletions", "total_changes"}); err != nil {
		return err
	}
	for _, a := range aa.Authors {
		record := []string{
			a.Name,
			strconv.Itoa(a.Commits),
			strconv.Itoa(a.Additions),
			strconv.Itoa(a.Edits),
			strconv.Itoa(a.Deletions),
			strconv.Itoa(a.TotalChanges),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
