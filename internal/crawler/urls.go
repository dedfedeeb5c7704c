package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// urlArtifact is the per-category sidecar listing every item URL the
// archive phase discovered. It lets a later run skip the archive walk
// entirely.
type urlArtifact struct {
	Site        string    `json:"site"`
	Category    string    `json:"category"`
	ArchiveURL  string    `json:"archive_url"`
	CollectedAt time.Time `json:"collected_at"`
	TotalURLs   int       `json:"total_urls"`
	URLs        []string  `json:"urls"`
}

func urlArtifactPath(dir string, spec CrawlSpec) string {
	name := fmt.Sprintf("%s_%s_urls.json", Slug(spec.Site), Slug(spec.Category))
	return filepath.Join(dir, name)
}

// Slug lowercases and reduces a name to [a-z0-9_] for filenames.
func Slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func saveURLArtifact(dir string, spec CrawlSpec, urls []string) error {
	if dir == "" || len(urls) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create url artifact dir: %w", err)
	}
	artifact := urlArtifact{
		Site:        spec.Site,
		Category:    spec.Category,
		ArchiveURL:  spec.ArchiveURL,
		CollectedAt: time.Now().UTC(),
		TotalURLs:   len(urls),
		URLs:        urls,
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal url artifact: %w", err)
	}
	if err := os.WriteFile(urlArtifactPath(dir, spec), data, 0o644); err != nil {
		return fmt.Errorf("write url artifact: %w", err)
	}
	return nil
}

func loadURLArtifact(dir string, spec CrawlSpec) ([]string, error) {
	path := urlArtifactPath(dir, spec)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf("skip-archive requires a url artifact at %s: %v", path, err)
	}
	var artifact urlArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, configErrorf("url artifact %s is malformed: %v", path, err)
	}
	return artifact.URLs, nil
}
