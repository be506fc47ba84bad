package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/cognitoforge/redteam-backend/util"
)

const githubAPI = "https://api.github.com"

// ParseGitHubURL extracts owner and repository name from a github.com URL.
// A trailing ".git" on the name is dropped.
func ParseGitHubURL(repoURL string) (owner, name string, err error) {
	parsed, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil {
		return "", "", fmt.Errorf("%w: invalid repository URL: %v", ErrFetch, err)
	}

	host := strings.ToLower(parsed.Host)
	if host != "github.com" && host != "www.github.com" {
		return "", "", fmt.Errorf("%w: only GitHub repositories are supported right now", ErrFetch)
	}

	var parts []string
	for _, seg := range strings.Split(strings.Trim(parsed.Path, "/"), "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: unable to determine owner/repo from URL", ErrFetch)
	}

	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// downloadZipball writes the repository zipball to dest.
func (f *Fetcher) downloadZipball(ctx context.Context, owner, name, dest string) error {
	zipURL := fmt.Sprintf("%s/repos/%s/%s/zipball", f.apiBase, owner, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, zipURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if f.token != "" {
		req.Header.Set("Authorization", "token "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to download repository zipball: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("%w: GitHub responded with %d: %s", ErrFetch, resp.StatusCode, util.Truncate(string(body), 200))
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("%w: failed to read repository zipball: %v", ErrFetch, err)
	}
	return nil
}
