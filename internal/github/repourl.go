package github

import (
	"net/url"
	"regexp"
	"strings"
)

var repoPathRe = regexp.MustCompile(`github\.com[/:]([^/\s]+)/([^/\s]+)`)

// ContentLocation addresses a file inside a GitHub repository.
type ContentLocation struct {
	Owner string
	Repo  string
	Ref   string
	Path  string
}

// RepoPath extracts "owner/repo" from an HTTPS or SSH GitHub URL.
func RepoPath(repoURL string) string {
	m := repoPathRe.FindStringSubmatch(repoURL)
	if m == nil {
		return ""
	}
	repo := strings.TrimSuffix(m[2], ".git")
	if repo == "" {
		return ""
	}
	return m[1] + "/" + repo
}

// SSHCloneURL converts https://github.com/owner/repo[.git] into
// git@github.com:owner/repo.git. Other URLs are returned unchanged.
func SSHCloneURL(httpsURL string) string {
	const prefix = "https://github.com/"
	if !strings.HasPrefix(httpsURL, prefix) {
		return httpsURL
	}
	path := strings.TrimSuffix(strings.TrimPrefix(httpsURL, prefix), "/")
	if !strings.HasSuffix(path, ".git") {
		path += ".git"
	}
	return "git@github.com:" + path
}

// ParseContentURL recognises github.com blob URLs and raw.githubusercontent.com
// URLs. The first path segment after the repository is taken as the ref.
func ParseContentURL(rawURL string) (ContentLocation, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ContentLocation{}, false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch strings.ToLower(u.Host) {
	case "github.com", "www.github.com":
		// owner/repo/blob/ref/path...
		if len(parts) < 5 || (parts[2] != "blob" && parts[2] != "raw") {
			return ContentLocation{}, false
		}
		return ContentLocation{Owner: parts[0], Repo: parts[1], Ref: parts[3], Path: strings.Join(parts[4:], "/")}, true
	case "raw.githubusercontent.com":
		// owner/repo/ref/path...
		if len(parts) < 4 {
			return ContentLocation{}, false
		}
		return ContentLocation{Owner: parts[0], Repo: parts[1], Ref: parts[2], Path: strings.Join(parts[3:], "/")}, true
	default:
		return ContentLocation{}, false
	}
}
