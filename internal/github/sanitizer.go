package github

import (
	"regexp"
)

var (
	reInvisible    = regexp.MustCompile("[\u200B\u200C\u200D\uFEFF]")
	reControl      = regexp.MustCompile("[\u0000-\u0008\u000B\u000C\u000E-\u001F\u007F-\u009F]")
	reSoftHyphen   = regexp.MustCompile("\u00AD")
	reBidi         = regexp.MustCompile("[\u202A-\u202E\u2066-\u2069]")
	reHTMLComments = regexp.MustCompile(`<!--[\s\S]*?-->`)

	reGitHubTokens = []*regexp.Regexp{
		regexp.MustCompile(`\bghp_[A-Za-z0-9]{36}\b`),
		regexp.MustCompile(`\bgho_[A-Za-z0-9]{36}\b`),
		regexp.MustCompile(`\bghs_[A-Za-z0-9]{36}\b`),
		regexp.MustCompile(`\bghr_[A-Za-z0-9]{36}\b`),
		regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{11,221}\b`),
	}
)

// StripHTMLComments removes HTML comments.
func StripHTMLComments(s string) string {
	return reHTMLComments.ReplaceAllString(s, "")
}

// StripInvisibleCharacters removes zero-width, bidi and control characters.
// Newlines, tabs and carriage returns are kept.
func StripInvisibleCharacters(s string) string {
	s = reInvisible.ReplaceAllString(s, "")
	s = reControl.ReplaceAllString(s, "")
	s = reSoftHyphen.ReplaceAllString(s, "")
	s = reBidi.ReplaceAllString(s, "")
	return s
}

// RedactGitHubTokens censors GitHub token-like strings.
func RedactGitHubTokens(s string) string {
	for _, re := range reGitHubTokens {
		s = re.ReplaceAllString(s, "[REDACTED_GITHUB_TOKEN]")
	}
	return s
}

// SanitizeTracker cleans fetched tracker text before it is typed into a
// session: hidden comments and invisible characters go, tokens are redacted.
func SanitizeTracker(s string) string {
	if s == "" {
		return s
	}
	s = StripHTMLComments(s)
	s = StripInvisibleCharacters(s)
	return RedactGitHubTokens(s)
}
