package passwords

import (
	"context"
	"net"
	"net/url"
	"strings"

	"github.com/balduz84/passdoo/internal/models"
	"github.com/balduz84/passdoo/internal/passdoo"
	"golang.org/x/net/publicsuffix"
)

// Filter keeps records whose name, username or uri contains search,
// case-insensitively. An empty search keeps everything.
func Filter(records []models.PasswordRecord, search string) []models.PasswordRecord {
	result := make([]models.PasswordRecord, 0, len(records))
	needle := strings.ToLower(strings.TrimSpace(search))
	for _, r := range records {
		if needle == "" ||
			strings.Contains(strings.ToLower(r.Name), needle) ||
			strings.Contains(strings.ToLower(r.Username), needle) ||
			strings.Contains(strings.ToLower(r.URI), needle) {
			result = append(result, r)
		}
	}
	return result
}

// FindByURL returns the cached records whose uri belongs to the site of
// rawURL. Missing sessions and transient failures yield an empty list;
// VersionOutdated is returned so the caller can surface it.
func (s *Service) FindByURL(ctx context.Context, rawURL string) ([]models.PasswordRecord, error) {
	empty := []models.PasswordRecord{}

	host := hostOf(rawURL)
	if host == "" {
		return empty, nil
	}

	records, err := s.GetAll(ctx, "", false)
	if err != nil {
		if passdoo.IsKind(err, passdoo.KindVersionOutdated) {
			return nil, err
		}
		s.logger.Debug().Err(err).Msg("URL lookup skipped")
		return empty, nil
	}

	matches := empty
	for _, r := range records {
		if MatchesHost(r.URI, host) {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

// MatchesHost reports whether uri points at host: same host, one a
// subdomain of the other, or the same registrable domain. A uri that does
// not parse as a URL is compared as a plain substring.
func MatchesHost(uri, host string) bool {
	uri = strings.TrimSpace(uri)
	if uri == "" || host == "" {
		return false
	}

	other := hostOf(uri)
	if other == "" {
		return strings.Contains(strings.ToLower(uri), host)
	}

	if other == host {
		return true
	}
	// A public suffix such as github.io never covers its subdomains
	if strings.HasSuffix(host, "."+other) && !isPublicSuffix(other) {
		return true
	}
	if strings.HasSuffix(other, "."+host) && !isPublicSuffix(host) {
		return true
	}

	if net.ParseIP(host) != nil || net.ParseIP(other) != nil {
		return false
	}

	a, errA := publicsuffix.EffectiveTLDPlusOne(host)
	b, errB := publicsuffix.EffectiveTLDPlusOne(other)
	return errA == nil && errB == nil && a == b
}

func isPublicSuffix(domain string) bool {
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix == domain
}

// hostOf extracts the lower-cased host without a leading www.
// Bare domains are read as https URLs.
func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(raw), "http") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if strings.ContainsAny(host, " /") {
		return ""
	}
	return strings.TrimPrefix(host, "www.")
}
