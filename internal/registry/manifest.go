package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// manifestAccept lists the manifest media types a caller expects back.
// Including the manifest-list/OCI-index types as well as the single-image
// types means multi-arch images resolve to the same digest Docker itself
// would report for `docker image inspect`.
const manifestAccept = "application/vnd.docker.distribution.manifest.list.v2+json, " +
	"application/vnd.oci.image.index.v1+json, " +
	"application/vnd.docker.distribution.manifest.v2+json, " +
	"application/vnd.oci.image.manifest.v1+json"

// fetchManifestDigest performs a manifest digest HEAD request: send the
// manifest Accept header, read Docker-Content-Digest off the response.
func fetchManifestDigest(ctx context.Context, host, repo, tag, bearer string, cred Credential) (TagMetadata, http.Header, error) {
	url := fmt.Sprintf("https://%s/v2/%s/manifests/%s", host, repo, tag)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return TagMetadata{}, nil, fmt.Errorf("build manifest request: %w", err)
	}
	req.Header.Set("Accept", manifestAccept)
	switch {
	case bearer != "":
		req.Header.Set("Authorization", "Bearer "+bearer)
	case cred.Username != "":
		req.SetBasicAuth(cred.Username, cred.Secret)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return TagMetadata{}, nil, &TransientError{Op: "manifest HEAD", Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, host, repo, tag); err != nil {
		return TagMetadata{}, resp.Header, err
	}

	digest := resp.Header.Get("Docker-Content-Digest")
	if digest == "" {
		return TagMetadata{}, resp.Header, fmt.Errorf("manifest response missing Docker-Content-Digest")
	}

	meta := TagMetadata{Digest: digest}
	if cl := resp.ContentLength; cl > 0 {
		meta.SizeBytes = cl
	}
	return meta, resp.Header, nil
}

// nextLink extracts the URL from an RFC 5988 Link header's rel="next"
// entry, as used by GHCR/LSCR tag listing and the anonymous V2 registries.
func nextLink(h http.Header) string {
	raw := h.Get("Link")
	if raw == "" {
		return ""
	}
	// Link: <https://host/v2/repo/tags/list?last=...>; rel="next"
	for _, part := range splitLinkHeader(raw) {
		url, rel, ok := parseLinkPart(part)
		if ok && rel == "next" {
			return url
		}
	}
	return ""
}

// splitLinkHeader splits a Link header on top-level commas, i.e. commas
// outside the <...> URL delimiters (a URL itself may legally contain one).
func splitLinkHeader(h string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range h {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, h[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, h[start:])
	return parts
}

func parseLinkPart(part string) (url, rel string, ok bool) {
	lt := strings.IndexByte(part, '<')
	gt := strings.IndexByte(part, '>')
	if lt < 0 || gt < 0 || gt <= lt {
		return "", "", false
	}
	url = part[lt+1: gt]
	if strings.Contains(part[gt+1:], `rel="next"`) {
		rel = "next"
	}
	return url, rel, url != ""
}
