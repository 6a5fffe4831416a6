package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/homelabforge/tidewatch/internal/tagselect"
)

// ghcrTokenService is constant across GHCR and LSCR: LSCR speaks the same
// wire protocol as GHCR, and its token service is still ghcr.io.
const ghcrTokenService = "ghcr.io"

type tagsListPage struct {
	Tags []string `json:"tags"`
}

// GHCRLike implements Client for registries that speak GHCR's dialect of
// the Distribution v2 protocol: a ghcr.io-issued Bearer token regardless of
// which host actually serves the registry API, and RFC 5988 Link-header
// pagination on tag listing. Used for both GHCR and LSCR.
type GHCRLike struct {
	apiHost string // "ghcr.io" or "lscr.io"
	cred CredentialLookup
	cache *tagCache
}

// NewGHCR builds a GHCR client.
func NewGHCR(cred CredentialLookup, store cacheStore) *GHCRLike {
	return &GHCRLike{apiHost: "ghcr.io", cred: cred, cache: newTagCache(store)}
}

// NewLSCR builds an LSCR client — identical protocol to GHCR, different API host.
func NewLSCR(cred CredentialLookup, store cacheStore) *GHCRLike {
	return &GHCRLike{apiHost: "lscr.io", cred: cred, cache: newTagCache(store)}
}

func (g *GHCRLike) credFor() Credential {
	if g.cred == nil {
		return Credential{}
	}
	c, _ := g.cred(g.apiHost)
	return c
}

func (g *GHCRLike) token(ctx context.Context, repo string) (string, error) {
	return fetchBearerToken(ctx, ghcrTokenService, repo, g.credFor())
}

func (g *GHCRLike) ListTags(ctx context.Context, image string) ([]string, error) {
	if tags, ok := g.cache.get(image); ok {
		return tags, nil
	}
	if g.cache.rateLimited(g.apiHost) {
		return nil, &TransientError{Op: "list tags", Err: fmt.Errorf("%s rate-limited", g.apiHost)}
	}

	repo := RepoPath(image)
	bearer, err := g.token(ctx, repo)
	if err != nil {
		return nil, err
	}

	var all []string
	url := fmt.Sprintf("https://%s/v2/%s/tags/list?n=10000", g.apiHost, repo)
	for url != "" {
		var page tagsListPage
		var next string
		err := withRetry(ctx, "ghcr list tags", func() error {
			req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if rerr != nil {
				return rerr
			}
			req.Header.Set("Authorization", "Bearer "+bearer)
			resp, derr := httpClient.Do(req)
			if derr != nil {
				return derr
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests {
				g.cache.recordRateLimit(g.apiHost, retryAfter(resp.Header), "429 from "+g.apiHost)
			}
			if e := classifyStatus(resp, g.apiHost, repo, ""); e != nil {
				return e
			}
			next = nextLink(resp.Header)
			return json.NewDecoder(resp.Body).Decode(&page)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Tags...)
		url = next
	}

	g.cache.put(image, all)
	return all, nil
}

func (g *GHCRLike) LatestTagMetadata(ctx context.Context, image, tag string) (TagMetadata, error) {
	repo := RepoPath(image)
	var meta TagMetadata
	err := withRetry(ctx, "ghcr manifest digest", func() error {
		bearer, terr := g.token(ctx, repo)
		if terr != nil {
			return terr
		}
		m, _, merr := fetchManifestDigest(ctx, g.apiHost, repo, tag, bearer, Credential{})
		if merr != nil {
			return merr
		}
		meta = m
		return nil
	})
	return meta, err
}

func (g *GHCRLike) LatestTag(ctx context.Context, image string, in LatestTagInput) (string, error) {
	if in.CurrentTag == "latest" {
		return latestByDigest(ctx, g, image, in.CurrentDigest)
	}
	tags, err := g.ListTags(ctx, image)
	if err != nil {
		return "", err
	}
	res := tagselect.Select(tagselect.Input{
		CurrentTag: in.CurrentTag,
		Candidates: tags,
		Scope: scopeOf(in.Scope),
		IncludePrereleases: in.IncludePrereleases,
		HostArch: in.HostArch,
	})
	return res.BestInScope, nil
}

func (g *GHCRLike) LatestMajorTag(ctx context.Context, image, currentTag string, includePrereleases bool) (string, error) {
	tags, err := g.ListTags(ctx, image)
	if err != nil {
		return "", err
	}
	res := tagselect.Select(tagselect.Input{
		CurrentTag: currentTag,
		Candidates: tags,
		Scope: tagselectMajor,
		IncludePrereleases: includePrereleases,
	})
	return res.BestOverall, nil
}
