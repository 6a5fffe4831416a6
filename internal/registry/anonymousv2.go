package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/homelabforge/tidewatch/internal/tagselect"
)

// AnonymousV2 implements Client for registries that need no token dance at
// all — GCR and Quay both serve the plain Distribution v2 API anonymously
// for public images, with Basic auth as the only (optional) credential
// mechanism.
type AnonymousV2 struct {
	host string
	cred CredentialLookup
	cache *tagCache
}

// NewGCR builds a GCR client.
func NewGCR(cred CredentialLookup, store cacheStore) *AnonymousV2 {
	return &AnonymousV2{host: "gcr.io", cred: cred, cache: newTagCache(store)}
}

// NewQuay builds a Quay client.
func NewQuay(cred CredentialLookup, store cacheStore) *AnonymousV2 {
	return &AnonymousV2{host: "quay.io", cred: cred, cache: newTagCache(store)}
}

func (a *AnonymousV2) credFor() Credential {
	if a.cred == nil {
		return Credential{}
	}
	c, _ := a.cred(a.host)
	return c
}

func (a *AnonymousV2) ListTags(ctx context.Context, image string) ([]string, error) {
	if tags, ok := a.cache.get(image); ok {
		return tags, nil
	}
	if a.cache.rateLimited(a.host) {
		return nil, &TransientError{Op: "list tags", Err: fmt.Errorf("%s rate-limited", a.host)}
	}

	repo := RepoPath(image)
	cred := a.credFor()

	var all []string
	url := fmt.Sprintf("https://%s/v2/%s/tags/list?n=10000", a.host, repo)
	for url != "" {
		var page tagsListPage
		var next string
		err := withRetry(ctx, "anonymous v2 list tags", func() error {
			req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if rerr != nil {
				return rerr
			}
			if cred.Username != "" {
				req.SetBasicAuth(cred.Username, cred.Secret)
			}
			resp, derr := httpClient.Do(req)
			if derr != nil {
				return derr
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests {
				a.cache.recordRateLimit(a.host, retryAfter(resp.Header), "429 from "+a.host)
			}
			if e := classifyStatus(resp, a.host, repo, ""); e != nil {
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

	a.cache.put(image, all)
	return all, nil
}

func (a *AnonymousV2) LatestTagMetadata(ctx context.Context, image, tag string) (TagMetadata, error) {
	repo := RepoPath(image)
	cred := a.credFor()
	var meta TagMetadata
	err := withRetry(ctx, "anonymous v2 manifest digest", func() error {
		m, _, merr := fetchManifestDigest(ctx, a.host, repo, tag, "", cred)
		if merr != nil {
			return merr
		}
		meta = m
		return nil
	})
	return meta, err
}

func (a *AnonymousV2) LatestTag(ctx context.Context, image string, in LatestTagInput) (string, error) {
	if in.CurrentTag == "latest" {
		return latestByDigest(ctx, a, image, in.CurrentDigest)
	}
	tags, err := a.ListTags(ctx, image)
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

func (a *AnonymousV2) LatestMajorTag(ctx context.Context, image, currentTag string, includePrereleases bool) (string, error) {
	tags, err := a.ListTags(ctx, image)
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
