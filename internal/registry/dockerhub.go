package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/homelabforge/tidewatch/internal/tagselect"
)

// dockerHubPageSize matches: "/v2/repositories/{image}/tags?page_size=100".
const dockerHubPageSize = 100

type dockerHubTagsPage struct {
	Next string `json:"next"`
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
}

// DockerHub implements Client against Docker Hub's own (non-Distribution)
// tag-listing API, falling back to the standard Distribution v2 manifest
// endpoint for digest lookups.
type DockerHub struct {
	cred CredentialLookup
	cache *tagCache
}

// NewDockerHub builds a Docker Hub client. cred may be nil for anonymous
// (public-image-only) use.
func NewDockerHub(cred CredentialLookup, store cacheStore) *DockerHub {
	return &DockerHub{cred: cred, cache: newTagCache(store)}
}

func (d *DockerHub) credFor(host string) Credential {
	if d.cred == nil {
		return Credential{}
	}
	c, _ := d.cred(host)
	return c
}

func (d *DockerHub) ListTags(ctx context.Context, image string) ([]string, error) {
	if tags, ok := d.cache.get(image); ok {
		return tags, nil
	}
	if d.cache.rateLimited("docker.io") {
		return nil, &TransientError{Op: "list tags", Err: fmt.Errorf("docker.io rate-limited")}
	}

	repo := RepoPath(image)
	var all []string
	url := fmt.Sprintf("https://hub.docker.com/v2/repositories/%s/tags?page_size=%d", repo, dockerHubPageSize)
	cred := d.credFor("docker.io")

	for url != "" {
		var page dockerHubTagsPage
		err := withRetry(ctx, "docker hub list tags", func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			if cred.Username != "" {
				req.SetBasicAuth(cred.Username, cred.Secret)
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests {
				d.cache.recordRateLimit("docker.io", retryAfter(resp.Header), "429 from hub.docker.com")
			}
			if e := classifyStatus(resp, "docker.io", repo, ""); e != nil {
				return e
			}
			return json.NewDecoder(resp.Body).Decode(&page)
		})
		if err != nil {
			return nil, err
		}
		for _, r := range page.Results {
			all = append(all, r.Name)
		}
		url = page.Next
	}

	d.cache.put(image, all)
	return all, nil
}

func (d *DockerHub) LatestTagMetadata(ctx context.Context, image, tag string) (TagMetadata, error) {
	repo := RepoPath(image)
	cred := d.credFor("docker.io")
	var meta TagMetadata
	err := withRetry(ctx, "docker hub manifest digest", func() error {
		token, terr := fetchDockerHubToken(ctx, repo, cred)
		if terr != nil {
			return terr
		}
		m, headers, merr := fetchManifestDigest(ctx, "registry-1.docker.io", repo, tag, token, Credential{})
		// Docker Hub reports exhaustion via RateLimit-Remaining: 0 rather
		// than a 429 status, so that has to be checked on success too.
		if headers != nil && headers.Get("RateLimit-Remaining") == "0" {
			d.cache.recordRateLimit("docker.io", retryAfter(headers), "RateLimit-Remaining exhausted")
		}
		if merr != nil {
			return merr
		}
		meta = m
		return nil
	})
	return meta, err
}

func (d *DockerHub) LatestTag(ctx context.Context, image string, in LatestTagInput) (string, error) {
	if in.CurrentTag == "latest" {
		return latestByDigest(ctx, d, image, in.CurrentDigest)
	}
	tags, err := d.ListTags(ctx, image)
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

func (d *DockerHub) LatestMajorTag(ctx context.Context, image, currentTag string, includePrereleases bool) (string, error) {
	tags, err := d.ListTags(ctx, image)
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

