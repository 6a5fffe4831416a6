package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Credential is an optional username/secret pair for a registry host.
// Most tracked images are public; Credential is only consulted when a
// caller configures one for a private image.
type Credential struct {
	Username string
	Secret string
}

// CredentialLookup resolves stored credentials by registry host.
type CredentialLookup func(host string) (Credential, bool)

type tokenResponse struct {
	Token string `json:"token"`
}

// fetchBearerToken performs the OAuth2 token-exchange dance GHCR uses:
// Basic auth (if any) is used only on the token request itself, and the
// returned Bearer token is what carries every subsequent manifest/tags
// call. GHCR and LSCR both use ghcr.io as the token service regardless of
// which host serves the actual registry API.
func fetchBearerToken(ctx context.Context, tokenService, repo string, cred Credential) (string, error) {
	url := fmt.Sprintf("https://%s/token?scope=repository:%s:pull&service=%s", tokenService, repo, tokenService)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	if cred.Username != "" {
		req.SetBasicAuth(cred.Username, cred.Secret)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", &TransientError{Op: "fetch bearer token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthError{Host: tokenService}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.Token == "" {
		return "", fmt.Errorf("empty bearer token in response")
	}
	return tok.Token, nil
}

// fetchDockerHubToken retrieves an anonymous (or Basic-authenticated)
// bearer token from Docker Hub's own auth host, used for manifest digest
// HEAD requests against registry-1.docker.io.
func fetchDockerHubToken(ctx context.Context, repo string, cred Credential) (string, error) {
	return fetchBearerTokenFromHost(ctx, "auth.docker.io", "registry.docker.io", repo, cred)
}

func fetchBearerTokenFromHost(ctx context.Context, authHost, service, repo string, cred Credential) (string, error) {
	url := fmt.Sprintf("https://%s/token?service=%s&scope=repository:%s:pull", authHost, service, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	if cred.Username != "" {
		req.SetBasicAuth(cred.Username, cred.Secret)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", &TransientError{Op: "fetch bearer token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", &AuthError{Host: authHost}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	return tok.Token, nil
}
