package registry

import "testing"

func TestHost(t *testing.T) {
	tests := map[string]string{
		"nginx:1.25": "docker.io",
		"library/nginx:latest": "docker.io",
		"ghcr.io/owner/repo:tag": "ghcr.io",
		"lscr.io/linuxserver/sonarr:latest": "lscr.io",
		"gitea/gitea:1.21": "docker.io",
		"quay.io/prometheus/node-exporter": "quay.io",
	}
	for in, want := range tests {
		if got := Host(in); got != want {
			t.Errorf("Host(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRepoPath(t *testing.T) {
	tests := map[string]string{
		"nginx:latest": "library/nginx",
		"ghcr.io/owner/repo:tag": "owner/repo",
		"gitea/gitea:1.21": "gitea/gitea",
		"lscr.io/linuxserver/radarr": "linuxserver/radarr",
		"docker.io/library/nginx": "library/nginx",
		"myapp@sha256:abcd1234": "library/myapp",
	}
	for in, want := range tests {
		if got := RepoPath(in); got != want {
			t.Errorf("RepoPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractTag(t *testing.T) {
	tests := map[string]string{
		"nginx:1.25.0": "1.25.0",
		"nginx": "latest",
		"ghcr.io/owner/repo:v1.2": "v1.2",
		"myapp@sha256:abcd1234": "",
		"registry.example.com:5000/app:1.0": "1.0",
	}
	for in, want := range tests {
		if got := ExtractTag(in); got != want {
			t.Errorf("ExtractTag(%q) = %q, want %q", in, got, want)
		}
	}
}
