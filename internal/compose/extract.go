package compose

import (
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/homelabforge/tidewatch/internal/changelog"
)

var (
	urlRe = regexp.MustCompile(`https?://[^\s"'\\]+`)
	traefikHostRe = regexp.MustCompile("Host\\(`([^`]+)`\\)")
)

// ServiceHints bundles the best-effort extraction results for one compose
// service: a health-check URL derived from healthcheck.test or a Traefik
// router label, and the detected release source repo for the image.
type ServiceHints struct {
	HealthCheckURL string
	ReleaseSource string
}

// ExtractHints parses the named service out of a compose file tree and
// derives health-check and release-source hints. It returns a
// zero ServiceHints, no error, if the service or its image can't be found
// — extraction is always best-effort, never blocking.
func ExtractHints(path, serviceName string, sources []changelog.Source) (ServiceHints, error) {
	var doc yaml.Node
	data, err := os.ReadFile(path)
	if err != nil {
		return ServiceHints{}, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ServiceHints{}, err
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	service := mapValue(mapValue(root, "services"), serviceName)
	if service == nil {
		return ServiceHints{}, nil
	}

	var hints ServiceHints
	if url := healthURLFromHealthcheck(service); url != "" {
		hints.HealthCheckURL = url
	} else if url := healthURLFromTraefikLabels(service); url != "" {
		hints.HealthCheckURL = url
	}

	if image := mapValue(service, "image"); image != nil && image.Kind == yaml.ScalarNode {
		hints.ReleaseSource = changelog.DetectSource(image.Value, sources)
	}

	return hints, nil
}

// healthURLFromHealthcheck scans healthcheck.test (a string or a sequence
// of strings, e.g. ["CMD", "curl", "-f", "http://localhost/health"]) for
// the first URL.
func healthURLFromHealthcheck(service *yaml.Node) string {
	hc := mapValue(service, "healthcheck")
	if hc == nil {
		return ""
	}
	test := mapValue(hc, "test")
	if test == nil {
		return ""
	}

	switch test.Kind {
	case yaml.ScalarNode:
		return firstURL(test.Value)
	case yaml.SequenceNode:
		var parts []string
		for _, n := range test.Content {
			parts = append(parts, n.Value)
		}
		return firstURL(strings.Join(parts, " "))
	}
	return ""
}

// healthURLFromTraefikLabels looks for a Traefik router rule label
// (`traefik.http.routers.<name>.rule=Host(\`app.example.com\`)`) and turns
// the hostname into a best-effort https URL.
func healthURLFromTraefikLabels(service *yaml.Node) string {
	labels := mapValue(service, "labels")
	if labels == nil {
		return ""
	}

	var values []string
	switch labels.Kind {
	case yaml.SequenceNode:
		for _, n := range labels.Content {
			values = append(values, n.Value)
		}
	case yaml.MappingNode:
		for i := 1; i < len(labels.Content); i += 2 {
			values = append(values, labels.Content[i-1].Value+"="+labels.Content[i].Value)
		}
	}

	for _, v := range values {
		if !strings.Contains(v, "traefik.http.routers.") || !strings.Contains(v, ".rule") {
			continue
		}
		if m := traefikHostRe.FindStringSubmatch(v); m != nil {
			return "https://" + m[1]
		}
	}
	return ""
}

func firstURL(s string) string {
	return urlRe.FindString(s)
}
