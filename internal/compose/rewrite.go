package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrServiceNotFound is returned when the compose file has no services
// entry matching the requested service name.
var ErrServiceNotFound = fmt.Errorf("compose: service not found")

// ErrImageNotFound is returned when a matching service has no image key.
var ErrImageNotFound = fmt.Errorf("compose: image key not found")

// SetServiceTag rewrites the image tag for serviceName in the compose file
// at path, preserving every other byte of formatting: comments, anchors,
// quoting style, and key ordering. newTag may be a tag or a "sha256:..."
// digest. The file is replaced atomically via temp-file-plus-rename.
func SetServiceTag(path, serviceName, newTag string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("compose: read %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("compose: parse %s: %w", path, err)
	}

	imageNode, err := findImageNode(&doc, serviceName)
	if err != nil {
		return err
	}

	rewritten, changed := rewriteImageValue(imageNode.Value, newTag)
	if !changed {
		return nil
	}

	// Splice the new value into the original bytes at the scalar's position
	// rather than re-encoding the tree, so nothing else in the file changes.
	lines := strings.SplitAfter(string(data), "\n")
	line, col := lines[imageNode.Line-1], imageNode.Column-1
	at := strings.Index(line[col:], imageNode.Value)
	if at < 0 {
		return fmt.Errorf("%w: service %q", ErrImageNotFound, serviceName)
	}
	lines[imageNode.Line-1] = line[:col+at] + rewritten + line[col+at+len(imageNode.Value):]

	return atomicWrite(path, []byte(strings.Join(lines, "")))
}

// findImageNode walks root -> services -> serviceName -> image and returns
// the scalar node holding the image string.
func findImageNode(root *yaml.Node, serviceName string) (*yaml.Node, error) {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		doc = doc.Content[0]
	}

	services := mapValue(doc, "services")
	if services == nil {
		return nil, fmt.Errorf("%w: no top-level services key", ErrServiceNotFound)
	}
	service := mapValue(services, serviceName)
	if service == nil {
		return nil, fmt.Errorf("%w: %q", ErrServiceNotFound, serviceName)
	}
	image := mapValue(service, "image")
	if image == nil || image.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("%w: service %q", ErrImageNotFound, serviceName)
	}
	return image, nil
}

// mapValue returns the value node paired with key in a YAML mapping node,
// or nil if absent or node is not a mapping.
func mapValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// rewriteImageValue replaces the tag or digest portion of an image
// reference with newTag, keeping the repository/registry prefix untouched.
// Returns the unchanged value and false if there's nothing to rewrite (the
// image already carries newTag).
func rewriteImageValue(image, newTag string) (string, bool) {
	repo := image
	if at := strings.LastIndex(image, "@sha256:"); at >= 0 {
		repo = image[:at]
	} else if c := strings.LastIndex(image, ":"); c >= 0 && !strings.Contains(image[c:], "/") {
		repo = image[:c]
	}

	var rewritten string
	if strings.HasPrefix(newTag, "sha256:") {
		rewritten = repo + "@" + newTag
	} else {
		rewritten = repo + ":" + newTag
	}

	if rewritten == image {
		return image, false
	}
	return rewritten, true
}

// atomicWrite writes data to a temp file in the same directory as path
// and renames it into place, so a crash mid-write never leaves a
// partially-written compose file behind.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".compose-*.tmp")
	if err != nil {
		return fmt.Errorf("compose: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("compose: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("compose: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("compose: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("compose: rename into place: %w", err)
	}
	return nil
}
