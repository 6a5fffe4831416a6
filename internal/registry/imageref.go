package registry

import "strings"

// Host extracts the registry hostname from an image reference: a first
// path segment containing a dot or colon is a hostname, otherwise the
// image lives on Docker Hub.
func Host(imageRef string) string {
	ref := imageRef
	if i := strings.Index(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	firstSlash := strings.Index(ref, "/")
	if firstSlash < 0 {
		return "docker.io"
	}
	firstSegment := ref[:firstSlash]
	if strings.ContainsAny(firstSegment, ".:") {
		return firstSegment
	}
	return "docker.io"
}

// RepoPath strips the registry host, tag, and digest from an image
// reference, returning the registry-relative repository path and
// prepending "library/" for unqualified Docker Hub official images.
func RepoPath(imageRef string) string {
	ref := imageRef
	if i := strings.Index(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		if slash := strings.LastIndex(ref, "/"); i > slash {
			ref = ref[:i]
		}
	}
	if slash := strings.Index(ref, "/"); slash >= 0 {
		firstSegment := ref[:slash]
		if strings.ContainsAny(firstSegment, ".:") {
			ref = ref[slash+1:]
		}
	}
	if !strings.Contains(ref, "/") {
		ref = "library/" + ref
	}
	return ref
}

// ExtractTag returns the tag component of an image reference, or "latest"
// if none is present (and the reference isn't pinned by digest).
func ExtractTag(imageRef string) string {
	ref := imageRef
	if strings.Contains(ref, "@") {
		return ""
	}
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		if slash := strings.LastIndex(ref, "/"); i > slash {
			return ref[i+1:]
		}
	}
	return "latest"
}
