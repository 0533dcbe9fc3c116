package imageutils

import (
	"github.com/distribution/reference"

	"github.com/cvmcloud/deployer/interfaces"
)

// ExtractRegistryName derives the canonical registry-qualified name for an
// image reference: tag and digest suffixes are stripped, and bare
// single-segment references gain the implicit default registry prefix
// ("nginx:1.25" becomes "docker.io/library/nginx").
func ExtractRegistryName(imageRef string) (string, error) {
	named, err := reference.ParseNormalizedNamed(imageRef)
	if err != nil {
		return "", &interfaces.ValidationError{Field: "image", Value: imageRef, Reason: err.Error()}
	}
	return reference.TrimNamed(named).Name(), nil
}

// splitReference breaks an image reference into registry host, repository
// path, and the tag or digest to fetch (tag defaults to "latest").
func splitReference(imageRef string) (host, repo, tagOrDigest string, err error) {
	named, err := reference.ParseNormalizedNamed(imageRef)
	if err != nil {
		return "", "", "", &interfaces.ValidationError{Field: "image", Value: imageRef, Reason: err.Error()}
	}

	host = reference.Domain(named)
	repo = reference.Path(named)
	tagOrDigest = "latest"
	if canonical, ok := named.(reference.Canonical); ok {
		tagOrDigest = canonical.Digest().String()
	} else if tagged, ok := named.(reference.Tagged); ok {
		tagOrDigest = tagged.Tag()
	}
	return host, repo, tagOrDigest, nil
}
