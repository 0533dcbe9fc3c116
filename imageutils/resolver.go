package imageutils

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types"

	"github.com/cvmcloud/deployer/interfaces"
)

// RequiredPlatform is the single platform the confidential execution
// environment supports. Images built for anything else are rejected.
const RequiredPlatform = "linux/amd64"

// ImageEngine is the subset of the Docker engine API used for
// single-platform metadata inspection.
type ImageEngine interface {
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
}

// Resolver resolves image references using the registry protocol for
// manifests and a local Docker engine for single-platform inspection.
type Resolver struct {
	Engine   ImageEngine
	Registry *RegistryClient
	Log      *slog.Logger
}

// Resolve fetches the manifest for the reference and returns the content
// digest for the required platform along with the canonical registry name.
func (r *Resolver) Resolve(ctx context.Context, imageRef string) (*interfaces.ResolvedImage, error) {
	registryName, err := ExtractRegistryName(imageRef)
	if err != nil {
		return nil, err
	}
	host, repo, tagOrDigest, err := splitReference(imageRef)
	if err != nil {
		return nil, err
	}

	doc, _, err := r.Registry.FetchManifest(ctx, host, repo, tagOrDigest)
	if err != nil {
		return nil, err
	}

	if doc.isIndex() {
		digest, err := selectFromIndex(imageRef, doc.Manifests)
		if err != nil {
			return nil, err
		}
		return resolvedImage(digest, registryName)
	}

	return r.resolveSingle(ctx, imageRef, registryName, doc)
}

// resolveSingle handles a single-platform manifest by inspecting the owning
// image through the engine. The digest comes from the image's
// registry-qualified digest reference, falling back to the manifest's config
// digest.
func (r *Resolver) resolveSingle(ctx context.Context, imageRef, registryName string, doc *manifestDocument) (*interfaces.ResolvedImage, error) {
	inspect, _, err := r.Engine.ImageInspectWithRaw(ctx, imageRef)
	if err != nil {
		return nil, &interfaces.NetworkError{Op: "image inspect", Err: err}
	}

	platform := inspect.Os + "/" + inspect.Architecture
	if inspect.Variant != "" {
		platform += "/" + inspect.Variant
	}
	if platform != RequiredPlatform {
		return nil, &interfaces.PlatformMismatchError{
			Reference:      imageRef,
			Required:       RequiredPlatform,
			FoundPlatforms: []string{platform},
		}
	}

	if digest, ok := repoDigestFor(inspect.RepoDigests, registryName); ok {
		return resolvedImage(digest, registryName)
	}
	if doc.Config != nil && doc.Config.Digest != "" {
		if r.Log != nil {
			r.Log.Debug("no matching repo digest, falling back to manifest config digest", "image", imageRef)
		}
		return resolvedImage(doc.Config.Digest, registryName)
	}
	return nil, &interfaces.ValidationError{Field: "image", Value: imageRef,
		Reason: "no content digest available; push the image before deploying"}
}

// NetworkResolver resolves image references purely over the registry
// protocol, with no local image engine required. It is functionally
// equivalent to Resolver for both multi- and single-platform manifests.
type NetworkResolver struct {
	Registry *RegistryClient
	Log      *slog.Logger
}

// Resolve fetches the manifest for the reference and returns the content
// digest for the required platform along with the canonical registry name.
func (r *NetworkResolver) Resolve(ctx context.Context, imageRef string) (*interfaces.ResolvedImage, error) {
	registryName, err := ExtractRegistryName(imageRef)
	if err != nil {
		return nil, err
	}
	host, repo, tagOrDigest, err := splitReference(imageRef)
	if err != nil {
		return nil, err
	}

	doc, manifestDigest, err := r.Registry.FetchManifest(ctx, host, repo, tagOrDigest)
	if err != nil {
		return nil, err
	}

	if doc.isIndex() {
		digest, err := selectFromIndex(imageRef, doc.Manifests)
		if err != nil {
			return nil, err
		}
		return resolvedImage(digest, registryName)
	}

	if doc.Config == nil || doc.Config.Digest == "" {
		return nil, &interfaces.ValidationError{Field: "image", Value: imageRef, Reason: "manifest carries no config descriptor"}
	}

	// The platform of a single-platform manifest lives in the image config
	// blob, not the manifest itself.
	configBlob, err := r.Registry.FetchBlob(ctx, host, repo, doc.Config.Digest)
	if err != nil {
		return nil, err
	}
	var platform platformSpec
	if err := json.Unmarshal(configBlob, &platform); err != nil {
		return nil, fmt.Errorf("could not parse image config: %w", err)
	}

	if platform.String() != RequiredPlatform {
		return nil, &interfaces.PlatformMismatchError{
			Reference:      imageRef,
			Required:       RequiredPlatform,
			FoundPlatforms: []string{platform.String()},
		}
	}

	digest := manifestDigest
	if digest == "" {
		digest = doc.Config.Digest
	}
	return resolvedImage(digest, registryName)
}

// selectFromIndex picks the required platform's digest out of a manifest
// index. Attestation pseudo-entries (unknown/unknown) are ignored. When no
// entry matches, the error enumerates every platform found.
func selectFromIndex(imageRef string, entries []manifestDescriptor) (string, error) {
	var found []string
	for _, entry := range entries {
		if entry.Platform == nil {
			continue
		}
		platform := entry.Platform.String()
		if strings.HasPrefix(platform, "unknown/") {
			continue
		}
		if platform == RequiredPlatform {
			return entry.Digest, nil
		}
		found = append(found, platform)
	}

	return "", &interfaces.PlatformMismatchError{
		Reference:      imageRef,
		Required:       RequiredPlatform,
		FoundPlatforms: found,
	}
}

// repoDigestFor finds the digest of the RepoDigest entry matching the
// canonical registry name.
func repoDigestFor(repoDigests []string, registryName string) (string, bool) {
	for _, rd := range repoDigests {
		name, digest, ok := strings.Cut(rd, "@")
		if !ok {
			continue
		}
		canonical, err := ExtractRegistryName(name)
		if err != nil {
			continue
		}
		if canonical == registryName {
			return digest, true
		}
	}
	return "", false
}

func resolvedImage(digest, registryName string) (*interfaces.ResolvedImage, error) {
	parsed, err := interfaces.NewDigestFromHex(digest)
	if err != nil {
		return nil, err
	}
	return &interfaces.ResolvedImage{
		Digest:   parsed,
		Registry: registryName,
		Platform: RequiredPlatform,
	}, nil
}
