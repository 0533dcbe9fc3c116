package imageutils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cvmcloud/deployer/interfaces"
)

// Media types accepted when fetching manifests, covering both the legacy
// Docker schema and OCI.
const (
	mediaTypeDockerManifest = "application/vnd.docker.distribution.manifest.v2+json"
	mediaTypeDockerIndex    = "application/vnd.docker.distribution.manifest.list.v2+json"
	mediaTypeOCIManifest    = "application/vnd.oci.image.manifest.v1+json"
	mediaTypeOCIIndex       = "application/vnd.oci.image.index.v1+json"
)

const (
	defaultRegistryHost = "docker.io"
	hubRegistryEndpoint = "https://registry-1.docker.io"
	hubTokenEndpoint    = "https://auth.docker.io/token?service=registry.docker.io"
)

// platformSpec is the platform object carried by manifest index entries and
// image config blobs.
type platformSpec struct {
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	Variant      string `json:"variant,omitempty"`
}

func (p platformSpec) String() string {
	s := p.OS + "/" + p.Architecture
	if p.Variant != "" {
		s += "/" + p.Variant
	}
	return s
}

// manifestDescriptor is one entry of a manifest index, or the config
// descriptor of an image manifest.
type manifestDescriptor struct {
	MediaType string        `json:"mediaType"`
	Digest    string        `json:"digest"`
	Platform  *platformSpec `json:"platform,omitempty"`
}

// manifestDocument is a fetched manifest: either a multi-platform index
// (Manifests populated) or a single-platform image manifest (Config
// populated).
type manifestDocument struct {
	MediaType string               `json:"mediaType"`
	Manifests []manifestDescriptor `json:"manifests,omitempty"`
	Config    *manifestDescriptor  `json:"config,omitempty"`
}

// isIndex reports whether the document is a multi-platform manifest index.
func (m *manifestDocument) isIndex() bool {
	return m.MediaType == mediaTypeDockerIndex || m.MediaType == mediaTypeOCIIndex || len(m.Manifests) > 0
}

// RegistryClient fetches manifests and blobs over the registry v2 HTTP
// protocol. For the default public registry an anonymous token exchange
// precedes the manifest fetch.
type RegistryClient struct {
	// HTTPClient defaults to http.DefaultClient when nil.
	HTTPClient *http.Client

	// BaseURL overrides the registry endpoint derived from the reference
	// host. Used by tests.
	BaseURL string

	// TokenURL overrides the public-registry token endpoint. Used by tests.
	TokenURL string
}

func (c *RegistryClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *RegistryClient) endpointFor(host string) string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if host == defaultRegistryHost {
		return hubRegistryEndpoint
	}
	return "https://" + host
}

// token performs the anonymous pull-scope token exchange for the default
// public registry. Other registries are queried without credentials.
func (c *RegistryClient) token(ctx context.Context, host, repo string) (string, error) {
	if host != defaultRegistryHost {
		return "", nil
	}

	endpoint := c.TokenURL
	if endpoint == "" {
		endpoint = hubTokenEndpoint
	}
	tokenURL := fmt.Sprintf("%s&scope=%s", endpoint, url.QueryEscape("repository:"+repo+":pull"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", &interfaces.NetworkError{Op: "registry token exchange", URL: tokenURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &interfaces.NetworkError{Op: "registry token exchange", URL: tokenURL,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("could not parse token response: %w", err)
	}
	return parsed.Token, nil
}

// FetchManifest retrieves the manifest or manifest index for a repository
// reference. It returns the parsed document and the registry-reported
// manifest digest (the Docker-Content-Digest header) when present.
func (c *RegistryClient) FetchManifest(ctx context.Context, host, repo, tagOrDigest string) (*manifestDocument, string, error) {
	bearer, err := c.token(ctx, host, repo)
	if err != nil {
		return nil, "", err
	}

	manifestURL := fmt.Sprintf("%s/v2/%s/manifests/%s", c.endpointFor(host), repo, tagOrDigest)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", strings.Join([]string{
		mediaTypeDockerIndex,
		mediaTypeOCIIndex,
		mediaTypeDockerManifest,
		mediaTypeOCIManifest,
	}, ", "))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, "", &interfaces.NetworkError{Op: "manifest fetch", URL: manifestURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", &interfaces.NetworkError{Op: "manifest fetch", URL: manifestURL,
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))}
	}

	var doc manifestDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, "", fmt.Errorf("could not parse manifest: %w", err)
	}
	if doc.MediaType == "" {
		doc.MediaType = resp.Header.Get("Content-Type")
	}
	return &doc, resp.Header.Get("Docker-Content-Digest"), nil
}

// FetchBlob retrieves a blob (for example an image config) by digest.
func (c *RegistryClient) FetchBlob(ctx context.Context, host, repo, digest string) ([]byte, error) {
	bearer, err := c.token(ctx, host, repo)
	if err != nil {
		return nil, err
	}

	blobURL := fmt.Sprintf("%s/v2/%s/blobs/%s", c.endpointFor(host), repo, digest)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, blobURL, nil)
	if err != nil {
		return nil, err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &interfaces.NetworkError{Op: "blob fetch", URL: blobURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &interfaces.NetworkError{Op: "blob fetch", URL: blobURL,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return io.ReadAll(resp.Body)
}
