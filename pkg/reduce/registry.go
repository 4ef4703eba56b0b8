package reduce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"
)

const defTag = "latest"

// RegistryConfig locates reducer modules shipped as OCI artifacts.
type RegistryConfig struct {
	URL          string `env:"URL"          envDefault:"localhost:5000"`
	Authenticate bool   `env:"AUTHENTICATE" envDefault:"false"`
	Token        string `env:"TOKEN"        envDefault:""`
	Username     string `env:"USERNAME"     envDefault:""`
	Password     string `env:"PASSWORD"     envDefault:""`
}

func (c *RegistryConfig) Validate() error {
	if c.URL == "" {
		return errors.New("registry url is required")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("registry url is not a valid URL: %w", err)
	}

	if c.Authenticate {
		hasToken := c.Token != ""
		hasCredentials := c.Username != "" && c.Password != ""
		if !hasToken && !hasCredentials {
			return errors.New("either a token or username/password must be provided when authentication is enabled")
		}
	}

	return nil
}

// FetchModule pulls the named artifact, "repo/name" or "repo/name:tag", and
// returns its largest layer, which for single-file Wasm artifacts is the
// module binary.
func (c *RegistryConfig) FetchModule(ctx context.Context, module string) ([]byte, error) {
	name, tag := module, defTag
	if i := strings.LastIndex(module, ":"); i > 0 {
		name, tag = module[:i], module[i+1:]
	}

	repo, err := remote.NewRepository(fmt.Sprintf("%s/%s", c.URL, name))
	if err != nil {
		return nil, fmt.Errorf("failed to create repository for %s: %w", name, err)
	}
	c.setupAuthentication(repo)

	manifest, err := c.fetchManifest(ctx, repo, name, tag)
	if err != nil {
		return nil, err
	}

	layer, err := findLargestLayer(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to find module layer for %s: %w", name, err)
	}

	reader, err := repo.Fetch(ctx, layer)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch module layer for %s: %w", name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read module layer for %s: %w", name, err)
	}

	return data, nil
}

func (c *RegistryConfig) setupAuthentication(repo *remote.Repository) {
	if !c.Authenticate {
		return
	}

	var cred auth.Credential
	if c.Username != "" && c.Password != "" {
		cred = auth.Credential{
			Username: c.Username,
			Password: c.Password,
		}
	} else if c.Token != "" {
		cred = auth.Credential{
			Username:    c.Username,
			AccessToken: c.Token,
		}
	}

	repo.Client = &auth.Client{
		Client:     retry.DefaultClient,
		Cache:      auth.NewCache(),
		Credential: auth.StaticCredential(c.URL, cred),
	}
}

func (c *RegistryConfig) fetchManifest(ctx context.Context, repo *remote.Repository, name, tag string) (*ocispec.Manifest, error) {
	descriptor, err := repo.Resolve(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest for %s: %w", name, err)
	}

	reader, err := repo.Fetch(ctx, descriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest for %s: %w", name, err)
	}
	defer reader.Close()

	manifestData, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for %s: %w", name, err)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for %s: %w", name, err)
	}

	return &manifest, nil
}

func findLargestLayer(manifest *ocispec.Manifest) (ocispec.Descriptor, error) {
	var largest ocispec.Descriptor
	var maxSize int64

	for _, layer := range manifest.Layers {
		if layer.Size > maxSize {
			maxSize = layer.Size
			largest = layer
		}
	}

	if largest.Size == 0 {
		return ocispec.Descriptor{}, errors.New("no valid layers found in manifest")
	}

	return largest, nil
}
