package release

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/cvmcloud/deployer/cryptoutils"
	"github.com/cvmcloud/deployer/interfaces"
)

// UpgradeGraceWindow is how long instances have to pick up a new release.
const UpgradeGraceWindow = time.Hour

// BuildParams carries everything needed to compose a release.
type BuildParams struct {
	// Digest and Registry come from image resolution.
	Digest   interfaces.Digest
	Registry string

	// EnvFile is an optional dotenv-format file path.
	EnvFile string

	// InstanceType selects the machine type and is always published in the
	// public environment.
	InstanceType string

	// AppID, when known (upgrades), is carried as a protected header on the
	// encrypted environment.
	AppID *common.Address
}

// Builder composes releases, sealing private configuration under the target
// environment's published encryption key.
type Builder struct {
	EncryptionKey *rsa.PublicKey
	Log           *slog.Logger

	now func() time.Time
}

// NewBuilder creates a release builder for the given environment encryption
// key.
func NewBuilder(encryptionKey *rsa.PublicKey, log *slog.Logger) *Builder {
	return &Builder{
		EncryptionKey: encryptionKey,
		Log:           log,
		now:           time.Now,
	}
}

// Build parses the optional environment file, splits it into public and
// private maps, encrypts the private map, and composes the release. The
// upgrade-by deadline is set to now plus the grace window.
func (b *Builder) Build(params BuildParams) (*interfaces.Release, error) {
	publicEnv, privateEnv, err := parseEnvFile(params.EnvFile)
	if err != nil {
		return nil, err
	}
	publicEnv[interfaces.InstanceTypeEnvKey] = params.InstanceType

	publicJSON, err := json.Marshal(publicEnv)
	if err != nil {
		return nil, fmt.Errorf("could not encode public env: %w", err)
	}

	encryptedEnv, err := b.encryptPrivateEnv(privateEnv, params.AppID)
	if err != nil {
		return nil, err
	}

	upgradeBy := uint64(b.now().Add(UpgradeGraceWindow).Unix())

	rel, err := interfaces.NewRelease(interfaces.Artifact{
		Digest:   params.Digest,
		Registry: params.Registry,
	}, upgradeBy, publicJSON, encryptedEnv)
	if err != nil {
		return nil, err
	}

	if b.Log != nil {
		b.Log.Debug("composed release",
			"digest", params.Digest.String(),
			"registry", params.Registry,
			"public_keys", len(publicEnv),
			"private_keys", len(privateEnv),
			"upgrade_by", upgradeBy)
	}
	return rel, nil
}

// encryptPrivateEnv seals the private map as a JSON object. When the app id
// is known it is carried as a protected token header; otherwise the
// length-prefixed envelope framing is used. Both forms are accepted
// downstream.
func (b *Builder) encryptPrivateEnv(privateEnv map[string]string, appID *common.Address) ([]byte, error) {
	privateJSON, err := json.Marshal(privateEnv)
	if err != nil {
		return nil, fmt.Errorf("could not encode private env: %w", err)
	}

	if appID != nil {
		token, err := cryptoutils.EncryptJWE(b.EncryptionKey, privateJSON, map[string]interface{}{
			"app": appID.Hex(),
		})
		if err != nil {
			return nil, fmt.Errorf("could not encrypt private env: %w", err)
		}
		return []byte(token), nil
	}

	blob, err := cryptoutils.EncryptEnvelope(b.EncryptionKey, privateJSON)
	if err != nil {
		return nil, fmt.Errorf("could not encrypt private env: %w", err)
	}
	return []byte(blob), nil
}

// parseEnvFile reads a dotenv file and routes each key: keys ending in the
// public suffix go to the public map, the reserved mnemonic key is dropped
// regardless of suffix, and everything else is private.
func parseEnvFile(path string) (publicEnv, privateEnv map[string]string, err error) {
	publicEnv = map[string]string{}
	privateEnv = map[string]string{}
	if path == "" {
		return publicEnv, privateEnv, nil
	}

	env, err := godotenv.Read(path)
	if err != nil {
		return nil, nil, &interfaces.ValidationError{Field: "env-file", Value: path, Reason: err.Error()}
	}

	for key, value := range env {
		if strings.TrimSuffix(key, interfaces.PublicEnvSuffix) == interfaces.MnemonicEnvKey {
			continue
		}
		if strings.HasSuffix(key, interfaces.PublicEnvSuffix) {
			publicEnv[key] = value
		} else {
			privateEnv[key] = value
		}
	}
	return publicEnv, privateEnv, nil
}
