package release

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvmcloud/deployer/cryptoutils"
	"github.com/cvmcloud/deployer/interfaces"
)

var testDigest = interfaces.Digest{0xab, 0xcd}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuildSplitsPublicAndPrivateEnv(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	envFile := writeEnvFile(t, `
DATABASE_URL=postgres://db
API_ENDPOINT_PUBLIC=https://api.example.com
MNEMONIC=test test test junk
MNEMONIC_PUBLIC=also filtered
SECRET_TOKEN=hunter2
`)

	builder := NewBuilder(&key.PublicKey, nil)
	rel, err := builder.Build(BuildParams{
		Digest:       testDigest,
		Registry:     "docker.io/acme/app",
		EnvFile:      envFile,
		InstanceType: "tdx.medium",
	})
	require.NoError(t, err)

	require.Len(t, rel.Artifacts, 1)
	assert.Equal(t, testDigest, rel.Artifacts[0].Digest)
	assert.Equal(t, "docker.io/acme/app", rel.Artifacts[0].Registry)

	var publicEnv map[string]string
	require.NoError(t, json.Unmarshal(rel.PublicEnv, &publicEnv))
	assert.Equal(t, map[string]string{
		"API_ENDPOINT_PUBLIC": "https://api.example.com",
		"INSTANCE_TYPE":       "tdx.medium",
	}, publicEnv)

	plaintext, err := cryptoutils.DecryptEnvelope(key, string(rel.EncryptedEnv))
	require.NoError(t, err)

	var privateEnv map[string]string
	require.NoError(t, json.Unmarshal(plaintext, &privateEnv))
	assert.Equal(t, map[string]string{
		"DATABASE_URL": "postgres://db",
		"SECRET_TOKEN": "hunter2",
	}, privateEnv)
	assert.NotContains(t, privateEnv, "MNEMONIC")
}

func TestBuildWithAppIDUsesTokenFraming(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	appID := common.HexToAddress("0x1234567890AbcdEF1234567890aBcdef12345678")
	builder := NewBuilder(&key.PublicKey, nil)
	rel, err := builder.Build(BuildParams{
		Digest:       testDigest,
		Registry:     "docker.io/acme/app",
		InstanceType: "tdx.small",
		AppID:        &appID,
	})
	require.NoError(t, err)

	plaintext, err := cryptoutils.DecryptJWE(key, string(rel.EncryptedEnv))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(plaintext))
}

func TestBuildUpgradeDeadline(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	builder := NewBuilder(&key.PublicKey, nil)
	builder.now = func() time.Time { return fixed }

	rel, err := builder.Build(BuildParams{
		Digest:       testDigest,
		Registry:     "docker.io/acme/app",
		InstanceType: "tdx.medium",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(fixed.Add(time.Hour).Unix()), rel.UpgradeByTime)
}

func TestBuildMissingEnvFile(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	builder := NewBuilder(&key.PublicKey, nil)
	_, err = builder.Build(BuildParams{
		Digest:       testDigest,
		Registry:     "docker.io/acme/app",
		EnvFile:      "/does/not/exist.env",
		InstanceType: "tdx.medium",
	})

	var validationErr *interfaces.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}
