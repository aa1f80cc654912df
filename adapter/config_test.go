package adapter

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(t.TempDir())
	assert.Equal(t, nil, err)
	assert.Equal(t, "ws://127.0.0.1:8697/pair", config.Url)
	assert.Equal(t, "easel", config.App)
	assert.Equal(t, 5*time.Second, config.ReconnectTimeout)

	// pairing is required before connecting
	_, err = config.Auth()
	assert.NotEqual(t, nil, err)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	secret := hex.EncodeToString([]byte("pairing secret"))
	t.Setenv("EASEL_SECRET", secret)
	t.Setenv("EASEL_URL", "ws://127.0.0.1:9999/pair")

	config, err := LoadConfig(t.TempDir())
	assert.Equal(t, nil, err)
	assert.Equal(t, "ws://127.0.0.1:9999/pair", config.Url)

	auth, err := config.Auth()
	assert.Equal(t, nil, err)
	assert.Equal(t, "easel", auth.App)
	assert.Equal(t, []byte("pairing secret"), auth.Secret)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := "url: ws://10.0.0.2:8697/pair\napp: studio\nsecret: " + hex.EncodeToString([]byte("x")) + "\n"
	if err := os.WriteFile(filepath.Join(dir, "easel.yml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(dir)
	assert.Equal(t, nil, err)
	assert.Equal(t, "ws://10.0.0.2:8697/pair", config.Url)
	assert.Equal(t, "studio", config.App)

	settings := config.Settings()
	assert.Equal(t, DefaultHostAdapterSettings().PingTimeout, settings.PingTimeout)
}

func TestConfigRejectsNonHexSecret(t *testing.T) {
	config := &Config{App: "easel", Secret: "not hex!"}
	_, err := config.Auth()
	assert.NotEqual(t, nil, err)
}
