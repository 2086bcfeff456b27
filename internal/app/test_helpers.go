package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/cmipconv/internal/hcl"
	"github.com/vk/cmipconv/internal/registry"
	"github.com/vk/cmipconv/internal/testutil"
)

// SetupAppTest validates cfg and creates a new app instance for system
// testing. Console output is captured in the returned buffer.
func SetupAppTest(t *testing.T, cfg Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	appConfig, err := NewConfig(cfg)
	require.NoError(t, err)

	logBuffer := &testutil.SafeBuffer{}
	testApp, err := NewApp(logBuffer, appConfig, hcl.NewLoader(), modules...)
	require.NoError(t, err)

	t.Cleanup(func() {
		testApp.Close()
		if os.Getenv("CMIPCONV_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
