package app

import (
	"bytes"
	"os"
	"testing"

	"github.com/vk/pipestack/internal/hcl_adapter"
	"github.com/vk/pipestack/internal/testutil"
)

// SetupAppTest creates a new app instance over the stack files in dir. It
// returns the app, its command output and its log output.
func SetupAppTest(t *testing.T, dir string, opts ...hcl_adapter.Option) (*App, *bytes.Buffer, *testutil.SafeBuffer) {
	t.Helper()

	cfg, err := NewConfig(Config{StackPaths: []string{dir}, LogLevel: "debug"})
	if err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	out := &bytes.Buffer{}
	logBuffer := &testutil.SafeBuffer{}
	testApp := NewApp(out, logBuffer, cfg, hcl_adapter.NewLoader(opts...))

	t.Cleanup(func() {
		if os.Getenv("PIPESTACK_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, out, logBuffer
}
