package testsupport

import (
	"testing"

	"kiln/internal/config"
	"kiln/internal/jobs"
)

// MustOpenStore opens a job store against the test config and closes it on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()
	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
