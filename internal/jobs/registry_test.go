package jobs_test

import (
	"sync"
	"testing"

	"kiln/internal/jobs"
)

func TestRegistrySingleHandlePerJob(t *testing.T) {
	reg := jobs.NewRegistry()

	if !reg.Register("job-1", func() {}) {
		t.Fatal("first register should succeed")
	}
	if reg.Register("job-1", func() {}) {
		t.Fatal("second register for same job should fail")
	}
	reg.Unregister("job-1")
	if !reg.Register("job-1", func() {}) {
		t.Fatal("register after unregister should succeed")
	}
}

func TestRegistryKillInvokesHandle(t *testing.T) {
	reg := jobs.NewRegistry()
	killed := false
	reg.Register("job-2", func() { killed = true })

	if !reg.Kill("job-2") {
		t.Fatal("expected kill to find a handle")
	}
	if !killed {
		t.Fatal("expected kill function to run")
	}
	if reg.Kill("job-2") {
		t.Fatal("second kill should find nothing")
	}
	if reg.Active("job-2") {
		t.Fatal("handle should be removed after kill")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := jobs.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%8))
			reg.Register(id, func() {})
			reg.Kill(id)
		}(i)
	}
	wg.Wait()
}
