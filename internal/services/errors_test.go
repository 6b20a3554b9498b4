package services_test

import (
	"errors"
	"fmt"
	"testing"

	"kiln/internal/services"
)

func TestWrapTagsSentinel(t *testing.T) {
	base := errors.New("exit status 1")
	err := services.Wrap(services.ErrProcessFailure, "build", "engine invocation", "see log tail", base)
	if !errors.Is(err, services.ErrProcessFailure) {
		t.Fatalf("expected ErrProcessFailure, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause to survive")
	}
}

func TestWrapNilMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "publish", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestMessageStripsSentinelPrefix(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "wrapped",
			err:  services.Wrap(services.ErrOutputMissing, "verify", "index.html", "engine exited 0 but produced nothing", nil),
			want: "verify: index.html: engine exited 0 but produced nothing",
		},
		{
			name: "plain",
			err:  fmt.Errorf("disk full"),
			want: "disk full",
		},
		{
			name: "nil",
			err:  nil,
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Message(tc.err); got != tc.want {
				t.Fatalf("Message = %q, want %q", got, tc.want)
			}
		})
	}
}
