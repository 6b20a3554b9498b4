package sandbox

import (
	"embed"
	"encoding/json"
	"os"
	"path/filepath"

	"kiln/internal/overrides"
	"kiln/internal/services"
)

//go:embed templates/BuildEntry.cs templates/CaptureEntry.cs
var hookTemplates embed.FS

const (
	hookDir        = "Assets/Kiln"
	resourcesDir   = "Assets/Kiln/Resources"
	configFileName = "kiln_config.json"
	runtimePackage = "com.kiln.runtime"
)

// injectPatch writes the build hooks, the runtime config file, and the
// manifest pin into a discovered project root.
func injectPatch(root string, cfg overrides.Overrides, runtimeVersion string) error {
	if err := writeHooks(root); err != nil {
		return err
	}
	if err := writeRuntimeConfig(root, cfg); err != nil {
		return err
	}
	return pinRuntimePackage(root, runtimeVersion)
}

func writeHooks(root string) error {
	for _, name := range []string{"BuildEntry.cs", "CaptureEntry.cs"} {
		data, err := hookTemplates.ReadFile("templates/" + name)
		if err != nil {
			return services.Wrap(services.ErrTransient, "prepare", "inject-hooks", "embedded hook missing", err)
		}
		target := filepath.Join(root, filepath.FromSlash(hookDir), name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return services.Wrap(services.ErrTransient, "prepare", "inject-hooks", "could not create hook directory", err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return services.Wrap(services.ErrTransient, "prepare", "inject-hooks", "could not write hook", err)
		}
	}
	return nil
}

// writeRuntimeConfig places the validated config next to the hooks for the
// build pass and under Resources so the compiled game can load it at runtime.
func writeRuntimeConfig(root string, cfg overrides.Overrides) error {
	encoded, err := cfg.EncodeJSON()
	if err != nil {
		return services.Wrap(services.ErrTransient, "prepare", "inject-config", "could not encode runtime config", err)
	}
	targets := []string{
		filepath.Join(root, filepath.FromSlash(hookDir), configFileName),
		filepath.Join(root, filepath.FromSlash(resourcesDir), configFileName),
	}
	for _, target := range targets {
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return services.Wrap(services.ErrTransient, "prepare", "inject-config", "could not create config directory", err)
		}
		if err := os.WriteFile(target, []byte(encoded), 0o644); err != nil {
			return services.Wrap(services.ErrTransient, "prepare", "inject-config", "could not write runtime config", err)
		}
	}
	return nil
}

// pinRuntimePackage forces the manifest to the daemon's runtime package
// version, then drops the lock file and package cache so the engine resolves
// the pin instead of whatever the template shipped with.
func pinRuntimePackage(root, version string) error {
	manifestPath := filepath.Join(root, "Packages", "manifest.json")
	raw, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		// Templates without a package manifest build against whatever the
		// engine resolves on its own.
		return nil
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "prepare", "pin-runtime", "could not read Packages/manifest.json", err)
	}

	var manifest map[string]json.RawMessage
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return services.Wrap(services.ErrInvalidInput, "prepare", "pin-runtime", "Packages/manifest.json is not valid JSON", err)
	}

	deps := map[string]string{}
	if rawDeps, ok := manifest["dependencies"]; ok {
		if err := json.Unmarshal(rawDeps, &deps); err != nil {
			return services.Wrap(services.ErrInvalidInput, "prepare", "pin-runtime", "manifest dependencies are malformed", err)
		}
	}
	if deps[runtimePackage] == version {
		return nil
	}
	deps[runtimePackage] = version

	encodedDeps, err := json.Marshal(deps)
	if err != nil {
		return services.Wrap(services.ErrTransient, "prepare", "pin-runtime", "could not encode manifest", err)
	}
	manifest["dependencies"] = encodedDeps

	updated, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrTransient, "prepare", "pin-runtime", "could not encode manifest", err)
	}
	if err := os.WriteFile(manifestPath, append(updated, '\n'), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "prepare", "pin-runtime", "could not write manifest", err)
	}

	// Stale resolution artifacts would override the pin.
	_ = os.Remove(filepath.Join(root, "Packages", "packages-lock.json"))
	_ = os.RemoveAll(filepath.Join(root, "Library", "PackageCache"))
	return nil
}

// Engine entry points injected by writeHooks.
const (
	BuildWebMethod     = "Kiln.BuildEntry.BuildWeb"
	BuildAndroidMethod = "Kiln.BuildEntry.BuildAndroid"
	CaptureMethod      = "Kiln.CaptureEntry.Capture"
)

// ConfigRelPath is the injected runtime config file's path relative to the
// project root, slash separated.
func ConfigRelPath() string { return hookDir + "/" + configFileName }
