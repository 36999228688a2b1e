//go:build linux

package sandbox

// This file implements preset expansion.
//
// Presets are convenience bundles of filesystem policy mounts (RO/RW/Exclude)
// that approximate the access a `cargo` build actually needs. Presets never
// emit direct mounts; all output is expressed as policy mounts and then
// resolved against the host filesystem by the planner.
//
// Presets are applied in a fixed order for determinism.

import (
	"errors"
	"fmt"
	"strings"
)

// expandPresets expands preset toggles into policy mounts.
//
// Supported presets:
//   - @all (default)
//   - @base
//   - @caches
//   - @toolchain
//
// Presets can be negated by prefixing with '!'. For example, []string{"!@all"}
// disables all defaults.
//
// Note: A nil preset slice means "defaults"; use an explicit empty slice
// (or "!@all") to request no presets.
func expandPresets(presets []string, env Environment) ([]Mount, error) {
	enabled, err := resolvePresetToggles(presets)
	if err != nil {
		return nil, err
	}

	// Emit preset mounts in a fixed order for determinism.
	var mounts []Mount

	if enabled["@base"] {
		mounts = append(mounts,
			RW(env.WorkDir),
			RO(env.HomeDir),
			ExcludeTry("~/.ssh"),
			ExcludeTry("~/.gnupg"),
			ExcludeTry("~/.aws"),
			ExcludeTry("~/.netrc"),
		)
	}

	if enabled["@caches"] {
		// The crate registry cache and build artifact directory need to be
		// writable across invocations so repeated checks don't re-fetch or
		// re-compile every dependency from scratch.
		mounts = append(mounts,
			RWTry("~/.cargo/registry"),
			RWTry("~/.cargo/git"),
			RWTry("./target"),
		)
	}

	if enabled["@toolchain"] {
		// The rustc/cargo/linker toolchain install is read-only: a build
		// script has no business rewriting the compiler it's invoked under.
		mounts = append(mounts,
			ROTry("~/.rustup"),
			ROTry("~/.cargo/bin"),
			ROTry("~/.cargo/env"),
		)
	}

	return mounts, nil
}

// resolvePresetToggles computes the final enabled/disabled state for each preset.
//
// Toggle semantics are "last one wins". The @all macro expands to the default
// preset set.
func resolvePresetToggles(presets []string) (map[string]bool, error) {
	known := map[string]bool{
		"@all":       true,
		"@base":      true,
		"@caches":    true,
		"@toolchain": true,
	}

	// Default: @all enabled when presets are not specified.
	//
	// A nil slice means "use defaults". A non-nil but empty slice means "no presets".
	if presets == nil {
		presets = []string{"@all"}
	}

	state := make(map[string]bool)

	for _, name := range presets {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("unknown preset: empty preset name")
		}

		enable := true

		if strings.HasPrefix(name, "!") {
			enable = false
			name = strings.TrimPrefix(name, "!")
		}

		if !known[name] {
			return nil, fmt.Errorf("unknown preset: %s", name)
		}

		switch name {
		case "@all":
			// @all expands to the default preset set.
			for _, p := range []string{"@base", "@caches", "@toolchain"} {
				state[p] = enable
			}
		default:
			state[name] = enable
		}
	}

	return state, nil
}
