// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil resolves the paths of files given on the command line.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ReplaceTilde replaces a leading "~" or "~user" by the home directory of the current (or
// given) user. Other paths are returned unchanged.
func ReplaceTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	userName, rest, _ := strings.Cut(path[1:], "/")
	var home string
	if userName == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return "", errors.Wrapf(err, "resolving home directory in %q", path)
		}
	} else {
		usr, err := user.Lookup(userName)
		if err != nil {
			return "", errors.Wrapf(err, "resolving home directory of user %q in %q", userName, path)
		}
		home = usr.HomeDir
	}
	return filepath.Join(home, rest), nil
}

// ResolveFile returns the path with the tilde replaced, and an error if it is not an existing
// regular file.
func ResolveFile(path string) (string, error) {
	resolved, err := ReplaceTilde(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", errors.Wrapf(err, "file %q", path)
	}
	if !info.Mode().IsRegular() {
		return "", errors.Errorf("%q is not a regular file", path)
	}
	return resolved, nil
}
