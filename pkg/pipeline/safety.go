package pipeline

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrUnsafeScript marks a script that touches the filesystem, network,
// process control, or dynamic execution. Nothing downstream repairs or
// retries this.
var ErrUnsafeScript = errors.New("script contains a disallowed construct")

// Matching is plain substring over the final text; a hit anywhere, including
// inside comments or string literals, rejects the script.
var unsafePatterns = []string{
	"import os",
	"from os",
	"import sys",
	"from sys",
	"import subprocess",
	"from subprocess",
	"subprocess.",
	"import shutil",
	"from shutil",
	"import socket",
	"from socket",
	"import requests",
	"import urllib",
	"from urllib",
	"import http",
	"from http",
	"import pathlib",
	"from pathlib",
	"open(",
	"eval(",
	"exec(",
	"__import__",
	"compile(",
	"globals(",
	"locals(",
}

// CheckSafety scans the script against the denylist and returns
// ErrUnsafeScript naming the first matched pattern, or nil.
func CheckSafety(code string) error {
	for _, pattern := range unsafePatterns {
		if strings.Contains(code, pattern) {
			log.WithField("pattern", pattern).Warn("Rejecting unsafe script")
			return fmt.Errorf("%w: %q", ErrUnsafeScript, pattern)
		}
	}
	return nil
}
