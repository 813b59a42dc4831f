// Copyright 2025 Certen Protocol
//
// Package database provides sentinel errors for repository operations.

package database

import "errors"

// Sentinel errors for certificate archive operations.
var (
	// ErrCertificateNotFound is returned when a requested finality
	// certificate is not in the archive.
	ErrCertificateNotFound = errors.New("certificate not found")
)
