// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Initial reference and motivation taken from
// https://gitlab.com/project-emco/core/emco-base/-/blob/main/src/orchestrator/pkg/infra/db

package db

const (
	defaultSourceIdentifier = "StorageProxy"
)

const (
	// default chunk size used for GridFS file stores
	defaultFileChunkSize = 255 * 1024
)
