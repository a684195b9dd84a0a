package common

import (
	"github.com/google/uuid"
)

// NewBlobID generates a unique blob ID with the "blob_" prefix
// Format: blob_<uuid>
func NewBlobID() string {
	return "blob_" + uuid.New().String()
}

// NewJobID generates a unique batch job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewChunkID generates a unique chunk ID with the "chunk_" prefix
// Format: chunk_<uuid>
func NewChunkID() string {
	return "chunk_" + uuid.New().String()
}
