package simplepresign

import (
	"net/http"
	"time"
)

// UploadRequest describes a file the caller intends to upload
type UploadRequest struct {
	Filename    string
	ContentType string
	FileSize    int64
}

// Capability is a presigned URL bound to a single object and method
type Capability struct {
	URL         string
	Method      string
	FileKey     string
	ContentType string
	ExpiresIn   time.Duration
	// Headers the client must send verbatim when replaying the URL
	Headers http.Header
}

// ObjectMeta is the blob store's view of a stored object
type ObjectMeta struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// FileList is the result of a listing
type FileList struct {
	Prefix string
	Files  []ObjectMeta
}

// Count returns the number of listed files
func (l *FileList) Count() int {
	return len(l.Files)
}
