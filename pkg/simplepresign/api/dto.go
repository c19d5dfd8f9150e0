package api

import "time"

// UploadURLRequest asks for an upload capability
type UploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
}

// DownloadURLRequest asks for a download capability
type DownloadURLRequest struct {
	FileKey string `json:"file_key"`
}

// PresignedURLResponse carries an issued capability
type PresignedURLResponse struct {
	PresignedURL string `json:"presigned_url"`
	ExpiresIn    int    `json:"expires_in"`
	FileKey      string `json:"file_key"`
	Method       string `json:"method"`
	// Headers the client must send with the presigned request
	UploadFields map[string]string `json:"upload_fields,omitempty"`
}

// FileInfo describes a stored object
type FileInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag"`
}

// FileListResponse is the body of a listing
type FileListResponse struct {
	Files  []FileInfo `json:"files"`
	Count  int        `json:"count"`
	Prefix string     `json:"prefix"`
}

// DeleteResponse confirms a deletion
type DeleteResponse struct {
	Message string `json:"message"`
	FileKey string `json:"file_key"`
}

// HealthResponse reports service health
type HealthResponse struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	S3Connection string    `json:"s3_connection"`
}

// IndexResponse describes the API
type IndexResponse struct {
	Message          string            `json:"message"`
	Version          string            `json:"version"`
	Endpoints        map[string]string `json:"endpoints"`
	AllowedFileTypes []string          `json:"allowed_file_types"`
	MaxFileSize      int64             `json:"max_file_size,omitempty"`
	VirusScanning    bool              `json:"virus_scanning"`
}
