// Package presigned signs and verifies HMAC capability URLs for blob stores
// that cannot presign natively, such as the in-memory backend.
//
// A signed URL carries its expiry and an HMAC-SHA256 over
// METHOD|KEY|EXPIRES|CONTENT-TYPE:
//
//	signer := presigned.New(presigned.WithSecretKey("secret"), presigned.WithBaseURL("http://localhost:8000/blobs"))
//	u, err := signer.Sign(http.MethodPut, "uploads/abc.pdf", "application/pdf", 10*time.Minute)
//	// http://localhost:8000/blobs/uploads/abc.pdf?expires=1696789012&signature=...
//
// Verify checks the same URL for a given method and content type.
package presigned
