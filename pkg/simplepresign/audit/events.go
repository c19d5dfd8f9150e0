package audit

// Authentication records a credential verification attempt
func Authentication(userID string, err error) Record {
	return Record{
		EventType: EventAuthentication,
		UserID:    userID,
		Success:   err == nil,
		Error:     errString(err),
	}
}

// AuthorizationFailure records a permission check that failed
func AuthorizationFailure(userID, required, endpoint string) Record {
	return Record{
		EventType: EventAuthorizationFailure,
		UserID:    userID,
		Success:   false,
		Details: map[string]any{
			"required_permission": required,
			"endpoint":            endpoint,
		},
	}
}

// RateLimitExceeded records a denied admission
func RateLimitExceeded(userID, operation string, retryAfter int) Record {
	return Record{
		EventType: EventRateLimitExceeded,
		UserID:    userID,
		Success:   false,
		Details: map[string]any{
			"endpoint":            operation,
			"retry_after_seconds": retryAfter,
		},
	}
}

// PresignedURL records the outcome of a capability issuance
func PresignedURL(userID, operation, fileKey string, details map[string]any, err error) Record {
	d := map[string]any{
		"operation": operation,
		"file_key":  fileKey,
	}
	for k, v := range details {
		d[k] = v
	}
	return Record{
		EventType: EventPresignedURLGenerated,
		UserID:    userID,
		Success:   err == nil,
		Details:   d,
		Error:     errString(err),
	}
}

// FileOperation records a pass-through blob store operation
func FileOperation(userID, operation string, details map[string]any, err error) Record {
	d := map[string]any{"operation": operation}
	for k, v := range details {
		d[k] = v
	}
	return Record{
		EventType: EventFileOperation,
		UserID:    userID,
		Success:   err == nil,
		Details:   d,
		Error:     errString(err),
	}
}
