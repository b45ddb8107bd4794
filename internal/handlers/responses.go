package handlers

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeaderStale marks a response served from cache after a failed upstream
// refresh. The body still carries the last known data.
const HeaderStale = "X-Convosync-Stale"
