// internal/app/system/limits/limits.go
package limits

// Request body size limits for the JSON API.
// These limits help prevent memory exhaustion from oversized requests.
const (
	// MaxJSONBody is the maximum size of any API request body.
	MaxJSONBody = 1 << 20 // 1 MB

	// MaxSurveyAnswers caps the number of answers kept from one
	// peer-feedback submission.
	MaxSurveyAnswers = 200
)
