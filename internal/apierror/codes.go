package apierror

// Error type URIs following the urn:healthlytics:error:* pattern.
// These are used as the "type" field in RFC 9457 Problem Details.
const (
	// TypeValidation indicates request validation failed (400)
	TypeValidation = "urn:healthlytics:error:validation"

	// TypeBadRequest indicates a malformed request body (400)
	TypeBadRequest = "urn:healthlytics:error:bad_request"

	// TypeUnauthorized indicates a missing or wrong trigger key (401)
	TypeUnauthorized = "urn:healthlytics:error:unauthorized"

	// TypeRunInProgress indicates another analytics run holds the pipeline (409)
	TypeRunInProgress = "urn:healthlytics:error:run_in_progress"

	// TypeConfiguration indicates the service is missing required settings (500)
	TypeConfiguration = "urn:healthlytics:error:configuration"

	// TypeInternal indicates an unexpected server error (500)
	TypeInternal = "urn:healthlytics:error:internal"
)

// Titles for each error type - human-readable summaries
const (
	TitleValidation    = "Validation Error"
	TitleBadRequest    = "Bad Request"
	TitleUnauthorized  = "Authentication Required"
	TitleRunInProgress = "Run In Progress"
	TitleConfiguration = "Configuration Error"
	TitleInternal      = "Internal Server Error"
)
