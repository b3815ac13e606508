package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Submission module errors
// 12000-12999: Judge callback & ingestion errors
// 13000-13999: Contest module errors
// 14000-14999: Realtime & notification errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10004
	ServiceUnavailable  ErrorCode = 10005
	Timeout             ErrorCode = 10006

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10102

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10302

	// Upstream errors (10400-10499)
	StorageError       ErrorCode = 10400
	PresignFailed      ErrorCode = 10401
	JudgeUpstreamError ErrorCode = 10402
	EventPublishFailed ErrorCode = 10403

	// ========== Submission Module Errors (11000-11999) ==========

	// Dispatch (11000-11099)
	ProblemNotFound        ErrorCode = 11000
	ProblemHasNoTestcases  ErrorCode = 11001
	SubmissionCreateFailed ErrorCode = 11002
	CodeTooLarge           ErrorCode = 11003
	LanguageNotSupported   ErrorCode = 11004
	SubmitTooFrequently    ErrorCode = 11005
	DuplicateSubmission    ErrorCode = 11006

	// Lookup (11100-11199)
	SubmissionNotFound ErrorCode = 11100
	TestcaseNotFound   ErrorCode = 11101

	// ========== Judge Callback Errors (12000-12999) ==========

	// Ingestion (12000-12099)
	CallbackInFlight          ErrorCode = 12000
	CallbackInvalid           ErrorCode = 12001
	SubmittedTestcaseNotFound ErrorCode = 12002
	VerdictUpdateFailed       ErrorCode = 12003
	UnknownJudgeStatus        ErrorCode = 12004

	// Scratch runs (12100-12199)
	RunDispatchFailed ErrorCode = 12100

	// ========== Contest Module Errors (13000-13999) ==========

	ContestNotFound   ErrorCode = 13000
	ContestNotStarted ErrorCode = 13001
	ContestEnded      ErrorCode = 13002

	// ========== Realtime Errors (14000-14999) ==========

	SubscribeFailed ErrorCode = 14000
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	// Cache
	CacheError: "Cache operation failed",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	// Upstream
	StorageError:       "Object storage operation failed",
	PresignFailed:      "Failed to issue signed URL",
	JudgeUpstreamError: "Judge service request failed",
	EventPublishFailed: "Failed to publish event",

	// Submission
	ProblemNotFound:        "Problem not found",
	ProblemHasNoTestcases:  "Problem has no testcases",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	SubmitTooFrequently:    "Submitting too frequently, please wait",
	DuplicateSubmission:    "Identical submission is already being dispatched",
	SubmissionNotFound:     "Submission not found",
	TestcaseNotFound:       "Testcase not found",

	// Judge callback
	CallbackInFlight:          "Callback for this testcase is already being processed",
	CallbackInvalid:           "Malformed judge callback",
	SubmittedTestcaseNotFound: "Submitted testcase not found",
	VerdictUpdateFailed:       "Failed to update submission verdict",
	UnknownJudgeStatus:        "Unknown judge status code",

	// Scratch runs
	RunDispatchFailed: "Failed to dispatch run",

	// Contest
	ContestNotFound:   "Contest not found",
	ContestNotStarted: "Contest has not started yet",
	ContestEnded:      "Contest has ended",

	// Realtime
	SubscribeFailed: "Failed to subscribe",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == RecordNotFound, c == ProblemNotFound, c == SubmissionNotFound,
		c == TestcaseNotFound, c == SubmittedTestcaseNotFound, c == ContestNotFound:
		return 404
	case c == CallbackInFlight, c == DuplicateSubmission:
		return 409
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == ServiceUnavailable:
		return 503
	case c == StorageError, c == PresignFailed, c == JudgeUpstreamError, c == RunDispatchFailed:
		return 502
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == CallbackInvalid, c == UnknownJudgeStatus,
		c == CodeTooLarge, c == LanguageNotSupported, c == ProblemHasNoTestcases,
		c == ContestNotStarted, c == ContestEnded:
		return 400
	default:
		return 500
	}
}
