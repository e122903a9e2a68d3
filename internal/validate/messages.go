package validate

// User-facing messages. Every validation failure and generic error shown to
// a user comes from this table.
const (
	MsgRequired           = "This field is required"
	MsgInvalidEmail       = "Please enter a valid email address"
	MsgWeakPassword       = "Password must be at least 6 characters long"
	MsgInvalidTitle       = "Title must be between 3-100 characters"
	MsgInvalidDescription = "Description must be between 10-1000 characters"
	MsgInvalidURL         = "Please enter a valid URL"
	MsgSelectRole         = "Please select a role"
	MsgInvalidStatus      = "Please choose a valid status"
	MsgNetworkError       = "Network error. Please check your connection."
	MsgSystemError        = "System error. Please refresh the page."
	MsgPermissionDenied   = "You don't have permission to perform this action"
	MsgUnauthorized       = "Please login to continue"
	MsgNotFound           = "Requested resource not found"
	MsgStillLoading       = "System is still loading. Please wait a moment and try again."
	MsgDeactivated        = "Your account has been deactivated. Please contact support."
	MsgProfileLoadFailed  = "Error loading user data. Please refresh the page."
	MsgIssuesLoadFailed   = "Failed to load issues. Please refresh the page."
	MsgInitFailed         = "System initialization failed. Please refresh the page."
)
