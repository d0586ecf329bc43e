package models

// StatusType represents the status of an API response.
type StatusType string

const (
	// StatusSuccess indicates a successful API operation.
	StatusSuccess StatusType = "success"
	// StatusError indicates a failed API operation.
	StatusError StatusType = "error"
)

// APIResponse is the JSON envelope returned by every StepFence endpoint.
type APIResponse struct {
	Status  StatusType  `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success creates a success response with optional data.
func Success(data interface{}) APIResponse {
	return APIResponse{Status: StatusSuccess, Data: data}
}

// SuccessWithMessage creates a success response with a message and optional data.
func SuccessWithMessage(message string, data interface{}) APIResponse {
	return APIResponse{Status: StatusSuccess, Message: message, Data: data}
}

// Error creates an error response with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: StatusError, Message: message}
}
