package response

var (
	ErrInvalidRequestFormat = ErrorResponse{
		Status:  "error",
		Error:   "invalid_request",
		Details: "Invalid request format",
	}

	ErrInvalidID = ErrorResponse{
		Status:  "error",
		Error:   "invalid_id",
		Details: "Identifier must be a valid UUID",
	}

	ErrImageRequired = ErrorResponse{
		Status:  "error",
		Error:   "image_required",
		Details: "Multipart field 'image' or 'images' is required",
	}

	ErrInternal = ErrorResponse{
		Status:  "error",
		Error:   "internal_error",
		Details: "Internal server error",
	}
)
