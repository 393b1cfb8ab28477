package constants

// Roles carried in access tokens.
const (
	ROLE_ADMIN   = "ADMIN"
	ROLE_MANAGER = "MANAGER"
	ROLE_STAFF   = "STAFF"
	ROLE_KIOSK   = "KIOSK"
	ROLE_GUEST   = "GUEST"
)

// Response messages.
const (
	INVALID_USERNAME         = "Username does not exist"
	INVALID_PASSWORD         = "Password is incorrect"
	ACCOUNT_NOT_ACTIVE       = "Account is not active"
	ERROR_INTERNAL_ERROR     = "Internal server error"
	ERROR_INPUT              = "Invalid input"
	DATA_INPUT_IS_NOT_NUMBER = "Parameter must be a number"
	FORBIDDEN_ROLE           = "Role is not allowed to perform this action"
	FORBIDDEN_THEATER        = "Not allowed to access this theater"
	THEATER_NOT_FOUND        = "Theater not found"
	PRODUCT_NOT_FOUND        = "Product not found"
	ORDER_NOT_FOUND          = "Order not found"
	MISSING_TOKEN            = "Missing token"
	INVALID_TOKEN            = "Invalid token"
)

// Redis key layouts.
const (
	STREAM_INDEX_KEY       = "pos:streams"
	ORDER_STREAM_KEY       = "pos:theater:%d:orders"
	GATEWAY_CONFIG_KEY     = "pos:gwcfg:%d:%s"
	DASHBOARD_KEY          = "pos:dash:%d:%s:%s"
	DASHBOARD_INDEX_KEY    = "pos:dash:index:%d"
	EVENT_SEEN_KEY         = "pos:seen:%s:%s:%d"
	RESERVATION_SWEEP_LOCK = "reservation-sweep:%d"
)
