package status

const (
	OK                    = "OK"
	CREATED               = "CREATED"
	ACCEPTED              = "ACCEPTED"
	BAD_REQUEST           = "BAD_REQUEST"
	UNAUTHORIZED          = "UNAUTHORIZED"
	FORBIDDEN             = "FORBIDDEN"
	NOT_FOUND             = "NOT_FOUND"
	CONFLICT              = "CONFLICT"
	UNPROCESSABLE_ENTITY  = "UNPROCESSABLE_ENTITY"
	INTERNAL_SERVER_ERROR = "INTERNAL_SERVER_ERROR"
	UPSTREAM_UNAVAILABLE  = "UPSTREAM_UNAVAILABLE"
	INVALID_SIGNATURE     = "INVALID_SIGNATURE"
)

// conflict reasons
const (
	INSUFFICIENT_CAPACITY      = "INSUFFICIENT_CAPACITY"
	TRANSFER_WINDOW_CLOSED     = "TRANSFER_WINDOW_CLOSED"
	DUPLICATE_PENDING_TRANSFER = "DUPLICATE_PENDING_TRANSFER"
	TICKET_ALREADY_USED        = "TICKET_ALREADY_USED"
	TRANSFER_NOT_PENDING       = "TRANSFER_NOT_PENDING"
	ALREADY_OWNS_TICKET        = "ALREADY_OWNS_TICKET"
	TICKET_ALREADY_ASSIGNED    = "TICKET_ALREADY_ASSIGNED"
	ORDER_NOT_FULFILLABLE      = "ORDER_NOT_FULFILLABLE"
	TICKET_NOT_ASSIGNED        = "TICKET_NOT_ASSIGNED"
	ACCOUNT_NOT_ACTIVATED      = "ACCOUNT_NOT_ACTIVATED"
)
