package middlewares

// gin context keys
const (
	CtxRequestID = "request_id"
	CtxUserID    = "auth.userID"
	CtxEmail     = "auth.email"
	CtxRoles     = "auth.roles"
)
