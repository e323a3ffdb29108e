package account

// Response is the envelope every account operation answers with. Business failures are
// reported here with Success=false; they are not Go errors.
type Response struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Token    string `json:"token,omitempty"`
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
}

const (
	MsgEmailInUse       = "e-mailaddress is already in use."
	MsgUsernameInUse    = "Username is already in use."
	MsgPasswordMismatch = "The passwords do not match."
	MsgEmptyPassword    = "Password must not be empty."
	MsgNoDefaultRole    = "No default role found in database."
	MsgRegistered       = "User registered successfully."
	MsgBadCredentials   = "Credentials are not valid."
	MsgLoggedIn         = "Successfully logged in."
	MsgUserNotFound     = "User not found."
	MsgDeleted          = "Successfully deleted the user."
)

func fail(msg string) Response {
	return Response{Success: false, Message: msg}
}
