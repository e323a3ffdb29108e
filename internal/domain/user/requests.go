package user

type RegisterRequest struct {
	Email           string `json:"email" binding:"required,email,max=254"`
	Username        string `json:"username" binding:"required,max=64"`
	Password        string `json:"password" binding:"required,max=256"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,max=256"`
	PhoneNumber     string `json:"phoneNumber" binding:"required,max=32"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type DeleteRequest struct {
	UserID string `json:"userId" binding:"required,uuid"`
}
