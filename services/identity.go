package services

// Identity is the authenticated caller attached to a request by the auth guard.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}
