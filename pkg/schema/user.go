// Package schema defines the records exchanged between the todo API and its clients.
package schema

// User is a registered account. It is stored in the 'users' collection and is
// never mutated after creation.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

// LoginResponse is returned by both login and account creation.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Health is the body of the health endpoint.
type Health struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}
