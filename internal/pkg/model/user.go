package model

// Users is a slice of User.
type Users []User

// User represents a cluster user known to the accounting store.
type User struct {
	Name           string `json:"name"`
	DefaultAccount string `json:"default_account,omitempty"`
}

// Associations is a slice of Association.
type Associations []Association

// Association grants a user permission to charge usage to an account.
// The (user, account) pair is the composite key.
type Association struct {
	Account string `json:"account"`
	User    string `json:"user"`
	Limits  Limits `json:"limits,omitempty"`
}

// Key returns the store key for the association, "user:account".
func (a Association) Key() string { return AssocKey(a.User, a.Account) }

// AssocKey builds the composite association key for a user/account pair.
func AssocKey(user, account string) string { return user + ":" + account }
