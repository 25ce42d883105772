package credentials

// Credential is a local password for a back-office user.
type Credential struct {
	UserID       string
	PasswordHash string
	HashVersion  string
}
