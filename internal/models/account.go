package models

// AccountType drives the badge shown next to an account.
type AccountType string

const (
	AccountGovernment AccountType = "government"
	AccountMedia      AccountType = "media"
	AccountCitizen    AccountType = "citizen"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountGovernment, AccountMedia, AccountCitizen:
		return true
	}
	return false
}

// Account is the presentational view of a user.
type Account struct {
	ID          string      `db:"id" json:"id"`
	DisplayName string      `db:"display_name" json:"display_name"`
	Username    string      `db:"username" json:"username"`
	AvatarURL   string      `db:"avatar_url" json:"avatar_url,omitempty"`
	AccountType AccountType `db:"account_type" json:"account_type"`
}
