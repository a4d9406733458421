package domain

// Session is the identity asserted for a single request. It is produced by the
// authentication layer and passed explicitly into every core operation.
type Session struct {
	AccountID string `json:"accountId"`
	Role      Role   `json:"role"`
	CompanyID string `json:"companyId,omitempty"`
	Token     string `json:"-"`
}

// Authenticated reports whether the session carries a usable identity.
func (s *Session) Authenticated() bool {
	return s != nil && s.AccountID != "" && s.Role.Valid()
}
