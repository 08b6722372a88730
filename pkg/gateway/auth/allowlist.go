package auth

import "strings"

// Allowlist decides admin access by email.
type Allowlist struct {
	emails map[string]struct{}
}

func NewAllowlist(emails []string) *Allowlist {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if trimmed := strings.ToLower(strings.TrimSpace(e)); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	return &Allowlist{emails: set}
}

func (a *Allowlist) IsAdmin(email string) bool {
	if a == nil || email == "" {
		return false
	}
	_, ok := a.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}
