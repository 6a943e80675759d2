package auth

// Principal is the caller's resolved identity for one request. It is immutable: fields
// are unexported and every accessor returns a copy.
type Principal struct {
	id          int64
	email       string
	role        Role
	authorities []string
}

// NewPrincipal builds the principal for a stored identity.
func NewPrincipal(identity Identity) Principal {
	return Principal{
		id:          identity.ID,
		email:       NormalizeEmail(identity.Email),
		role:        identity.Role,
		authorities: []string{identity.Role.Authority()},
	}
}

func (p Principal) ID() int64     { return p.id }
func (p Principal) Email() string { return p.email }
func (p Principal) Role() Role    { return p.role }

// Authorities returns the derived authority set.
func (p Principal) Authorities() []string {
	out := make([]string, len(p.authorities))
	copy(out, p.authorities)
	return out
}

// HasAuthority reports whether the principal carries the given authority.
func (p Principal) HasAuthority(authority string) bool {
	for _, a := range p.authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// IsZero reports whether p was never resolved.
func (p Principal) IsZero() bool {
	return p.id == 0 && p.email == "" && p.role == ""
}

// Summary is the wire form of a principal. It never carries credentials.
type Summary struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Role        Role     `json:"role"`
	Authorities []string `json:"authorities"`
}

func (p Principal) Summary() Summary {
	return Summary{ID: p.id, Email: p.email, Role: p.role, Authorities: p.Authorities()}
}
