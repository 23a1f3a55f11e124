package model

import "time"

// Identity is the authenticated account reference as the auth subsystem
// reports it.  Session State keeps a read-only copy; callers must never
// mutate a shared Identity in place.
//
// Fields:
//
//	ID       – users.id, the key every profile and cart row hangs off.
//	Email    – normalized login email.
//	Role     – auth-side app metadata consulted by the admin policy.
//	Metadata – user-editable auth metadata (full name, avatar).
type Identity struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Role     string   `json:"role"`
	Metadata Metadata `json:"user_metadata"`
}

// DisplayName returns the optional display name carried in metadata.
func (i Identity) DisplayName() string { return i.Metadata.FullName }

// Clone returns a copy that shares no memory with i.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// Metadata is the profile metadata mirrored on the auth side.
type Metadata struct {
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ProfileFields is a partial update of profile metadata.  Nil pointers
// leave the corresponding field untouched.
type ProfileFields struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Email     *string `json:"email,omitempty"`
}

// Empty reports whether no field is set.
func (f ProfileFields) Empty() bool {
	return f.FullName == nil && f.AvatarURL == nil && f.Email == nil
}

// ApplyTo returns m with the set fields of f written over it.
func (f ProfileFields) ApplyTo(m Metadata) Metadata {
	if f.FullName != nil {
		m.FullName = *f.FullName
	}
	if f.AvatarURL != nil {
		m.AvatarURL = *f.AvatarURL
	}
	return m
}

// Credential mirrors a row of the `users` table.  Only the gateway's auth
// side reads PasswordHash.
type Credential struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Metadata     Metadata
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity projects the credential onto the public identity shape.
func (c Credential) Identity() *Identity {
	return &Identity{ID: c.ID, Email: c.Email, Role: c.Role, Metadata: c.Metadata}
}

// Profile mirrors the `profiles` table keyed by identity id.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Username  string    `json:"username,omitempty"`
	Website   string    `json:"website,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
