package domain

// User is the identity this core consumes. Owned by the identity provider;
// immutable here, referenced everywhere else by ID only.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}
