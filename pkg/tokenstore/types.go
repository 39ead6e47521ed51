package tokenstore

// Pair is a credential pair as returned by login and renewal.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// UserProfile is the serialized user entry kept next to the tokens.
type UserProfile struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"displayName,omitempty"`
	Email       string   `json:"email,omitempty"`
	Authorities []string `json:"authorities,omitempty"`
}
