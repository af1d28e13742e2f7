package authapi

import "time"

type registerRequest struct {
	Email     string   `json:"email"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Interests []string `json:"interests,omitempty"`
}

type loginRequest struct {
	// UsernameEmail is either the account's username or its email.
	UsernameEmail string `json:"usernameEmail"`
	Password      string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AccountResponse is the public view of an account. It never carries the
// password hash. The chat API reuses it for conversation partners.
type AccountResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	Interests  []string  `json:"interests"`
	LastActive time.Time        `json:"lastActive,omitzero"`
	CreatedAt  time.Time        `json:"createdAt"`
	Profile    *ProfileResponse `json:"profile,omitempty"`
}

// ProfileResponse is the public view of a profile.
type ProfileResponse struct {
	DisplayName string    `json:"display_name"`
	Gender      string    `json:"gender"`
	Birthday    time.Time `json:"birthday"`
	Horoscope   string    `json:"horoscope"`
	Zodiac      string    `json:"zodiac"`
	Height      float64   `json:"height"`
	Weight      float64   `json:"weight"`
	ImageURL    string    `json:"image_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
