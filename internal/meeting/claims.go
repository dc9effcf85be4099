package meeting

import "github.com/golang-jwt/jwt/v5"

// Claims follow the token layout the video service expects for authenticated rooms.
type Claims struct {
	Room    string        `json:"room"`
	Context ClaimsContext `json:"context"`
	jwt.RegisteredClaims
}

type ClaimsContext struct {
	User     ClaimsUser      `json:"user"`
	Features map[string]bool `json:"features"`
}

type ClaimsUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
	Moderator string `json:"moderator"`
}

func disabledFeatures() map[string]bool {
	return map[string]bool{
		"livestreaming": false,
		"recording":     false,
		"transcription": false,
		"outbound-call": false,
	}
}
