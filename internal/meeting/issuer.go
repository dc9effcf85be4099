package meeting

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/skillsync/session-server/internal/metrics"
)

const (
	DefaultDomain   = "meet.jit.si"
	DefaultAppID    = "skillsync"
	DefaultTokenTTL = 2 * time.Hour
	audience        = "jitsi"
)

var ErrNoSigningKey = errors.New("meeting signing key not configured")

// Identity is the per-party data bound into a room token.
type Identity struct {
	Name  string
	Email string
}

// PartyCredential holds one party's access. An empty Token is the
// "no credential" sentinel: the party must use the public room URL.
type PartyCredential struct {
	Token string
	URL   string
}

func (p PartyCredential) Signed() bool {
	return p.Token != ""
}

type Credentials struct {
	RoomID    string
	Domain    string
	PublicURL string
	Host      PartyCredential
	Guest     PartyCredential
}

// Degraded reports whether either party was left without a signed token.
func (c *Credentials) Degraded() bool {
	return !c.Host.Signed() || !c.Guest.Signed()
}

type Config struct {
	Domain   string
	AppID    string
	Secret   string
	TokenTTL time.Duration
}

type Issuer struct {
	domain   string
	appID    string
	secret   []byte
	tokenTTL time.Duration
	rooms    *RoomIDGenerator
	now      func() time.Time
}

func NewIssuer(cfg Config) *Issuer {
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.AppID == "" {
		cfg.AppID = DefaultAppID
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &Issuer{
		domain:   cfg.Domain,
		appID:    cfg.AppID,
		secret:   []byte(cfg.Secret),
		tokenTTL: cfg.TokenTTL,
		rooms:    NewRoomIDGenerator(),
		now:      time.Now,
	}
}

func (i *Issuer) Domain() string {
	return i.domain
}

// Issue allocates a room and signs one token per party. Signing problems never
// surface as errors; the affected party gets the fallback sentinel instead.
// The only error is failing to allocate a room id.
func (i *Issuer) Issue(roomSeed string, host, guest Identity) (*Credentials, error) {
	roomID, err := i.rooms.Generate(roomSeed)
	if err != nil {
		return nil, err
	}

	publicURL := RoomURL(i.domain, roomID, "")
	creds := &Credentials{
		RoomID:    roomID,
		Domain:    i.domain,
		PublicURL: publicURL,
		Host:      i.partyCredential(roomID, host, true),
		Guest:     i.partyCredential(roomID, guest, false),
	}

	metrics.RecordCredentials(!creds.Degraded())
	if creds.Degraded() {
		log.Warn().
			Str("roomId", roomID).
			Bool("hostSigned", creds.Host.Signed()).
			Bool("guestSigned", creds.Guest.Signed()).
			Msg("meeting credentials degraded to public room")
	}

	return creds, nil
}

func (i *Issuer) partyCredential(roomID string, identity Identity, moderator bool) PartyCredential {
	token, err := i.sign(roomID, identity, moderator)
	if err != nil {
		if !errors.Is(err, ErrNoSigningKey) {
			log.Error().Err(err).Str("roomId", roomID).Msg("failed to sign meeting token")
		}
		return PartyCredential{URL: RoomURL(i.domain, roomID, "")}
	}
	return PartyCredential{Token: token, URL: RoomURL(i.domain, roomID, token)}
}

func (i *Issuer) sign(roomID string, identity Identity, moderator bool) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrNoSigningKey
	}

	now := i.now()
	claims := &Claims{
		Room: roomID,
		Context: ClaimsContext{
			User: ClaimsUser{
				ID:        uuid.NewString(),
				Name:      identity.Name,
				Email:     identity.Email,
				Avatar:    avatarURL(identity.Name),
				Moderator: fmt.Sprintf("%t", moderator),
			},
			Features: disabledFeatures(),
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.appID,
			Subject:   i.domain,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(i.tokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// RoomURL builds https://{domain}/{roomId}, adding ?jwt= when a token is present.
func RoomURL(domain, roomID, token string) string {
	u := url.URL{Scheme: "https", Host: domain, Path: "/" + roomID}
	if token != "" {
		u.RawQuery = url.Values{"jwt": {token}}.Encode()
	}
	return u.String()
}

func avatarURL(name string) string {
	q := url.Values{}
	q.Set("name", name)
	q.Set("background", "3b82f6")
	q.Set("color", "fff")
	return "https://ui-avatars.com/api/?" + q.Encode()
}
