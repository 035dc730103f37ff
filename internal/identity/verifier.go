package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrMissingSubject = errors.New("token has no subject")
	ErrInvalidSubject = errors.New("token subject is not a user id")
)

// Claims are the auth provider's access-token claims the core reads.
type Claims struct {
	Email        string `json:"email"`
	UserMetadata struct {
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Verifier checks token signatures and expiry and extracts the principal.
type Verifier struct {
	keyfunc jwt.Keyfunc
	methods []string
	jwks    *keyfunc.JWKS
}

// NewHMACVerifier accepts HS256 tokens signed with secret.
func NewHMACVerifier(secret string) *Verifier {
	key := []byte(secret)
	return &Verifier{
		keyfunc: func(*jwt.Token) (interface{}, error) { return key, nil },
		methods: []string{jwt.SigningMethodHS256.Alg()},
	}
}

// NewJWKSVerifier accepts asymmetric tokens whose keys are published at
// jwksURL. Keys are refreshed in the background until Close.
func NewJWKSVerifier(jwksURL string, log zerolog.Logger) (*Verifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Warn().Err(err).Str("jwks_url", jwksURL).Msg("jwks refresh failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("load jwks: %w", err)
	}
	return &Verifier{
		keyfunc: jwks.Keyfunc,
		methods: []string{"RS256", "ES256"},
		jwks:    jwks,
	}, nil
}

func (v *Verifier) Verify(tokenString string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc,
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, jwt.ErrTokenSignatureInvalid
	}
	if claims.Subject == "" {
		return Principal{}, ErrMissingSubject
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, ErrInvalidSubject
	}
	return Principal{UserID: userID, Email: claims.Email, Name: claims.UserMetadata.FullName}, nil
}

func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
