package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"PPDirect/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options controls signing and token lifetime.
type Options struct {
	Secret []byte        // HMAC key
	Alg    string        // HS256/HS384/HS512, default HS256
	TTL    time.Duration // default 24h
	Issuer string
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 24 * time.Hour, Issuer: "ppdirect"}
}

// Claims carries the caller identity in the registered subject claim.
type Claims struct {
	jwtlib.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

func Generate(opts Options, userID string) (token string, expireAt time.Time, err error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", time.Time{}, err
	}
	if userID == "" {
		return "", time.Time{}, errs.ErrArgs.WrapMsg("userID is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	now := time.Now()
	exp := now.Add(opts.TTL)

	claims := Claims{RegisteredClaims: jwtlib.RegisteredClaims{
		Subject:   userID,
		Issuer:    opts.Issuer,
		IssuedAt:  jwtlib.NewNumericDate(now),
		NotBefore: jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(exp),
	}}

	signed, err := jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
	if err != nil {
		return "", time.Time{}, errs.WrapMsg(err, "sign token")
	}
	return signed, exp, nil
}

// Verify parses token and maps every failure onto the token error codes.
func Verify(opts Options, token string) (*Claims, error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return nil, err
	}
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	}, jwtlib.WithValidMethods([]string{method.Alg()}))
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return nil, errs.ErrTokenExpired.Wrap()
	case errors.Is(err, jwtlib.ErrTokenMalformed):
		return nil, errs.ErrTokenMalformed.Wrap()
	case err != nil:
		return nil, errs.ErrTokenInvalid.WrapMsg(err.Error())
	case !parsed.Valid:
		return nil, errs.ErrTokenInvalid.Wrap()
	}
	if claims.Subject == "" {
		return nil, errs.ErrTokenInvalid.WrapMsg("missing subject")
	}
	return claims, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, errs.ErrArgs.WrapMsg("unsupported alg", "alg", alg)
	}
}
