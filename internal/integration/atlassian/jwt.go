package atlassian

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// tokenTTL bounds how long a signed request stays valid.
const tokenTTL = 3 * time.Minute

// Claims is the Atlassian Connect JWT payload.
type Claims struct {
	QSH string `json:"qsh"`
	jwtlib.RegisteredClaims
}

// CanonicalRequest renders method, path and query in the form hashed into
// the qsh claim. path is relative to the product base URL.
func CanonicalRequest(method, path string, query url.Values) string {
	return strings.ToUpper(method) + "&" + canonicalPath(path) + "&" + canonicalQuery(query)
}

// QueryStringHash is the hex SHA-256 of CanonicalRequest.
func QueryStringHash(method, path string, query url.Values) string {
	sum := sha256.Sum256([]byte(CanonicalRequest(method, path, query)))
	return hex.EncodeToString(sum[:])
}

func canonicalPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = strings.TrimRight(path, "/")
	return strings.ReplaceAll(path, "&", "%26")
}

func canonicalQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	pairs := make(map[string][]string, len(query))
	keys := make([]string, 0, len(query))
	for key, values := range query {
		if key == "jwt" {
			continue
		}
		encKey := percentEncode(key)
		encoded := make([]string, len(values))
		for i, v := range values {
			encoded[i] = percentEncode(v)
		}
		sort.Strings(encoded)
		if _, ok := pairs[encKey]; !ok {
			keys = append(keys, encKey)
		}
		pairs[encKey] = append(pairs[encKey], encoded...)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+strings.Join(pairs[key], ","))
	}
	return strings.Join(parts, "&")
}

// percentEncode applies RFC 3986 encoding. url.QueryEscape already keeps
// only unreserved characters; spaces are the one difference.
func percentEncode(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// SignRequest issues a Connect JWT for one request.
func SignRequest(appKey, sharedSecret, method, path string, query url.Values, now time.Time) (string, error) {
	if sharedSecret == "" {
		return "", errors.New("atlassian: empty shared secret")
	}
	claims := Claims{
		QSH: QueryStringHash(method, path, query),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    appKey,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(sharedSecret))
}

// ParseToken validates a Connect JWT against the shared secret.
func ParseToken(token, sharedSecret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(sharedSecret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}
