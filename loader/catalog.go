package loader

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SourceRef names one archive a catalog trusts: where to fetch it and the
// SHA-256 hash its content must match.
type SourceRef struct {
	URL  string `json:"url"`
	Hash string `json:"hash"`
}

// CatalogClaims is the JWT payload naming, per country code, which CIDR
// archive a deployment should load for that country. This generalizes the
// teacher's bootstrap-token pattern (which names a config/logs URL for one
// deployment) to naming one source per country code.
type CatalogClaims struct {
	Sources map[string]SourceRef `json:"sources"`
	jwt.RegisteredClaims
}

// ParseCatalog verifies token's signature with keyFunc and returns its
// claims. Unlike the teacher's manual base64/JSON bootstrap-token parsing
// (a workaround for a Traefik/Yaegi interpreter limitation that does not
// apply to a normal compiled binary), this runs jwt.ParseWithClaims
// directly.
func ParseCatalog(token string, keyFunc jwt.Keyfunc) (*CatalogClaims, error) {
	claims := &CatalogClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc)
	if err != nil {
		return nil, fmt.Errorf("loader: parse catalog: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("loader: catalog token is not valid")
	}
	return claims, nil
}

// SourceFor looks up the archive reference for a country code, matched
// case-insensitively against the uppercased code as stored by bsmatch.
func (c *CatalogClaims) SourceFor(countryCode string) (SourceRef, bool) {
	if ref, ok := c.Sources[countryCode]; ok {
		return ref, true
	}
	for cc, ref := range c.Sources {
		if strings.EqualFold(cc, countryCode) {
			return ref, true
		}
	}
	return SourceRef{}, false
}
