package browser

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// Cookie struct represents a browser cookie as exported by cookie-editor
// extensions and stored in encrypted sessions
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// LoadCookies reads a cookie JSON file from disk
func LoadCookies(path string) ([]Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

// ToOptional converts cookies for BrowserContext.AddCookies. Playwright
// rejects a cookie with neither a url nor a domain, so host-only cookies are
// scoped to origin instead.
func ToOptional(cookies []Cookie, origin string) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, c.toPlaywright(origin))
	}
	return out
}

func (c Cookie) toPlaywright(origin string) playwright.OptionalCookie {
	pwCookie := playwright.OptionalCookie{
		Name:  c.Name,
		Value: c.Value,
	}
	if c.Domain == "" && origin != "" {
		// url excludes domain and path
		pwCookie.URL = playwright.String(origin)
	} else {
		path := c.Path
		if path == "" {
			path = "/"
		}
		pwCookie.Domain = playwright.String(c.Domain)
		pwCookie.Path = playwright.String(path)
	}

	if c.Expires > 0 {
		pwCookie.Expires = playwright.Float(c.Expires)
	}
	if c.HTTPOnly {
		pwCookie.HttpOnly = playwright.Bool(true)
	}
	if c.Secure {
		pwCookie.Secure = playwright.Bool(true)
	}

	switch strings.ToLower(c.SameSite) {
	case "lax":
		pwCookie.SameSite = playwright.SameSiteAttributeLax
	case "strict":
		pwCookie.SameSite = playwright.SameSiteAttributeStrict
	case "none", "no_restriction":
		pwCookie.SameSite = playwright.SameSiteAttributeNone
	}

	return pwCookie
}
