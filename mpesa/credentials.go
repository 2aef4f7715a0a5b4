package mpesa

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yourusername/rentpay/errs"
)

var ErrUnknownBiller = errs.New(errs.KindConfiguration, "unknown biller shortcode")

var accountPrefixPattern = regexp.MustCompile(`^[A-Z]{5,8}$`)

// Biller is one payee identity: its own shortcode, app keys and passkey.
type Biller struct {
	Name           string `yaml:"name" json:"name"`
	Shortcode      string `yaml:"shortcode" json:"shortcode"`
	ConsumerKey    string `yaml:"consumer_key" json:"-"`
	ConsumerSecret string `yaml:"consumer_secret" json:"-"`
	Passkey        string `yaml:"passkey" json:"-"`
	AccountPrefix  string `yaml:"account_prefix" json:"account_prefix"`
	PropertyID     uint   `yaml:"property_id" json:"property_id"`
}

// Credentials is what the provider needs to authenticate a biller.
type Credentials struct {
	Shortcode      string
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
}

// Router resolves biller identities by shortcode, account prefix or property.
type Router struct {
	billers     []Biller
	byShortcode map[string]Biller
	byPrefix    map[string]Biller
	byProperty  map[uint]Biller
}

func NewRouter(billers []Biller) (*Router, error) {
	r := &Router{
		byShortcode: make(map[string]Biller, len(billers)),
		byPrefix:    make(map[string]Biller, len(billers)),
		byProperty:  make(map[uint]Biller, len(billers)),
	}
	if len(billers) == 0 {
		return nil, errs.New(errs.KindConfiguration, "no billers configured")
	}

	for _, b := range billers {
		b.Shortcode = strings.TrimSpace(b.Shortcode)
		b.AccountPrefix = strings.ToUpper(strings.TrimSpace(b.AccountPrefix))

		if b.Shortcode == "" || b.ConsumerKey == "" || b.ConsumerSecret == "" || b.Passkey == "" {
			return nil, errs.New(errs.KindConfiguration, fmt.Sprintf("biller %q: shortcode, consumer key, consumer secret and passkey are required", b.Name))
		}
		if !accountPrefixPattern.MatchString(b.AccountPrefix) {
			return nil, errs.New(errs.KindConfiguration, fmt.Sprintf("biller %q: account prefix must be 5-8 letters", b.Name))
		}
		if _, dup := r.byShortcode[b.Shortcode]; dup {
			return nil, errs.New(errs.KindConfiguration, fmt.Sprintf("duplicate biller shortcode %s", b.Shortcode))
		}
		if _, dup := r.byPrefix[b.AccountPrefix]; dup {
			return nil, errs.New(errs.KindConfiguration, fmt.Sprintf("duplicate account prefix %s", b.AccountPrefix))
		}

		r.billers = append(r.billers, b)
		r.byShortcode[b.Shortcode] = b
		r.byPrefix[b.AccountPrefix] = b
		if b.PropertyID != 0 {
			r.byProperty[b.PropertyID] = b
		}
	}
	return r, nil
}

// Resolve returns the credential triple for shortcode.
func (r *Router) Resolve(shortcode string) (Credentials, error) {
	b, err := r.Biller(shortcode)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		Shortcode:      b.Shortcode,
		ConsumerKey:    b.ConsumerKey,
		ConsumerSecret: b.ConsumerSecret,
		Passkey:        b.Passkey,
	}, nil
}

func (r *Router) Biller(shortcode string) (Biller, error) {
	b, ok := r.byShortcode[strings.TrimSpace(shortcode)]
	if !ok {
		return Biller{}, fmt.Errorf("%w: %s", ErrUnknownBiller, shortcode)
	}
	return b, nil
}

func (r *Router) ByPrefix(prefix string) (Biller, bool) {
	b, ok := r.byPrefix[strings.ToUpper(prefix)]
	return b, ok
}

func (r *Router) ByProperty(propertyID uint) (Biller, bool) {
	b, ok := r.byProperty[propertyID]
	return b, ok
}

func (r *Router) Billers() []Biller {
	out := make([]Biller, len(r.billers))
	copy(out, r.billers)
	return out
}
