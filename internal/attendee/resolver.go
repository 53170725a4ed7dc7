package attendee

import (
	"strings"
	"unicode"

	"meetflow/internal/logging"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultThreshold is the minimum similarity for a fuzzy match.
	DefaultThreshold = 0.8
	defaultCacheSize = 512
)

// Source records how a contact was resolved.
type Source string

const (
	SourceExact     Source = "exact"
	SourceFuzzy     Source = "fuzzy"
	SourceGenerated Source = "generated"
)

// Contact is the resolution of one name.
type Contact struct {
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Source Source  `json:"source"`
	Score  float64 `json:"score,omitempty"`
}

// Resolver maps names to contacts. Safe for concurrent use.
type Resolver struct {
	dir       Directory
	threshold float64
	domain    string
	cache     *lru.Cache[string, Contact]
	logger    logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold overrides the fuzzy-match threshold.
func WithThreshold(threshold float64) Option {
	return func(r *Resolver) {
		if threshold > 0 && threshold <= 1 {
			r.threshold = threshold
		}
	}
}

// WithDefaultDomain overrides the directory's domain for generated addresses.
func WithDefaultDomain(domain string) Option {
	return func(r *Resolver) {
		if d := strings.TrimSpace(domain); d != "" {
			r.domain = d
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Resolver) {
		r.logger = logging.OrNop(logger)
	}
}

// NewResolver builds a resolver over dir.
func NewResolver(dir Directory, opts ...Option) *Resolver {
	r := &Resolver{
		dir:       dir,
		threshold: DefaultThreshold,
		domain:    dir.DefaultDomain,
		logger:    logging.NewComponentLogger("attendee"),
	}
	if r.domain == "" {
		r.domain = DefaultDomain
	}
	for _, opt := range opts {
		opt(r)
	}
	// Size is a constant > 0, so New cannot fail.
	r.cache, _ = lru.New[string, Contact](defaultCacheSize)
	return r
}

// Resolve maps name to a contact. Exact matches on primary names and
// aliases win, then the best fuzzy alias match at or above the threshold,
// then a generated address. An empty name yields a zero Contact.
func (r *Resolver) Resolve(name string) Contact {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Contact{}
	}
	if c, ok := r.cache.Get(key); ok {
		return c
	}

	c, ok := r.exact(key)
	if !ok {
		c, ok = r.fuzzy(key)
	}
	if !ok {
		c = r.generate(key)
		r.logger.Info("No attendee match for %q, generated %s", name, c.Email)
	}
	r.cache.Add(key, c)
	return c
}

// Emails resolves names and drops any that produce no address.
func (r *Resolver) Emails(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if c := r.Resolve(name); c.Email != "" {
			out = append(out, c.Email)
		}
	}
	return out
}

func (r *Resolver) exact(key string) (Contact, bool) {
	for _, e := range r.dir.Attendees {
		if strings.EqualFold(key, strings.TrimSpace(e.PrimaryName)) {
			return Contact{Name: e.PrimaryName, Email: e.Email, Source: SourceExact, Score: 1}, true
		}
		for _, alias := range e.Aliases {
			if strings.EqualFold(key, strings.TrimSpace(alias)) {
				return Contact{Name: e.PrimaryName, Email: e.Email, Source: SourceExact, Score: 1}, true
			}
		}
	}
	return Contact{}, false
}

func (r *Resolver) fuzzy(key string) (Contact, bool) {
	var (
		best      Entry
		bestAlias string
		bestScore float64
	)
	for _, e := range r.dir.Attendees {
		candidates := append([]string{e.PrimaryName}, e.Aliases...)
		for _, alias := range candidates {
			score := Ratio(key, strings.ToLower(strings.TrimSpace(alias)))
			if score > bestScore {
				best, bestAlias, bestScore = e, alias, score
			}
		}
	}
	if bestScore < r.threshold {
		return Contact{}, false
	}
	r.logger.Debug("Fuzzy matched %q to %q (score %.2f)", key, bestAlias, bestScore)
	return Contact{Name: best.PrimaryName, Email: best.Email, Source: SourceFuzzy, Score: bestScore}, true
}

func (r *Resolver) generate(key string) Contact {
	var parts []string
	for _, field := range strings.Fields(key) {
		if cleaned := localPart(field); cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	if len(parts) == 0 {
		return Contact{}
	}
	local := parts[0]
	if len(parts) > 1 {
		local += "." + parts[len(parts)-1]
	}
	return Contact{Name: key, Email: local + "@" + r.domain, Source: SourceGenerated}
}

func localPart(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
