package ratings

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Clark-Hu/comment-ratings/internal/domain"
)

// DeleteToken is the submitted score that requests removal of the caller's
// vote instead of a write.
const DeleteToken = "delete"

var (
	fieldNamePattern   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	integerScoreSyntax = regexp.MustCompile(`^-?[0-9]+$`)
	floatScoreSyntax   = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
)

// Kind selects the numeric type of a rating field.
type Kind int

const (
	// KindInteger fields accept integral scores and keep votes and score.
	KindInteger Kind = iota
	// KindFloat fields accept any score in range and additionally keep a
	// rating normalized to [0,1].
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Range is an inclusive score interval.
type Range struct {
	Low  float64
	High float64
}

// Contains reports whether score lies within the bounds.
func (r Range) Contains(score float64) bool {
	return score >= r.Low && score <= r.High
}

// FieldConfig is the policy of one rating field. Either Range or Choices must
// be set; Choices wins when both are.
type FieldConfig struct {
	Kind           Kind
	Range          *Range
	Choices        []float64
	AllowAnonymous bool
	UseCookies     bool
	CanChangeVote  bool
	AllowDelete    bool
	// VotesPerIP caps first votes per IP address on one target and field.
	// Zero disables the cap.
	VotesPerIP int
}

// Field describes a rating field declared on a host entity type. It owns the
// names of the shadow columns and the stable key that tags its Vote rows.
type Field struct {
	name    string
	key     string
	cfg     FieldConfig
	bounds  Range
	choices map[float64]struct{}
}

// NewField validates cfg and declares the field called name.
func NewField(name string, cfg FieldConfig) (*Field, error) {
	if !fieldNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid field name %q", ErrImproperlyConfigured, name)
	}
	if cfg.Kind != KindInteger && cfg.Kind != KindFloat {
		return nil, fmt.Errorf("%w: %s has unknown kind %s", ErrImproperlyConfigured, name, cfg.Kind)
	}
	if cfg.VotesPerIP < 0 {
		return nil, fmt.Errorf("%w: %s votes per ip must be non-negative", ErrImproperlyConfigured, name)
	}

	f := &Field{name: name, key: FieldKey(name), cfg: cfg}
	switch {
	case len(cfg.Choices) > 0:
		values := append([]float64(nil), cfg.Choices...)
		sort.Float64s(values)
		f.choices = make(map[float64]struct{}, len(values))
		for _, v := range values {
			if err := f.checkNumber(v); err != nil {
				return nil, err
			}
			f.choices[v] = struct{}{}
		}
		f.bounds = Range{Low: values[0], High: values[len(values)-1]}
	case cfg.Range != nil:
		if err := f.checkNumber(cfg.Range.Low); err != nil {
			return nil, err
		}
		if err := f.checkNumber(cfg.Range.High); err != nil {
			return nil, err
		}
		f.bounds = *cfg.Range
	default:
		return nil, fmt.Errorf("%w: %s needs a range or choices", ErrImproperlyConfigured, name)
	}
	if f.bounds.Low >= f.bounds.High {
		return nil, fmt.Errorf("%w: %s range must have low < high", ErrImproperlyConfigured, name)
	}
	return f, nil
}

// MustField is NewField for package-level declarations; it panics on a bad
// configuration.
func MustField(name string, cfg FieldConfig) *Field {
	f, err := NewField(name, cfg)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Field) checkNumber(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s bound %v is not finite", ErrImproperlyConfigured, f.name, v)
	}
	if f.cfg.Kind == KindInteger && v != math.Trunc(v) {
		return fmt.Errorf("%w: %s bound %v is not an integer", ErrImproperlyConfigured, f.name, v)
	}
	return nil
}

// FieldKey returns the md5 hex fingerprint of a field name. It is identical
// across processes.
func FieldKey(name string) string {
	sum := md5.Sum([]byte(name))
	return hex.EncodeToString(sum[:])
}

func (f *Field) Name() string { return f.name }
func (f *Field) Key() string { return f.key }
func (f *Field) Kind() Kind { return f.cfg.Kind }
func (f *Field) Config() FieldConfig { return f.cfg }
func (f *Field) Bounds() Range { return f.bounds }

// UsesCookies reports whether anonymous voters are tracked by cookie. Cookies
// are only meaningful when anonymous votes are allowed.
func (f *Field) UsesCookies() bool {
	return f.cfg.AllowAnonymous && f.cfg.UseCookies
}

func (f *Field) VotesColumn() string { return f.name + "_votes" }
func (f *Field) ScoreColumn() string { return f.name + "_score" }

// RatingColumn is empty for integer fields.
func (f *Field) RatingColumn() string {
	if f.cfg.Kind != KindFloat {
		return ""
	}
	return f.name + "_rating"
}

// Columns lists the shadow columns the field adds to its host.
func (f *Field) Columns() []string {
	cols := []string{f.VotesColumn(), f.ScoreColumn()}
	if rc := f.RatingColumn(); rc != "" {
		cols = append(cols, rc)
	}
	return cols
}

// Validate checks that score is a valid vote for the field.
func (f *Field) Validate(score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fmt.Errorf("%w: %v is not a valid choice for %s", ErrInvalidRating, score, f.name)
	}
	if f.cfg.Kind == KindInteger && score != math.Trunc(score) {
		return fmt.Errorf("%w: %v is not a valid choice for %s", ErrInvalidRating, score, f.name)
	}
	if f.choices != nil {
		if _, ok := f.choices[score]; !ok {
			return fmt.Errorf("%w: %v is not a valid choice for %s", ErrInvalidRating, score, f.name)
		}
		return nil
	}
	if !f.bounds.Contains(score) {
		return fmt.Errorf("%w: %v is not a valid choice for %s", ErrInvalidRating, score, f.name)
	}
	return nil
}

// NormalizedRating maps an aggregate onto [0,1] using the field bounds. It
// returns nil for integer fields.
func (f *Field) NormalizedRating(score float64, votes int64) *float64 {
	if f.cfg.Kind != KindFloat {
		return nil
	}
	var rating float64
	if votes > 0 {
		rating = (score/float64(votes) - f.bounds.Low) / (f.bounds.High - f.bounds.Low)
	}
	return &rating
}

// Assign writes a {score, votes} pair into the shadow columns of a host row.
// Any value other than a domain.Rating is rejected.
func (f *Field) Assign(row map[string]any, value any) error {
	var r domain.Rating
	switch v := value.(type) {
	case domain.Rating:
		r = v
	case *domain.Rating:
		if v == nil {
			return fmt.Errorf("%w: %s got nil", ErrInvalidAssignment, f.name)
		}
		r = *v
	default:
		return fmt.Errorf("%w: %s got %T", ErrInvalidAssignment, f.name, value)
	}
	if r.Votes < 0 {
		return fmt.Errorf("%w: %s votes must be non-negative, got %d", ErrInvalidAssignment, f.name, r.Votes)
	}

	row[f.VotesColumn()] = r.Votes
	row[f.ScoreColumn()] = r.Score
	if rc := f.RatingColumn(); rc != "" {
		rating := r.Rating
		if rating == nil {
			rating = f.NormalizedRating(r.Score, r.Votes)
		}
		row[rc] = *rating
	}
	return nil
}

// ParseScore parses a score submitted for f. Only plain decimals are
// accepted, and integer fields take no fractional part. The DeleteToken
// yields del == true. Range checks are left to Validate.
func (f *Field) ParseScore(raw string) (score float64, del bool, err error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, DeleteToken) {
		return 0, true, nil
	}
	syntax := floatScoreSyntax
	if f.cfg.Kind == KindInteger {
		syntax = integerScoreSyntax
	}
	if !syntax.MatchString(raw) {
		return 0, false, fmt.Errorf("%w: %q is not a valid %s score", ErrInvalidRating, raw, f.cfg.Kind)
	}
	score, err = strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(score, 0) {
		return 0, false, fmt.Errorf("%w: %q is out of range", ErrInvalidRating, raw)
	}
	return score, false, nil
}
