package ratings

import (
	"fmt"

	"github.com/Clark-Hu/comment-ratings/internal/domain"
)

// EntityType is a host entity type that rating fields are declared on. Table
// names the host table holding the shadow columns; an empty table means the
// host keeps no denormalized columns.
type EntityType struct {
	name    string
	table   string
	fields  map[string]*Field
	ordered []*Field
}

// NewEntityType declares a host type called name stored in table.
func NewEntityType(name, table string) *EntityType {
	return &EntityType{name: name, table: table, fields: make(map[string]*Field)}
}

func (e *EntityType) Name() string { return e.name }
func (e *EntityType) Table() string { return e.table }

// AddField attaches f to the entity type.
func (e *EntityType) AddField(f *Field) error {
	if _, ok := e.fields[f.Name()]; ok {
		return fmt.Errorf("%w: %s already declares field %s", ErrImproperlyConfigured, e.name, f.Name())
	}
	for _, other := range e.ordered {
		if other.Key() == f.Key() {
			return fmt.Errorf("%w: %s field key collision between %s and %s", ErrImproperlyConfigured, e.name, other.Name(), f.Name())
		}
	}
	e.fields[f.Name()] = f
	e.ordered = append(e.ordered, f)
	return nil
}

// Field returns the field called name.
func (e *EntityType) Field(name string) (*Field, error) {
	f, ok := e.fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no field %q", ErrUnknownField, e.name, name)
	}
	return f, nil
}

// Fields returns the declared fields in declaration order.
func (e *EntityType) Fields() []*Field {
	return append([]*Field(nil), e.ordered...)
}

// Target returns the polymorphic reference to one instance.
func (e *EntityType) Target(objectID string) domain.Target {
	return domain.Target{EntityType: e.name, ObjectID: objectID}
}
