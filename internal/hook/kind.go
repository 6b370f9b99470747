package hook

import (
	"fmt"
	"strings"
)

// Kind is a lifecycle moment at which handlers may be dispatched.
type Kind uint8

// The zero Kind is invalid so that an unset field never matches a real context.
const (
	BeforeCreate Kind = iota + 1
	BeforeUpdate
	BeforeDelete
	AfterCreate
	AfterUpdate
	AfterDelete
	AfterRestore
)

var kindNames = [...]string{
	BeforeCreate: "before_create",
	BeforeUpdate: "before_update",
	BeforeDelete: "before_delete",
	AfterCreate:  "after_create",
	AfterUpdate:  "after_update",
	AfterDelete:  "after_delete",
	AfterRestore: "after_restore",
}

// Kinds returns every valid kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames)-1)
	for k := BeforeCreate; k <= AfterRestore; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is a member of the enumeration.
func (k Kind) Valid() bool {
	return k >= BeforeCreate && k <= AfterRestore
}

// IsBefore reports whether k runs before the persistence operation.
func (k Kind) IsBefore() bool {
	return k == BeforeCreate || k == BeforeUpdate || k == BeforeDelete
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// ParseKind parses a kind name. Matching is case-insensitive and accepts
// either underscores or hyphens as the separator ("before-create").
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	for k := BeforeCreate; k <= AfterRestore; k++ {
		if kindNames[k] == norm {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidContext, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidContext, uint8(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Both YAML and JSON
// decoding go through it.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// KindSet is a set of kinds a handler declares support for. Handlers usually
// embed one so that Supports is promoted onto the handler type.
type KindSet uint16

// On builds a KindSet from the given kinds. Invalid kinds are ignored.
func On(kinds ...Kind) KindSet {
	var s KindSet
	for _, k := range kinds {
		if k.Valid() {
			s |= 1 << k
		}
	}
	return s
}

// AllKinds is the set of every valid kind.
func AllKinds() KindSet {
	return On(Kinds()...)
}

// BeforeKinds is the set of kinds that run before persistence.
func BeforeKinds() KindSet {
	var s KindSet
	for _, k := range Kinds() {
		if k.IsBefore() {
			s |= On(k)
		}
	}
	return s
}

// Supports reports whether k is in the set.
func (s KindSet) Supports(k Kind) bool {
	return k.Valid() && s&(1<<k) != 0
}

// Kinds lists the members of s in declaration order.
func (s KindSet) Kinds() []Kind {
	var out []Kind
	for _, k := range Kinds() {
		if s.Supports(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s KindSet) String() string {
	kinds := s.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return "{" + strings.Join(names, ",") + "}"
}
