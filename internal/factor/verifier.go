package factor

import (
	"context"
	"fmt"
)

// Verifier checks one kind of proof for an identity. Implementations may call
// remote services and must honor the supplied context.
type Verifier interface {
	Kind() Kind
	Verify(ctx context.Context, identity, proof string) (bool, error)
}

// Registry maps factor kinds to their verifier, resolved once at startup.
// Adding a new factor kind is a single registration here.
type Registry struct {
	verifiers map[Kind]Verifier
}

// NewRegistry builds a Registry from the given verifiers. Registering two
// verifiers for the same kind is a wiring mistake and fails construction.
func NewRegistry(verifiers ...Verifier) (*Registry, error) {
	r := &Registry{verifiers: make(map[Kind]Verifier, len(verifiers))}
	for _, v := range verifiers {
		if v == nil {
			return nil, fmt.Errorf("factor: nil verifier")
		}
		if _, dup := r.verifiers[v.Kind()]; dup {
			return nil, fmt.Errorf("factor: duplicate verifier for kind %s", v.Kind())
		}
		r.verifiers[v.Kind()] = v
	}
	return r, nil
}

// Verifier returns the verifier registered for k.
func (r *Registry) Verifier(k Kind) (Verifier, bool) {
	v, ok := r.verifiers[k]
	return v, ok
}

// Kinds lists the registered kinds.
func (r *Registry) Kinds() []Kind {
	s := make(Set, len(r.verifiers))
	for k := range r.verifiers {
		s.Add(k)
	}
	return s.Kinds()
}
