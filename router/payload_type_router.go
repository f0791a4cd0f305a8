package router

import (
	"reflect"

	"github.com/glimte/integrationbus/envelope"
)

// ProbeInterface names an interface a PayloadTypeRouter should test payload
// types against. Type must be obtained with reflect.TypeOf((*X)(nil)).Elem()
// for an interface X. Go has no runtime class hierarchy to walk the way
// PayloadTypeRouter.java does, so interface candidates are this
// caller-registered, ordered probe list instead of a reflected list of
// "interfaces implemented by this class" (spec.md §9's design note).
type ProbeInterface struct {
	Name string
	Type reflect.Type
}

// PayloadTypeRouter selects a single destination by walking the payload's
// type, per spec.md §4.4.1. It embeds *Router configured with
// MaxDestinations=1 and FallbackToDirectChannelLookup=false, matching
// "no direct-channel-name fallback" from the source's PayloadTypeRouter.
type PayloadTypeRouter struct {
	*Router
	probes []ProbeInterface
}

// NewPayloadTypeRouter builds a PayloadTypeRouter. mappings keys are type
// names as produced by classChain/interfaceLevels below: a Go type's
// package-qualified String() form (e.g. "time.Duration", "io.Reader"),
// with a "[]" suffix for slice/array payloads.
func NewPayloadTypeRouter(resolver ChannelResolver, mappings map[string]string, probes []ProbeInterface, opts ...Option) *PayloadTypeRouter {
	p := &PayloadTypeRouter{probes: probes}
	base := append([]Option{
		WithChannelMappings(mappings),
		WithMaxDestinations(1),
		WithFallbackToDirectChannelLookup(false),
		WithStopAtFirstMatch(true),
	}, opts...)
	p.Router = New(resolver, p.keys, base...)
	return p
}

// keys is the Router's KeyFunc: it produces the ordered candidate list
// described by spec.md §4.4.1 step 1-2. The base Router's resolution loop
// stops at the first hit because MaxDestinations is 1 and StopAtFirstMatch
// is set, which is what
// delivers the ordering contract: exact class beats direct interfaces,
// direct interfaces beat superclass, superclass beats indirect interfaces.
func (p *PayloadTypeRouter) keys(e *envelope.Envelope) []any {
	t := reflect.TypeOf(e.Payload())
	if t == nil {
		return nil
	}

	suffix := ""
	for t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		suffix += "[]"
		t = t.Elem()
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	chain := classChain(t)
	levels := interfaceLevels(chain, p.probes)

	seen := make(map[string]bool)
	var keys []any
	for i, ct := range chain {
		name := ct.String() + suffix
		if !seen[name] {
			seen[name] = true
			keys = append(keys, name)
		}
		for _, probe := range levels[i] {
			iname := probe.Name + suffix
			if !seen[iname] {
				seen[iname] = true
				keys = append(keys, iname)
			}
		}
	}
	return keys
}

// classChain is the Go analogue of the source's superclass walk: the type
// itself, then the type of its embedded field, then that field's embedded
// field, and so on. A struct with no embedded field terminates the chain;
// a struct with several embedded fields takes the first (matching single
// inheritance — Go does not have an equivalent to multiple superclasses).
func classChain(t reflect.Type) []reflect.Type {
	chain := []reflect.Type{t}
	cur := t
	for cur.Kind() == reflect.Struct {
		var next reflect.Type
		for i := 0; i < cur.NumField(); i++ {
			f := cur.Field(i)
			if f.Anonymous {
				next = f.Type
				break
			}
		}
		if next == nil {
			break
		}
		for next.Kind() == reflect.Ptr {
			next = next.Elem()
		}
		chain = append(chain, next)
		cur = next
	}
	return chain
}

// interfaceLevels assigns each registered probe interface to the deepest
// level of chain that implements it (the level that introduces it), mirroring "interfaces directly
// implemented at each class level" in the source's addCandidates. A probe
// also implemented by the next (deeper/super) level is attributed to that
// deeper level instead, since it was inherited rather than introduced here.
func interfaceLevels(chain []reflect.Type, probes []ProbeInterface) [][]ProbeInterface {
	levels := make([][]ProbeInterface, len(chain))
	for i, t := range chain {
		var next reflect.Type
		if i+1 < len(chain) {
			next = chain[i+1]
		}
		for _, probe := range probes {
			if !implements(t, probe.Type) {
				continue
			}
			if next != nil && implements(next, probe.Type) {
				continue
			}
			levels[i] = append(levels[i], probe)
		}
	}
	return levels
}

func implements(t, iface reflect.Type) bool {
	if t == nil || iface == nil {
		return false
	}
	if t.Implements(iface) {
		return true
	}
	return reflect.PointerTo(t).Implements(iface)
}
