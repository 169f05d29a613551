// Package langprofile models the "language profile" external collaborator
// spec.md §9's Design Notes describe: a small trait an encoder front-end
// implements so the codec itself never dispatches on source language. qyn1
// never imports this package; it only ever sees the resulting
// qyn1.EncodedStream and qyn1.Dictionary.
package langprofile

// IdentKind coarsely classifies an identifier for dictionary/context
// bucketing upstream of the codec (e.g. which grammar-token family precedes
// it). qyn1 codes the identifier channel as one stream and does not group it
// by this value.
type IdentKind string

const (
	IdentKindOperator  IdentKind = "operator"
	IdentKindConstruct IdentKind = "construct"
	IdentKindFlow      IdentKind = "flow"
	IdentKindStructure IdentKind = "structure"
	IdentKindPlain     IdentKind = "plain"
)

// Profile is the minimal per-language trait an encoder front-end supplies.
// The codec consumes dictionaries and payload channels built by something
// implementing this; it never calls these methods itself.
type Profile interface {
	// Name identifies the source language, e.g. "go", "python".
	Name() string

	// Operators returns the language's operator token set, ordered the way
	// the front-end assigns them dictionary slots.
	Operators() []string

	// Literals returns literal-kind keywords (true/false/null-equivalents).
	Literals() []string

	// TypeNames returns built-in/primitive type names.
	TypeNames() []string

	// PreferredDecoder names the entropy backend this language's token
	// distribution favors (e.g. "rans" for small alphabets, "chunked-rans"
	// for very large files); the codec treats this as a hint only.
	PreferredDecoder() string

	// ClassifyIdentifier buckets an identifier's surrounding grammar
	// context into one of the closed IdentKind values. The identifier (I)
	// channel's encoding in qyn1 does not group on it.
	ClassifyIdentifier(precedingTokenKey string) IdentKind
}

// staticProfile is a minimal, data-only Profile implementation, enough for
// tests and cmd/qynpkg's demo encode path; a real front-end would derive
// this from an actual language grammar.
type staticProfile struct {
	name             string
	operators        []string
	literals         []string
	typeNames        []string
	preferredDecoder string
	contextByKey     map[string]IdentKind
}

// NewStaticProfile builds a Profile from fixed tables, the shape a JSON/YAML
// manifest loader (out of scope per spec.md §1) would produce after parsing.
func NewStaticProfile(name string, operators, literals, typeNames []string, preferredDecoder string, contextByKey map[string]IdentKind) Profile {
	return &staticProfile{
		name:             name,
		operators:        operators,
		literals:         literals,
		typeNames:        typeNames,
		preferredDecoder: preferredDecoder,
		contextByKey:     contextByKey,
	}
}

func (p *staticProfile) Name() string            { return p.name }
func (p *staticProfile) Operators() []string      { return p.operators }
func (p *staticProfile) Literals() []string       { return p.literals }
func (p *staticProfile) TypeNames() []string      { return p.typeNames }
func (p *staticProfile) PreferredDecoder() string { return p.preferredDecoder }

func (p *staticProfile) ClassifyIdentifier(precedingTokenKey string) IdentKind {
	if kind, ok := p.contextByKey[precedingTokenKey]; ok {
		return kind
	}
	return IdentKindPlain
}
