package qyn1

import "sync"

// Dictionary is the ordered, versioned morpheme alphabet an external
// collaborator (a source-language frontend) supplies. The codec only ever
// maps identifiers to/from dictionary indices; it never inspects the
// morphemes themselves.
type Dictionary interface {
	Version() string
	Size() int
	IndexOf(morpheme string) (uint32, bool)
	MorphemeAt(index uint32) (string, bool)
}

// Registry is the Codec's shared, read-mostly cache set: dictionaries keyed
// by version, static entropy-model baselines keyed by model id, and FSE
// shared-dictionary blobs keyed by id. A zero-value Registry is usable; all
// methods are safe for concurrent use.
type Registry struct {
	dictionaries sync.Map // version string -> Dictionary

	staticOnce  sync.Once
	staticMu    sync.Mutex
	staticModel map[string][]uint64 // model id -> raw baseline weights

	fseDictMu sync.Mutex
	fseDict   map[string][]byte // id -> shared dictionary bytes, copy-on-insert
}

// NewRegistry constructs an empty Registry ready for use by a Codec.
func NewRegistry() *Registry {
	return &Registry{}
}

// PutDictionary registers a Dictionary under its own declared version.
func (r *Registry) PutDictionary(d Dictionary) {
	r.dictionaries.Store(d.Version(), d)
}

// Dictionary looks up a previously registered Dictionary by version.
func (r *Registry) Dictionary(version string) (Dictionary, bool) {
	v, ok := r.dictionaries.Load(version)
	if !ok {
		return nil, false
	}
	return v.(Dictionary), true
}

func (r *Registry) ensureStaticModels() {
	r.staticOnce.Do(func() {
		r.staticMu.Lock()
		defer r.staticMu.Unlock()
		r.staticModel = map[string][]uint64{
			"global_v1": baselineFrequencies(priorIdentifier, 4096),
		}
	})
}

// RegisterStaticBaseline installs or replaces a named static baseline, for
// callers that package their own global model rather than the built-in
// "global_v1" default.
func (r *Registry) RegisterStaticBaseline(id string, weights []uint64) {
	r.ensureStaticModels()
	r.staticMu.Lock()
	defer r.staticMu.Unlock()
	r.staticModel[id] = weights
}

// StaticBaseline renders the named static baseline (falling back to a flat
// Zipf(1.0) prior if the id is unknown, so static/hybrid encodes never hard
// fail on a missing registry entry) into a normalised frequency table sized
// to alphabetSize at precisionBits.
func (r *Registry) StaticBaseline(id string, alphabetSize, precisionBits int) []uint32 {
	r.ensureStaticModels()
	r.staticMu.Lock()
	weights, ok := r.staticModel[id]
	r.staticMu.Unlock()
	if !ok || len(weights) == 0 {
		weights = baselineFrequencies(priorIdentifier, alphabetSize)
	}
	if len(weights) < alphabetSize {
		padded := make([]uint64, alphabetSize)
		copy(padded, weights)
		for i := len(weights); i < alphabetSize; i++ {
			padded[i] = 1
		}
		weights = padded
	} else if len(weights) > alphabetSize {
		weights = weights[:alphabetSize]
	}
	return scaleCounts(weights, precisionBits)
}

// FSEDictionary returns a copy of the shared FSE dictionary registered under
// id, so callers can never mutate the registry's stored copy through the
// returned slice.
func (r *Registry) FSEDictionary(id string) ([]byte, bool) {
	r.fseDictMu.Lock()
	defer r.fseDictMu.Unlock()
	blob, ok := r.fseDict[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, true
}

// PutFSEDictionary installs a shared FSE dictionary under id, copying the
// input so later caller-side mutation cannot affect the registry's copy.
func (r *Registry) PutFSEDictionary(id string, blob []byte) {
	r.fseDictMu.Lock()
	defer r.fseDictMu.Unlock()
	if r.fseDict == nil {
		r.fseDict = make(map[string][]byte)
	}
	stored := make([]byte, len(blob))
	copy(stored, blob)
	r.fseDict[id] = stored
}

// Codec is the caller-constructed handle through which Encode/Decode run. It
// owns a Registry and a default Budget; both are safe to share across
// goroutines for concurrent decodes once constructed.
type Codec struct {
	Registry *Registry
	Budget   Budget
}

// NewCodec constructs a Codec with a fresh Registry and the default Budget.
func NewCodec() *Codec {
	return &Codec{Registry: NewRegistry(), Budget: DefaultBudget()}
}
