// Package qyn1 implements the QYN-1 package codec: a versioned, authenticated,
// compressed container for serialized abstract syntax trees. It combines
// framing, an AEAD crypto envelope, a prefix-compressed string table, token
// frequency remapping, a table-based rANS (optionally FSE) entropy codec over
// typed payload channels, and a declarative resource budget enforced on
// decode.
//
// The package is synchronous and single-threaded per call: no goroutines, no
// internal locking beyond the shared, read-mostly caches held by Codec. A
// Codec value may be shared across goroutines for concurrent decodes once
// constructed; an in-flight Encode/Decode call must not share its
// intermediate state.
package qyn1
