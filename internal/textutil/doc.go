// Package textutil provides the text helpers behind offline similarity and
// transcript handling.
//
// Fingerprints are term-frequency vectors: text is lowercased, split on
// non-alphanumeric runs, and tokens shorter than 3 characters are dropped.
// Vector hashes a fingerprint into a fixed-width dense vector so it can be
// compared with the same cosine math as model embeddings.
package textutil
