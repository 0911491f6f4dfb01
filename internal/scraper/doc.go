// Package scraper defines the contract every content source implements, the
// registry that resolves sources by name or URL, the shared error taxonomy,
// and the chapter normalization helpers adapters rely on to return canonical,
// de-duplicated, ascending chapter lists.
package scraper
