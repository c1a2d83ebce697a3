// Package fetch provides the HTTP-retrieval boundary the engine treats as
// an external collaborator: given a URL, return the bytes of the response.
package fetch

import "context"

// Fetcher retrieves the raw bytes of a URL. Implementations decide how
// (plain HTTP, a headless browser) but never evaluate selectors or render
// anything beyond what's needed to obtain the document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
