package pipeline

import "fmt"

// FetchError records a URL that could not be fetched. The pass continues
// with the next URL.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SubmitError records a chunk the index did not accept. The chunk stays
// out of the ledger and is retried on the next pass.
type SubmitError struct {
	File string
	Hash string
	Err  error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit %s: %v", e.File, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}
