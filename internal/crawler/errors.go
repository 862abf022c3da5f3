package crawler

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a configuration problem that makes the crawl
// meaningless, such as a vocabulary without its descriptive field. It is the
// only fatal error class and is never retried.
type ConfigurationError struct {
	ContentType string
	Reason      string
	Err         error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.ContentType != "" {
		msg += fmt.Sprintf(" (content type %s)", e.ContentType)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ProjectionError reports an entry that could not be turned into a document.
// The entry is skipped; the batch continues.
type ProjectionError struct {
	EntryID string
	Field   string
	Err     error
}

func (e *ProjectionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("project entry %s field %s: %v", e.EntryID, e.Field, e.Err)
	}
	return fmt.Sprintf("project entry %s: %v", e.EntryID, e.Err)
}

func (e *ProjectionError) Unwrap() error { return e.Err }

// IndexWriteError reports a bulk request with rejected items. The batch is
// considered partially applied.
type IndexWriteError struct {
	Index    string
	Failures []BulkFailure
}

func (e *IndexWriteError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("bulk write to %s failed", e.Index)
	}
	sample := e.Failures[0]
	return fmt.Sprintf("bulk write to %s: %d item(s) failed, e.g. %s (status %d): %s",
		e.Index, len(e.Failures), sample.ID, sample.Status, sample.Reason)
}

// TagUpdateError reports a back-reference tag that could not be applied.
type TagUpdateError struct {
	Index      string
	DocumentID string
	Field      string
	Err        error
}

func (e *TagUpdateError) Error() string {
	return fmt.Sprintf("tag %s/%s field %s: %v", e.Index, e.DocumentID, e.Field, e.Err)
}

func (e *TagUpdateError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the crawl.
func IsFatal(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
