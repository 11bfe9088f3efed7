package text

// Document is one page fetched from the content source, flattened to
// plain text. A changed page arrives as a new Document with the same ID.
type Document struct {
	ID      string
	URL     string
	Title   string
	Content string
}

// Valid reports whether the document carries enough data to be indexed.
// Documents without a stable ID are dropped during ingest.
func (d Document) Valid() bool {
	return d.ID != ""
}
