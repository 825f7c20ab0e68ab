package story

// OnlineResource is a book offered by a remote catalogue.
type OnlineResource struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Author   string            `json:"author"`
	Provider string            `json:"provider"`
	Metadata map[string]string `json:"metadata"`
	URL      string            `json:"url"`
}

// Document is the plain text of a book after ingestion.
type Document struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	Filename string `json:"filename"`
	Body     string `json:"body"`
}
