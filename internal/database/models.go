package database

// Digest is one generated daily digest for a source.
type Digest struct {
	ID           int64
	Source       string
	Day          string
	Title        string
	Summary      string
	BodyMarkdown string
	ItemCount    int
	GeneratedAt  *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	PublishedItems int
	PublishedDays  int
	Digests        int
	BySource       map[string]int
}
