package index

// Posting is the occurrence count of one term in one document.
type Posting struct {
	DocID     string `json:"doc_id"`
	Frequency int    `json:"frequency"`
}

// PostingList is a term's postings ordered by DocID.
type PostingList []Posting

// TermEntry pairs a term with its postings.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// Stats summarises the size of a Store.
type Stats struct {
	Terms    int   `json:"terms"`
	Postings int   `json:"postings"`
	Shards   int   `json:"shards"`
	Updates  int64 `json:"updates"`
}
