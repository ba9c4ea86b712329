package domain

// PageText is one ordered unit of extracted document text with provenance.
type PageText struct {
	Page int
	Text string
}

// RetrievalUnit is a chunk of extracted text carrying the metadata replicated
// onto every vector point. Never mutated after creation.
type RetrievalUnit struct {
	FileName   string `json:"file_name"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	Tags       []Tag  `json:"tags,omitempty"`
}

// RetrievedUnit is a retrieval hit returned from the vector store.
type RetrievedUnit struct {
	FileName string  `json:"file_name"`
	Page     int     `json:"page"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// RetrieverHandle scopes retrieval to one user's partition and an optional
// document selection. An empty FileNames slice means the whole partition.
type RetrieverHandle struct {
	UserID    string   `json:"user_id"`
	FileNames []string `json:"file_names,omitempty"`
	TopK      int      `json:"top_k"`
}

// Answer is the result of one conversation turn.
type Answer struct {
	Text          string   `json:"text"`
	Sources       []string `json:"sources,omitempty"`
	UsedRetrieval bool     `json:"used_retrieval"`
}
