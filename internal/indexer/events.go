package indexer

// Kind names an indexing-run event.
type Kind string

// Event kinds emitted during a run, in the order a file moves through the
// pipeline. Every run terminates with exactly one done or error event.
const (
	KindStart        Kind = "start"
	KindFileStart    Kind = "file-start"
	KindFileSkip     Kind = "file-skip"
	KindFileChunked  Kind = "file-chunked"
	KindFileEmbedded Kind = "file-embedded"
	KindFileWritten  Kind = "file-written"
	KindProgress     Kind = "progress"
	KindError        Kind = "error"
	KindDone         Kind = "done"
)

// Skip reasons reported in file-skip events and per-file results.
const (
	SkipBinaryOrLarge = "binary-or-large"
	SkipNoChunks      = "no-chunks"
)

// Event is one run transition. Payload is the kind-specific struct below and
// marshals directly as the event's JSON data.
type Event struct {
	Kind    Kind
	Payload any
}

// StartPayload opens a run after planning succeeded.
type StartPayload struct {
	RunID      string `json:"run_id"`
	Repo       string `json:"repo"`
	Branch     string `json:"branch"`
	Head       string `json:"head"`
	TotalBlobs int    `json:"total_blobs"`
	ToIndex    int    `json:"to_index"`
}

// FileStartPayload announces a file entering the pipeline.
type FileStartPayload struct {
	Path     string `json:"path"`
	SizeHint int    `json:"size_hint"`
}

// FileSkipPayload reports a file skipped without error.
type FileSkipPayload struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// FileChunkedPayload reports the chunking outcome for a file.
type FileChunkedPayload struct {
	Path       string `json:"path"`
	Chunks     int    `json:"chunks"`
	TotalLines int    `json:"total_lines"`
	TotalChars int    `json:"total_chars"`
}

// FileEmbeddedPayload reports the embedding outcome for a file.
type FileEmbeddedPayload struct {
	Path       string `json:"path"`
	EmbedCount int    `json:"embed_count"`
}

// FileWrittenPayload reports a fully persisted file.
type FileWrittenPayload struct {
	Path          string `json:"path"`
	ChunksWritten int    `json:"chunks_written"`
}

// ProgressPayload is the periodic heartbeat emitted during long runs.
type ProgressPayload struct {
	Considered    int `json:"considered"`
	FilesWritten  int `json:"files_written"`
	ChunksWritten int `json:"chunks_written"`
	Errors        int `json:"errors"`
}

// ErrorPayload reports a per-file or run-level failure. Path is empty for
// run-level failures.
type ErrorPayload struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// FileResult is the per-file outcome recorded in a run summary.
type FileResult struct {
	Path    string `json:"path"`
	OK      bool   `json:"ok"`
	Skipped string `json:"skipped,omitempty"`
	Chunks  int    `json:"chunks,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RunSummary aggregates a completed run. It is the done event payload and the
// batch-mode response body.
type RunSummary struct {
	RunID         string       `json:"run_id"`
	Repo          string       `json:"repo"`
	Branch        string       `json:"branch"`
	Head          string       `json:"head"`
	Considered    int          `json:"considered"`
	FilesWritten  int          `json:"files_written"`
	ChunksWritten int          `json:"chunks_written"`
	Skipped       int          `json:"skipped"`
	Errors        int          `json:"errors"`
	Files         []FileResult `json:"files"`
}
