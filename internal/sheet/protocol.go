package sheet

// ProtocolVersion is bumped whenever Request or Response change shape.
const ProtocolVersion = 1

// Request is written by the parent as a single JSON document on the child's stdin.
type Request struct {
	Version int    `json:"version"`
	Path    string `json:"path"`
}

// Response is the single terminal message the child writes to stdout.
type Response struct {
	Version int        `json:"version"`
	OK      bool       `json:"ok"`
	Rows    []Row      `json:"rows,omitempty"`
	Error   *WireError `json:"error,omitempty"`
}

type WireError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (w *WireError) toParseError() *ParseError {
	switch w.Kind {
	case KindEmptyFile, KindSchemaInvalid, KindIO:
		return newParseError(w.Kind, w.Message, nil)
	default:
		return ioError("parser reported unknown error kind "+string(w.Kind)+": "+w.Message, nil)
	}
}
