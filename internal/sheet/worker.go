package sheet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// parseFile is swapped in tests to simulate decoder faults.
var parseFile = Parse

// Serve handles exactly one Request read from r and writes one Response to w.
// It is the body of the sheet-parser binary. Decoder panics are recovered and
// reported as io_error; only a failure to write the response is returned.
func Serve(r io.Reader, w io.Writer) error {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return writeResponse(w, failure(ioError("malformed parse request: "+err.Error(), err)))
	}
	if req.Version != ProtocolVersion {
		return writeResponse(w, failure(ioError(fmt.Sprintf("unsupported protocol version %d", req.Version), nil)))
	}
	if req.Path == "" {
		return writeResponse(w, failure(ioError("parse request has no path", nil)))
	}

	rows, err := safeParse(req.Path)
	if err != nil {
		var pe *ParseError
		if !errors.As(err, &pe) {
			pe = ioError(err.Error(), err)
		}
		return writeResponse(w, failure(pe))
	}
	return writeResponse(w, Response{Version: ProtocolVersion, OK: true, Rows: rows})
}

func safeParse(path string) (rows []Row, err error) {
	defer func() {
		if p := recover(); p != nil {
			rows = nil
			err = ioError(fmt.Sprintf("parser crashed: %v", p), nil)
		}
	}()
	return parseFile(path)
}

func failure(pe *ParseError) Response {
	return Response{
		Version: ProtocolVersion,
		Error:   &WireError{Kind: pe.Kind, Message: pe.Message},
	}
}

func writeResponse(w io.Writer, resp Response) error {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return fmt.Errorf("write parse response: %w", err)
	}
	return nil
}
