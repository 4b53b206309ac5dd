package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowline-dev/flowline/api/schemas"
)

// ParseError describes a malformed document text edit. It carries the
// position of the failure so the editor can surface it inline; the canonical
// document is never touched by a failed parse.
type ParseError struct {
	Line   int
	Column int
	Offset int64
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// Parse decodes raw JSON into a document. On malformed input it returns a
// *ParseError with line/column derived from the decoder's byte offset.
//
// encoding/json is used here rather than jsoniter because its SyntaxError and
// UnmarshalTypeError expose the byte offset the editor needs for cursor
// placement; jsoniter reports positions as free text only.
func Parse(raw []byte) (*schemas.Document, *ParseError) {
	var doc schemas.Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return nil, toParseError(raw, err)
	}
	// Trailing garbage after the top-level value is a parse error too.
	if dec.More() {
		off := dec.InputOffset()
		line, col := lineCol(raw, off)
		return nil, &ParseError{Line: line, Column: col, Offset: off, Msg: "unexpected data after document"}
	}
	return &doc, nil
}

func toParseError(raw []byte, err error) *ParseError {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		line, col := lineCol(raw, syn.Offset)
		return &ParseError{Line: line, Column: col, Offset: syn.Offset, Msg: syn.Error()}
	}
	var typ *json.UnmarshalTypeError
	if errors.As(err, &typ) {
		line, col := lineCol(raw, typ.Offset)
		msg := fmt.Sprintf("field %q: cannot decode %s", typ.Field, typ.Value)
		return &ParseError{Line: line, Column: col, Offset: typ.Offset, Msg: msg}
	}
	return &ParseError{Line: 1, Column: 1, Msg: err.Error()}
}

// lineCol converts a byte offset into 1-based line and column numbers.
func lineCol(raw []byte, offset int64) (int, int) {
	if offset > int64(len(raw)) {
		offset = int64(len(raw))
	}
	prefix := raw[:offset]
	line := bytes.Count(prefix, []byte{'\n'}) + 1
	lastNL := bytes.LastIndexByte(prefix, '\n')
	col := int(offset) - lastNL // lastNL is -1 on the first line
	return line, col
}
