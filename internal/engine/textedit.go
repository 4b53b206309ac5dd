package engine

import (
	"go.uber.org/zap"

	"github.com/flowline-dev/flowline/internal/document"
	"github.com/flowline-dev/flowline/internal/jsondiff"
)

// ApplyText folds a raw document-text edit into the engine. The text path is
// forgiving: invalid JSON is buffered with its parse position and the last
// good document stays live, while a formatting-only edit (whitespace,
// key order, number spelling) is recognized and skipped entirely.
func (e *Engine) ApplyText(raw []byte) error {
	if e.notifying {
		return ErrReentrantEdit
	}
	if e.doc == nil {
		return ErrNoDocument
	}

	next, perr := document.Parse(raw)
	if perr != nil {
		e.pendingText = append([]byte(nil), raw...)
		e.parseErr = perr
		e.log.Debug("Text edit buffered, parse failed",
			zap.Int("line", perr.Line),
			zap.Int("column", perr.Column),
			zap.String("reason", perr.Msg),
		)
		return perr
	}
	e.pendingText = nil
	e.parseErr = nil

	canonical, err := document.Marshal(e.doc)
	if err == nil && jsondiff.Equivalent(canonical, raw) {
		// Semantically identical text, only the rendering differs. Skipping
		// the swap keeps node identity, selection and layout intact.
		return nil
	}

	document.AdoptIDs(next, e.doc)
	e.doc = next
	e.refreshGraph()
	if e.selected != "" && findNode(e.nodes, e.selected) == nil {
		e.selected = ""
	}
	e.pending = true
	e.notify(EventDocumentUpdated, EventNodesUpdated, EventConnectionsUpdated)
	return nil
}

// PendingText returns the buffered unparsable text, or nil when the last text
// edit parsed cleanly.
func (e *Engine) PendingText() []byte {
	if e.pendingText == nil {
		return nil
	}
	return append([]byte(nil), e.pendingText...)
}

// ParseErr returns the position of the last text edit's parse failure, or nil.
func (e *Engine) ParseErr() *document.ParseError {
	return e.parseErr
}
