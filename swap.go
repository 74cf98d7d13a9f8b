package hxlive

import "github.com/pthm/hxlive/lib/protocol"

// SwapMode is how a patch instruction changes its anchor element. The names
// follow the insertAdjacentHTML/outerHTML vocabulary.
type SwapMode string

const (
	// SwapOuter replaces the anchor including its tag (outerHTML).
	SwapOuter SwapMode = "outerHTML"

	// SwapBeforeEnd inserts the new node as the anchor's last child.
	SwapBeforeEnd SwapMode = "beforeend"

	// SwapAfterBegin inserts the new node as the anchor's first child.
	SwapAfterBegin SwapMode = "afterbegin"

	// SwapDelete removes the anchor. A REPLACE with empty HTML.
	SwapDelete SwapMode = "delete"

	// SwapNone leaves the DOM alone.
	SwapNone SwapMode = "none"
)

// SwapFor maps an instruction to its swap mode. It reports false for
// actions it does not know.
func SwapFor(in protocol.Instruction) (SwapMode, bool) {
	switch in.Action {
	case protocol.Noop:
		return SwapNone, true
	case protocol.Replace:
		if in.HTML == "" {
			return SwapDelete, true
		}
		return SwapOuter, true
	case protocol.Append:
		return SwapBeforeEnd, true
	case protocol.Prepend:
		return SwapAfterBegin, true
	}
	return "", false
}
