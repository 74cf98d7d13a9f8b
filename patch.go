package hxlive

import (
	"log/slog"

	"github.com/pthm/hxlive/lib/protocol"
)

// Patcher applies server patch batches to the page.
type Patcher struct {
	host      Host
	forms     *FormStore
	lifecycle *Dispatcher
	log       *slog.Logger
}

func newPatcher(host Host, forms *FormStore, lifecycle *Dispatcher, log *slog.Logger) *Patcher {
	return &Patcher{
		host:      host,
		forms:     forms,
		lifecycle: lifecycle,
		log:       log.With("component", "patcher"),
	}
}

// Apply snapshots form state, applies every instruction in order, and
// restores form state. An instruction whose anchor is missing is skipped
// without affecting the rest of the batch. Hydrate runs even when the batch
// touched no form.
func (p *Patcher) Apply(batch []protocol.Instruction) {
	p.forms.Dehydrate()
	for _, in := range batch {
		p.apply(in)
	}
	p.forms.Hydrate()
}

func (p *Patcher) apply(in protocol.Instruction) {
	mode, ok := SwapFor(in)
	if !ok {
		p.log.Warn("hxlive: unknown patch action", "anchor", in.Anchor, "action", in.Action)
		return
	}

	found := p.host.FindByAttribute(in.Anchor)
	if len(found) == 0 {
		p.log.Debug("hxlive: patch anchor not found", "anchor", in.Anchor, "action", in.Action)
		return
	}
	target := found[0]

	switch mode {
	case SwapNone:
	case SwapDelete:
		p.lifecycle.BeforeDestroy(target)
		target.Remove()
		p.lifecycle.Destroyed(target)
	case SwapOuter:
		// Updated fires on the outgoing element; the replacement is
		// mounted by the next wiring pass.
		node := p.host.CreateFromHTML(in.HTML)
		p.lifecycle.BeforeUpdate(target, node)
		if node == nil {
			target.Remove()
		} else {
			target.ReplaceWithNode(node)
		}
		p.lifecycle.Updated(target)
	case SwapBeforeEnd, SwapAfterBegin:
		node := p.host.CreateFromHTML(in.HTML)
		if node == nil {
			p.log.Debug("hxlive: empty insert", "anchor", in.Anchor, "action", in.Action)
			return
		}
		p.lifecycle.BeforeUpdate(target, node)
		if mode == SwapBeforeEnd {
			target.Append(node)
		} else {
			target.Prepend(node)
		}
		p.lifecycle.Updated(target)
	}
}
