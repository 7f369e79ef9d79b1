package browser

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hazyhaar/longshot/internal/suppress"
)

// DOM adapts a Tab to the suppressor's page-side capability. Candidate
// elements are tagged with a data attribute during collection so later
// calls address them without re-walking the tree.
type DOM struct {
	tab *Tab
}

// NewDOM returns the suppress adapter for a tab.
func NewDOM(t *Tab) *DOM { return &DOM{tab: t} }

var _ suppress.DOM = (*DOM)(nil)

// Collect walks the document for elements worth classifying: anything with
// fixed or sticky positioning, plus anything whose tag, id or class matches
// the chrome vocabulary. Each hit is tagged with data-lsid.
func (d *DOM) Collect(ctx context.Context) ([]suppress.Candidate, error) {
	res, err := d.tab.Page.Context(ctx).Eval(`(vocab) => {
		const re = new RegExp(vocab, 'i');
		const vh = window.innerHeight;
		const out = [];
		let n = 0;
		for (const el of document.body.querySelectorAll('*')) {
			const cs = getComputedStyle(el);
			const name = el.tagName + ' ' + (el.id || '') + ' ' + (el.getAttribute('class') || '');
			const hit = re.test(name);
			if (cs.position !== 'fixed' && cs.position !== 'sticky' && !hit) continue;
			const r = el.getBoundingClientRect();
			const id = n++;
			el.setAttribute('data-lsid', String(id));
			out.push({
				id: id,
				position: cs.position,
				visible: cs.display !== 'none' && cs.visibility !== 'hidden' && r.width > 0 && r.height > 0,
				width: Math.round(r.width),
				height: Math.round(r.height),
				top: r.top,
				bottom: r.bottom,
				viewportHeight: vh,
				vocabHit: hit,
				animated: cs.animationName !== 'none' && parseFloat(cs.animationDuration) > 0,
			});
		}
		return out;
	}`, suppress.VocabPattern())
	if err != nil {
		return nil, fmt.Errorf("browser: collect candidates: %w", err)
	}

	var cands []suppress.Candidate
	for _, v := range res.Value.Arr() {
		cands = append(cands, suppress.Candidate{
			ID:             v.Get("id").Int(),
			Position:       v.Get("position").Str(),
			Visible:        v.Get("visible").Bool(),
			Width:          v.Get("width").Int(),
			Height:         v.Get("height").Int(),
			Top:            v.Get("top").Num(),
			Bottom:         v.Get("bottom").Num(),
			ViewportHeight: v.Get("viewportHeight").Int(),
			VocabHit:       v.Get("vocabHit").Bool(),
			Animated:       v.Get("animated").Bool(),
		})
	}
	return cands, nil
}

// Probe scrolls by scrollBy pixels, re-measures the given elements, and
// restores the scroll position, all inside one evaluation so no capture can
// interleave with the displaced state.
func (d *DOM) Probe(ctx context.Context, ids []int, scrollBy int) (map[int]suppress.Probe, error) {
	res, err := d.tab.Page.Context(ctx).Eval(`(ids, by) => {
		const e = document.scrollingElement || document.documentElement;
		const find = (id) => document.querySelector('[data-lsid="' + id + '"]');
		const before = {};
		for (const id of ids) {
			const el = find(id);
			if (el) before[id] = el.getBoundingClientRect().top;
		}
		const saved = e.scrollTop;
		e.scrollTop = saved + by;
		const applied = e.scrollTop - saved;
		document.documentElement.offsetHeight;
		const out = {};
		for (const id of ids) {
			const el = find(id);
			if (el && id in before) {
				out[id] = {before: before[id], after: el.getBoundingClientRect().top, delta: applied};
			}
		}
		e.scrollTop = saved;
		return out;
	}`, ids, scrollBy)
	if err != nil {
		return nil, fmt.Errorf("browser: probe: %w", err)
	}

	probes := make(map[int]suppress.Probe)
	for key, v := range res.Value.Map() {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		probes[id] = suppress.Probe{
			BeforeTop: v.Get("before").Num(),
			AfterTop:  v.Get("after").Num(),
			Delta:     v.Get("delta").Num(),
		}
	}
	return probes, nil
}

// Apply neutralizes one element and returns its prior inline style.
func (d *DOM) Apply(ctx context.Context, id int, s suppress.Strategy) (string, error) {
	res, err := d.tab.Page.Context(ctx).Eval(applyScript, id, string(s))
	if err != nil {
		return "", fmt.Errorf("browser: apply %s to %d: %w", s, id, err)
	}
	if res.Value.Nil() {
		return "", fmt.Errorf("browser: apply: element %d not found", id)
	}
	return res.Value.Str(), nil
}

// Reapply re-asserts overrides on the given records. Elements that vanished
// since collection are skipped.
func (d *DOM) Reapply(ctx context.Context, recs []suppress.Record) error {
	ids := make([]int, len(recs))
	strats := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
		strats[i] = string(r.Strategy)
	}
	_, err := d.tab.Page.Context(ctx).Eval(`(ids, strats) => {
		for (let i = 0; i < ids.length; i++) {
			const el = document.querySelector('[data-lsid="' + ids[i] + '"]');
			if (!el) continue;
			applyStrategy(el, strats[i]);
		}
		function applyStrategy(el, s) {
			if (s === 'hide') {
				el.style.setProperty('display', 'none', 'important');
			} else if (s === 'force-static') {
				el.style.setProperty('position', 'static', 'important');
			} else if (s === 'freeze') {
				el.style.setProperty('animation', 'none', 'important');
				el.style.setProperty('transition', 'none', 'important');
			}
		}
		return true;
	}`, ids, strats)
	if err != nil {
		return fmt.Errorf("browser: reapply: %w", err)
	}
	return nil
}

// Restore puts one element's inline style back exactly as saved and drops
// the collection tag.
func (d *DOM) Restore(ctx context.Context, rec suppress.Record) error {
	res, err := d.tab.Page.Context(ctx).Eval(`(id, style) => {
		const el = document.querySelector('[data-lsid="' + id + '"]');
		if (!el) return false;
		if (style) { el.setAttribute('style', style); } else { el.removeAttribute('style'); }
		el.removeAttribute('data-lsid');
		return true;
	}`, rec.ID, rec.SavedStyle)
	if err != nil {
		return fmt.Errorf("browser: restore %d: %w", rec.ID, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("browser: restore: element %d not found", rec.ID)
	}
	return nil
}

const applyScript = `(id, strategy) => {
	const el = document.querySelector('[data-lsid="' + id + '"]');
	if (!el) return null;
	const saved = el.getAttribute('style') || '';
	if (strategy === 'hide') {
		el.style.setProperty('display', 'none', 'important');
	} else if (strategy === 'force-static') {
		el.style.setProperty('position', 'static', 'important');
	} else if (strategy === 'freeze') {
		el.style.setProperty('animation', 'none', 'important');
		el.style.setProperty('transition', 'none', 'important');
	}
	return saved;
}`
