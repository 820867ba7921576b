package ui

import "github.com/rivo/tview"

// Pages is a stack of Components over tview.Pages. The top of the stack is
// the visible page; it is Started on push and Stopped on pop.
type Pages struct {
	*tview.Pages
	comps    map[string]Component
	stack    []string
	onChange func(top Component, stack []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{
		Pages: tview.NewPages(),
		comps: map[string]Component{},
	}
}

// Register adds c under its Name. Registered pages start hidden.
func (p *Pages) Register(c Component) {
	p.comps[c.Name()] = c
	p.AddPage(c.Name(), c, true, false)
}

// SetOnChange sets a callback fired after every stack change.
func (p *Pages) SetOnChange(fn func(top Component, stack []string)) {
	p.onChange = fn
}

// Push stops the current page and shows name on top of it.
func (p *Pages) Push(name string) {
	if _, ok := p.comps[name]; !ok {
		return
	}
	if top := p.Current(); top != nil {
		if top.Name() == name {
			return
		}
		top.Stop()
		p.HidePage(top.Name())
	}
	p.stack = append(p.stack, name)
	p.show(name)
}

// Pop removes the top page and shows the one below. The last page stays.
func (p *Pages) Pop() string {
	if len(p.stack) < 2 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.comps[top].Stop()
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	p.show(p.stack[len(p.stack)-1])
	return top
}

// Reset clears the stack and shows only name.
func (p *Pages) Reset(name string) {
	if _, ok := p.comps[name]; !ok {
		return
	}
	if top := p.Current(); top != nil {
		top.Stop()
	}
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.show(name)
}

// Current returns the top Component, or nil on an empty stack.
func (p *Pages) Current() Component {
	if len(p.stack) == 0 {
		return nil
	}
	return p.comps[p.stack[len(p.stack)-1]]
}

// Stack returns a copy of the page names, bottom first.
func (p *Pages) Stack() []string {
	return append([]string(nil), p.stack...)
}

func (p *Pages) show(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
	c := p.comps[name]
	c.Start()
	if p.onChange != nil {
		p.onChange(c, p.Stack())
	}
}
