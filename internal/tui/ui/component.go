package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the header.
type MenuHint struct {
	Key         string
	Description string
}

// Component is a page of the application.
type Component interface {
	tview.Primitive
	// Name is the breadcrumb label.
	Name() string
	// Start is called when the page comes to the front, Stop when it leaves.
	Start()
	Stop()
}
