package ir

import (
	"maps"
	"slices"
)

// Header is the metadata every document carries beside its state.
type Header struct {
	Name         string        `json:"name"`
	DocumentType string        `json:"document_type"`
	Created      string        `json:"created"`
	LastModified string        `json:"last_modified"`
	Revision     map[Scope]int `json:"revision"`
	Meta         Object        `json:"meta,omitempty"`
}

// InitialState is the snapshot a document's logs are replayed on top of.
type InitialState struct {
	Header
	State       map[Scope]Object      `json:"state"`
	Attachments map[string]Attachment `json:"attachments"`
}

// Document is the full materialized document: header, per-scope state,
// the initial snapshot, the durable per-scope logs and the redo clipboard.
type Document struct {
	Header
	State        map[Scope]Object      `json:"state"`
	Attachments  map[string]Attachment `json:"attachments"`
	InitialState InitialState          `json:"initial_state"`
	Operations   map[Scope][]Operation `json:"operations"`
	Clipboard    []Operation           `json:"clipboard"`
}

// Clone deep-copies the header.
func (h Header) Clone() Header {
	out := h
	out.Revision = maps.Clone(h.Revision)
	out.Meta = h.Meta.Clone()
	return out
}

// Clone deep-copies the initial state.
func (s InitialState) Clone() InitialState {
	return InitialState{
		Header:      s.Header.Clone(),
		State:       cloneScopes(s.State),
		Attachments: maps.Clone(s.Attachments),
	}
}

// Clone deep-copies the document. Engine operations never mutate their
// input; they work on a clone.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	ops := make(map[Scope][]Operation, len(d.Operations))
	for scope, list := range d.Operations {
		ops[scope] = CloneOperations(list)
	}
	return &Document{
		Header:       d.Header.Clone(),
		State:        cloneScopes(d.State),
		Attachments:  maps.Clone(d.Attachments),
		InitialState: d.InitialState.Clone(),
		Operations:   ops,
		Clipboard:    CloneOperations(d.Clipboard),
	}
}

// Scopes returns every scope the document knows about in sorted order.
func (d *Document) Scopes() []Scope {
	seen := make(map[Scope]struct{})
	for s := range d.State {
		seen[s] = struct{}{}
	}
	for s := range d.Operations {
		seen[s] = struct{}{}
	}
	for s := range d.InitialState.State {
		seen[s] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// NewDocument creates a document whose current state equals initial.
// Revisions start at zero for every scope present in initial.State.
func NewDocument(initial InitialState) *Document {
	base := initial.Clone()
	if base.Revision == nil {
		base.Revision = make(map[Scope]int)
	}
	if base.State == nil {
		base.State = make(map[Scope]Object)
	}
	if base.Attachments == nil {
		base.Attachments = make(map[string]Attachment)
	}
	ops := make(map[Scope][]Operation, len(base.State))
	for scope := range base.State {
		ops[scope] = []Operation{}
		if _, ok := base.Revision[scope]; !ok {
			base.Revision[scope] = 0
		}
	}
	if base.LastModified == "" {
		base.LastModified = base.Created
	}
	doc := &Document{
		Header:       base.Header.Clone(),
		State:        cloneScopes(base.State),
		Attachments:  maps.Clone(base.Attachments),
		InitialState: base,
		Operations:   ops,
		Clipboard:    []Operation{},
	}
	return doc
}

func cloneScopes(in map[Scope]Object) map[Scope]Object {
	if in == nil {
		return nil
	}
	out := make(map[Scope]Object, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
