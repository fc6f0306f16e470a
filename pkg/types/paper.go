// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Paper holds one listing entry and everything the pipeline derives from it.
type Paper struct {
	// ArxivID is the arXiv identifier (e.g. "2502.01234").
	ArxivID string `json:"arxiv_id" yaml:"arxiv_id"`

	// Title is the paper title as listed.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract as listed.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Upvotes is the listing's vote count.
	Upvotes int `json:"upvotes" yaml:"upvotes"`

	// PublishedAt is the listing's publication timestamp, kept verbatim.
	PublishedAt string `json:"published_at" yaml:"published_at"`

	// TitleZH and AbstractZH are the translated title and abstract. Empty on failure.
	TitleZH    string `json:"title_zh,omitempty" yaml:"title_zh,omitempty"`
	AbstractZH string `json:"abstract_zh,omitempty" yaml:"abstract_zh,omitempty"`

	// Tags classifies the paper.
	Tags Tags `json:"tags" yaml:"tags"`

	// Document is the paper body. Nil when no content could be obtained.
	Document *Document `json:"document,omitempty" yaml:"-"`

	// Body is the translated Markdown with figures placed, ready to render.
	Body string `json:"-" yaml:"-"`

	// Status summarizes how far the pipeline got with this paper.
	Status PaperStatus `json:"status" yaml:"status"`
}

// DisplayTitle returns the translated title, or the original when no translation exists.
func (p Paper) DisplayTitle() string {
	if p.TitleZH != "" {
		return p.TitleZH
	}
	return p.Title
}

// DisplayAbstract returns the translated abstract, or the original.
func (p Paper) DisplayAbstract() string {
	if p.AbstractZH != "" {
		return p.AbstractZH
	}
	return p.Abstract
}

// Tags holds topic labels generated for a paper.
type Tags struct {
	Domain     []string `json:"domain" yaml:"domain"`
	Method     []string `json:"method" yaml:"method"`
	Task       []string `json:"task" yaml:"task"`
	Dataset    []string `json:"dataset" yaml:"dataset"`
	OpenSource bool     `json:"open_source" yaml:"open_source"`
}

// EmptyTags returns Tags with every list non-nil.
func EmptyTags() Tags {
	return Tags{
		Domain:  []string{},
		Method:  []string{},
		Task:    []string{},
		Dataset: []string{},
	}
}

// Flatten returns all labels in domain, method, task, dataset order.
func (t Tags) Flatten() []string {
	var out []string
	out = append(out, t.Domain...)
	out = append(out, t.Method...)
	out = append(out, t.Task...)
	out = append(out, t.Dataset...)
	return out
}
