// Package prompt renders mustache templates into messages. Templates are
// strict: referencing a variable the data does not provide is an error.
package prompt

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/cbroglie/mustache"

	"github.com/Mirascope/mirascope-sub001/content"
)

func init() {
	mustache.AllowMissingVariables = false
}

// Template is a parsed prompt template.
type Template struct {
	name     string
	template *mustache.Template
}

// Parse compiles a template from source.
func Parse(name, source string) (*Template, error) {
	template, err := mustache.ParseString(source)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template %s: %w", name, err)
	}
	return &Template{name: name, template: template}, nil
}

// MustParse is Parse for package-level template variables.
func MustParse(name, source string) *Template {
	template, err := Parse(name, source)
	if err != nil {
		panic(err)
	}
	return template
}

// fsPartialProvider reads {{>partial}} references from the template's
// directory within the file system.
type fsPartialProvider struct {
	fs     fs.ReadFileFS
	prefix string
}

func (p *fsPartialProvider) Get(name string) (string, error) {
	templateBytes, err := p.fs.ReadFile(fmt.Sprintf("%s%s.mustache", p.prefix, name))
	if err != nil {
		return "", err
	}
	return string(templateBytes), nil
}

// ParseFS compiles <name>.mustache from the file system, resolving partials
// relative to the template's directory.
func ParseFS(fileSystem fs.ReadFileFS, name string) (*Template, error) {
	templateBytes, err := fileSystem.ReadFile(name + ".mustache")
	if err != nil {
		return nil, fmt.Errorf("reading prompt template %s: %w", name, err)
	}

	prefix := name[:strings.LastIndex(name, "/")+1]
	partialProvider := &fsPartialProvider{fs: fileSystem, prefix: prefix}
	template, err := mustache.ParseStringPartials(string(templateBytes), partialProvider)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template %s: %w", name, err)
	}
	return &Template{name: name, template: template}, nil
}

// MustParseFS is ParseFS for package-level template variables backed by an
// embedded file system.
func MustParseFS(fileSystem fs.ReadFileFS, name string) *Template {
	template, err := ParseFS(fileSystem, name)
	if err != nil {
		panic(err)
	}
	return template
}

// Render fills the template with data.
func (t *Template) Render(data any) (string, error) {
	result, err := t.template.Render(data)
	if err != nil {
		return "", fmt.Errorf("rendering prompt template %s: %w", t.name, err)
	}
	return result, nil
}

// UserMessage renders the template as a user message.
func (t *Template) UserMessage(data any) (content.Message, error) {
	text, err := t.Render(data)
	if err != nil {
		return content.Message{}, err
	}
	return content.UserMessage(text), nil
}

// SystemMessage renders the template as a system message.
func (t *Template) SystemMessage(data any) (content.Message, error) {
	text, err := t.Render(data)
	if err != nil {
		return content.Message{}, err
	}
	return content.SystemMessage(text), nil
}
