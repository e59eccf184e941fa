// Package prompts renders the texts sent to the language-analysis collaborator.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed templates/*.tmpl
var files embed.FS

var templates = template.Must(template.ParseFS(files, "templates/*.tmpl"))

// CatalogAnalysis feeds the catalog update analysis
type CatalogAnalysis struct {
	Repository string
	Catalog    string // live catalog as JSON
	FileTree   string
	Commits    string
}

// Changelog feeds the changelog generation
type Changelog struct {
	Repository string
	Branch     string
	Readme     string
	Commits    string
}

// PageContent feeds the generation of one catalog page
type PageContent struct {
	Repository string
	Title      string
	Prompt     string
	FileTree   string
}

// AskRepository feeds a question about a repository
type AskRepository struct {
	Repository string
	Sections   []string
	Question   string
}

// RenderCatalogAnalysis renders the catalog analysis prompt
func RenderCatalogAnalysis(data CatalogAnalysis) (string, error) {
	return render("analyze_catalog.tmpl", data)
}

// RenderChangelog renders the changelog prompt
func RenderChangelog(data Changelog) (string, error) {
	return render("changelog.tmpl", data)
}

// RenderPageContent renders the page prompt
func RenderPageContent(data PageContent) (string, error) {
	return render("page_content.tmpl", data)
}

// RenderAskRepository renders the question prompt
func RenderAskRepository(data AskRepository) (string, error) {
	return render("ask_repository.tmpl", data)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
