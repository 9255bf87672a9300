package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/documentloaders"
)

// Page is the extracted text of one document page.
type Page struct {
	Number  int
	Content string
}

// Loader extracts pages from a file.
type Loader interface {
	Load(ctx context.Context, path string) ([]Page, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, path string) ([]Page, error)

func (f LoaderFunc) Load(ctx context.Context, path string) ([]Page, error) {
	return f(ctx, path)
}

// PDFLoader reads PDF files with the langchaingo PDF loader.
type PDFLoader struct{}

// Load returns the text of every page in path, in page order.
func (PDFLoader) Load(ctx context.Context, path string) ([]Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	docs, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading pdf %s: %w", path, err)
	}

	pages := make([]Page, len(docs))
	for i, d := range docs {
		pages[i] = Page{Number: i + 1, Content: d.PageContent}
	}
	return pages, nil
}
