// File: internal/locator/template.go
package locator

import (
	"fmt"
	"image"
	"os"

	// Register decoders for the formats templates are shipped in.
	_ "image/jpeg"
	_ "image/png"
)

// Template is a reference image searched for inside captured frames. It is
// immutable after construction; the grayscale form is computed once.
type Template struct {
	name string
	gray *image.Gray
}

// TemplateLoadError reports a template that could not be read or decoded.
// It is fatal to the call that needed the template, not to the process.
type TemplateLoadError struct {
	Path string
	Err  error
}

func (e *TemplateLoadError) Error() string {
	return fmt.Sprintf("load template %q: %v", e.Path, e.Err)
}

func (e *TemplateLoadError) Unwrap() error { return e.Err }

// LoadTemplate reads and decodes a template image from disk.
func LoadTemplate(path string) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &TemplateLoadError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &TemplateLoadError{Path: path, Err: err}
	}
	return TemplateFromImage(path, img), nil
}

// TemplateFromImage wraps an in-memory image as a template. The name is
// used only for logging.
func TemplateFromImage(name string, img image.Image) *Template {
	return &Template{name: name, gray: toGray(img)}
}

// Name returns the template's source path or label.
func (t *Template) Name() string { return t.name }

// Width returns the template width in pixels.
func (t *Template) Width() int { return t.gray.Bounds().Dx() }

// Height returns the template height in pixels.
func (t *Template) Height() int { return t.gray.Bounds().Dy() }
