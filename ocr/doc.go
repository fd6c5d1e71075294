// Package ocr defines abstraction layers for plugging third-party OCR engines
// (for example, Tesseract) into the page rendering pipeline: a rendered page
// goes in as an image and plain text with word boxes comes out.
package ocr
