// Package vision provides the screen-reading capabilities used by scripts:
// OCR through the tesseract command line and a template matcher.
package vision
