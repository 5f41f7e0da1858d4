// Package sniffer inspects uploaded document bytes before extraction: it
// recognizes the PDF header, reads the declared version and generates a
// fingerprint used to correlate log lines about the same file.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// headerWindow is how far into the file a PDF header is searched for.
const headerWindow = 1024

// tailWindow is how much of the end of the file is scanned for trailer keys.
const tailWindow = 4096

var pdfMagic = []byte("%PDF-")

// ErrEmptyFile is returned for zero-length input.
var ErrEmptyFile = errors.New("file is empty")

// FileInfo describes a sniffed document.
type FileInfo struct {
	IsPDF       bool
	Version     string // e.g. "1.7"; empty when not a PDF
	Offset      int    // position of the header
	Encrypted   bool   // trailer references an /Encrypt dictionary
	Size        int
	Fingerprint string // sha256 of the content
}

// Detect sniffs data.
func Detect(data []byte) (*FileInfo, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	info := &FileInfo{
		Size:        len(data),
		Offset:      -1,
		Fingerprint: Fingerprint(data),
	}

	head := data[:min(len(data), headerWindow)]
	idx := bytes.Index(head, pdfMagic)
	if idx < 0 {
		return info, nil
	}
	info.IsPDF = true
	info.Offset = idx
	info.Version = readVersion(data[idx+len(pdfMagic):])

	tail := data[max(0, len(data)-tailWindow):]
	info.Encrypted = bytes.Contains(tail, []byte("/Encrypt"))
	return info, nil
}

// readVersion reads "<major>.<minor>" right after the magic.
func readVersion(b []byte) string {
	end := 0
	for end < len(b) && end < 4 && (b[end] == '.' || (b[end] >= '0' && b[end] <= '9')) {
		end++
	}
	return string(b[:end])
}

// Fingerprint returns the hex sha256 of data.
func Fingerprint(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Short returns the first 12 characters of a fingerprint, enough for logs.
func (f *FileInfo) Short() string {
	if len(f.Fingerprint) < 12 {
		return f.Fingerprint
	}
	return f.Fingerprint[:12]
}
