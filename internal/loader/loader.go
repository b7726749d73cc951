// Package loader ingests batch test datasets into (document id, raw text)
// pairs. Supported inputs: plain text files (one document per file), JSON
// Lines files (one object per line with a "text" field and optional "id"),
// HTML files (tags stripped before redaction), and zip archives of any of
// these. Malformed records are skipped with a recorded decode failure, never
// a fatal abort.
package loader

import (
	"archive/zip"
	"bufio"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/veil/internal/evaluator"
)

// Failure records one skipped record during ingestion.
type Failure struct {
	Source string `json:"source"`
	Line   int    `json:"line,omitempty"`
	Detail string `json:"detail"`
}

// maxLineBytes bounds a single JSONL record (16 MiB).
const maxLineBytes = 16 << 20

// stripHTML reduces markup to text. Strict policy removes every tag.
var stripHTML = bluemonday.StrictPolicy()

// Load reads one dataset path and returns its documents plus any per-record
// decode failures. The error return is reserved for I/O problems with the
// path itself (unreadable file, unsupported extension).
func Load(path string) ([]evaluator.Document, []Failure, error) {
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		text, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return []evaluator.Document{{ID: name, Text: string(text)}}, nil, nil

	case ".html", ".htm":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return []evaluator.Document{{ID: name, Text: htmlToText(string(raw))}}, nil, nil

	case ".jsonl":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		docs, failures := loadJSONL(name, f)
		return docs, failures, nil

	case ".zip":
		return loadZip(path)

	default:
		return nil, nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
}

// LoadAll loads multiple dataset paths, concatenating documents and failures
// in argument order.
func LoadAll(paths []string) ([]evaluator.Document, []Failure, error) {
	var docs []evaluator.Document
	var failures []Failure
	for _, p := range paths {
		d, f, err := Load(p)
		if err != nil {
			return nil, nil, err
		}
		docs = append(docs, d...)
		failures = append(failures, f...)
	}
	return docs, failures, nil
}

// loadJSONL decodes line-delimited JSON records. A malformed line or a
// record without a text field yields a Failure for that line only.
func loadJSONL(source string, r io.Reader) ([]evaluator.Document, []Failure) {
	var docs []evaluator.Document
	var failures []Failure

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec struct {
			ID   any     `json:"id"`
			Text *string `json:"text"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			log.Debug().Str("source", source).Int("line", lineNo).Err(err).Msg("skipping malformed JSONL record")
			failures = append(failures, Failure{
				Source: source,
				Line:   lineNo,
				Detail: fmt.Sprintf("malformed JSON: %v", err),
			})
			continue
		}
		if rec.Text == nil {
			failures = append(failures, Failure{
				Source: source,
				Line:   lineNo,
				Detail: "record has no \"text\" field",
			})
			continue
		}

		id := recordID(rec.ID, source, len(docs))
		docs = append(docs, evaluator.Document{ID: id, Text: *rec.Text})
	}
	if err := scanner.Err(); err != nil {
		failures = append(failures, Failure{Source: source, Line: lineNo, Detail: err.Error()})
	}

	return docs, failures
}

// loadZip recurses over supported entries of an archive.
func loadZip(path string) ([]evaluator.Document, []Failure, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer zr.Close()

	var docs []evaluator.Document
	var failures []Failure
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name))
		if ext != ".txt" && ext != ".jsonl" && ext != ".html" && ext != ".htm" {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			failures = append(failures, Failure{Source: entry.Name, Detail: err.Error()})
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			failures = append(failures, Failure{Source: entry.Name, Detail: err.Error()})
			continue
		}

		switch ext {
		case ".txt":
			docs = append(docs, evaluator.Document{ID: entry.Name, Text: string(content)})
		case ".html", ".htm":
			docs = append(docs, evaluator.Document{ID: entry.Name, Text: htmlToText(string(content))})
		case ".jsonl":
			d, f := loadJSONL(entry.Name, strings.NewReader(string(content)))
			docs = append(docs, d...)
			failures = append(failures, f...)
		}
	}

	return docs, failures, nil
}

// recordID normalizes an optional JSON id (string or number) into a document
// id, falling back to source_docN.
func recordID(raw any, source string, index int) string {
	switch v := raw.(type) {
	case string:
		if v != "" {
			return v
		}
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%v", v), ".0")
	case nil:
	}
	return fmt.Sprintf("%s_doc%d", source, index)
}

// htmlToText strips every tag and unescapes entities so detection operates
// on visible text offsets.
func htmlToText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(stripHTML.Sanitize(raw)))
}
