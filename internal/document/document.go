// Package document encodes the entry history as a human-editable export
// document and decodes it back. The same format backs the flat-file backend.
package document

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ananke/internal/model"
)

// Format — формат документа экспорта.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat разбирает имя формата; пустая строка означает JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("unknown document format %q", s)
	}
}

// FormatFromPath выбирает формат по расширению файла.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// record — запись в документе. Ключи JSON сопоставляются без учёта регистра,
// поэтому старые файлы с ключами вида "KeyId" тоже читаются.
type record struct {
	ID          string  `json:"id" yaml:"id"`
	KeyID       string  `json:"keyId" yaml:"keyId"`
	Timestamp   string  `json:"timestamp" yaml:"timestamp"`
	Description string  `json:"description" yaml:"description"`
	Identity    *string `json:"identity,omitempty" yaml:"identity,omitempty"`
	Ciphertext  string  `json:"ciphertext" yaml:"ciphertext"`
	Meta        *string `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// timestamps without a zone are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Encode пишет записи в w в указанном формате.
func Encode(w io.Writer, entries []model.Entry, f Format) error {
	recs := make([]record, 0, len(entries))
	for _, e := range entries {
		recs = append(recs, toRecord(e))
	}
	switch f {
	case JSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(recs); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown document format %q", f)
	}
}

// Marshal is Encode into a byte slice.
func Marshal(entries []model.Entry, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, entries, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode читает документ и проверяет каждую запись. Пустой документ — пустая история.
func Decode(r io.Reader, f Format) ([]model.Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var recs []record
	switch f {
	case JSON, "":
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("decode json document: %w", err)
		}
	case YAML:
		if err := yaml.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("decode yaml document: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown document format %q", f)
	}

	res := make([]model.Entry, 0, len(recs))
	for i, rec := range recs {
		e, err := rec.toEntry()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		res = append(res, e)
	}
	return res, nil
}

func toRecord(e model.Entry) record {
	return record{
		ID:          e.ID,
		KeyID:       e.KeyID,
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
		Description: e.Description,
		Identity:    e.Identity,
		Ciphertext:  base64.StdEncoding.EncodeToString(e.Ciphertext),
		Meta:        e.Meta,
	}
}

func (r record) toEntry() (model.Entry, error) {
	ts, err := parseTimestamp(r.Timestamp)
	if err != nil {
		return model.Entry{}, fmt.Errorf("entry %s: %w", r.ID, err)
	}
	ct, err := base64.StdEncoding.DecodeString(strings.TrimSpace(r.Ciphertext))
	if err != nil {
		return model.Entry{}, fmt.Errorf("entry %s: invalid base64 ciphertext: %w", r.ID, err)
	}
	e := model.Entry{
		ID:          r.ID,
		KeyID:       r.KeyID,
		Timestamp:   ts,
		Description: r.Description,
		Identity:    r.Identity,
		Ciphertext:  ct,
		Meta:        r.Meta,
	}
	if err := e.Validate(); err != nil {
		return model.Entry{}, err
	}
	return e, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp is required")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
