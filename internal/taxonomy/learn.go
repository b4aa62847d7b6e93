package taxonomy

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var keywordJunk = regexp.MustCompile(`[^\p{L}\p{N}_\s^$]`)

// CleanKeyword prepares reviewer-supplied text for use as a trigger:
// lowercase, punctuation removed except regex anchors.
func CleanKeyword(s string) string {
	return strings.TrimSpace(keywordJunk.ReplaceAllString(strings.ToLower(s), ""))
}

// BackupPath returns where AppendKeyword keeps the pristine copy of a
// categories document.
func BackupPath(path string) string {
	if strings.HasSuffix(path, ".yml") {
		return strings.TrimSuffix(path, ".yml") + "_v1_backup.yml"
	}
	if strings.HasSuffix(path, ".yaml") {
		return strings.TrimSuffix(path, ".yaml") + "_v1_backup.yaml"
	}
	return path + "_v1_backup"
}

// AppendKeyword adds keyword to the triggers of the named category in the
// categories document at path. It reports whether the document changed.
// Before the first write a backup of the original document is taken; later
// writes leave the backup alone.
func AppendKeyword(path, category, keyword string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}

	kw := CleanKeyword(keyword)
	if kw == "" {
		return false, nil
	}

	var doc categoriesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}

	updated := false
	for i := range doc.Categories {
		c := &doc.Categories[i]
		if c.Name != category {
			continue
		}
		for _, existing := range c.Triggers {
			if existing == kw {
				return false, nil
			}
		}
		c.Triggers = append(c.Triggers, kw)
		updated = true
		break
	}
	if !updated {
		return false, nil
	}

	backup := BackupPath(path)
	if _, err := os.Stat(backup); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(backup, data, 0o644); err != nil {
			return false, fmt.Errorf("writing backup: %w", err)
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return false, fmt.Errorf("encoding categories: %w", err)
	}
	if err := enc.Close(); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}
