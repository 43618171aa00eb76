// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package comicinfo

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the schema-mandated archive entry name.
const FileName = "ComicInfo.xml"

// SupportedArchive reports whether path points at an archive format the
// writer can embed metadata into.
func SupportedArchive(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cbz", ".zip":
		return true
	}
	return false
}

// WriteToArchive embeds doc as ComicInfo.xml at the root of the zip
// archive at path, replacing any existing entry. The archive is
// rewritten to a temp file in the same directory and renamed into
// place, so a crash mid-write never corrupts the original.
func WriteToArchive(path string, doc *ComicInfo) error {
	if !SupportedArchive(path) {
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(path))
	}

	payload, err := doc.Marshal()
	if err != nil {
		return err
	}

	src, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".komf-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := copyWithComicInfo(&src.Reader, tmp, payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to finalize temp archive: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace archive: %w", err)
	}
	return nil
}

func copyWithComicInfo(src *zip.Reader, dst io.Writer, payload []byte) error {
	w := zip.NewWriter(dst)

	for _, entry := range src.File {
		if entry.Name == FileName {
			continue
		}
		if err := copyEntry(w, entry); err != nil {
			_ = w.Close()
			return err
		}
	}

	info, err := w.Create(FileName)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to create comicinfo entry: %w", err)
	}
	if _, err := info.Write(payload); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write comicinfo entry: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close archive writer: %w", err)
	}
	return nil
}

func copyEntry(w *zip.Writer, entry *zip.File) error {
	header := entry.FileHeader
	dst, err := w.CreateRaw(&header)
	if err != nil {
		return fmt.Errorf("failed to copy entry %s: %w", entry.Name, err)
	}
	src, err := entry.OpenRaw()
	if err != nil {
		return fmt.Errorf("failed to read entry %s: %w", entry.Name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy entry %s: %w", entry.Name, err)
	}
	return nil
}
