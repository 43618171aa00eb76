// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package comicinfo embeds ComicInfo.xml metadata documents into comic
// book archives. The schema follows the community ComicInfo v2 format
// that Komga and most readers understand.
package comicinfo

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// ComicInfo is the subset of the ComicInfo v2 schema komf writes.
type ComicInfo struct {
	XMLName xml.Name `xml:"ComicInfo"`

	Title       string `xml:"Title,omitempty"`
	Series      string `xml:"Series,omitempty"`
	Number      string `xml:"Number,omitempty"`
	Count       int    `xml:"Count,omitempty"`
	Summary     string `xml:"Summary,omitempty"`
	Year        int    `xml:"Year,omitempty"`
	Writer      string `xml:"Writer,omitempty"`
	Penciller   string `xml:"Penciller,omitempty"`
	Publisher   string `xml:"Publisher,omitempty"`
	Genre       string `xml:"Genre,omitempty"`
	Tags        string `xml:"Tags,omitempty"`
	Web         string `xml:"Web,omitempty"`
	LanguageISO string `xml:"LanguageISO,omitempty"`
	AgeRating   string `xml:"AgeRating,omitempty"`
}

// Marshal renders the document with the XML declaration readers expect.
func (c *ComicInfo) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal comicinfo: %w", err)
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// JoinList renders a string list the way ComicInfo fields expect,
// comma separated.
func JoinList(values []string) string {
	return strings.Join(values, ", ")
}
