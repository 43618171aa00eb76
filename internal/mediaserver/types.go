// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package mediaserver defines the boundary to the media-library servers
// (Komga, Kavita): the entity model as the server reports it, the patch
// model for lock-aware write-backs, and the Client interface the
// synchronization core consumes.
package mediaserver

// Kind identifies a media server implementation.
type Kind string

const (
	KindKomga  Kind = "komga"
	KindKavita Kind = "kavita"
)

// Series is a series as the media server reports it, including the
// user-visible lock flags that pin fields against automatic updates.
type Series struct {
	ID        string
	LibraryID string
	Name      string
	BookCount int
	Metadata  SeriesMetadata
}

// SeriesMetadata mirrors the server-side editable series fields. Each
// XxxLock flag is user-set; a locked field must never be written back.
type SeriesMetadata struct {
	Status           string
	Title            string
	TitleSort        string
	Summary          string
	Publisher        string
	ReadingDirection string
	AgeRating        *int
	Language         string
	Genres           []string
	Tags             []string
	TotalBookCount   *int
	AlternateTitles  []AlternateTitle
	Links            []WebLink

	StatusLock           bool
	TitleLock            bool
	TitleSortLock        bool
	SummaryLock          bool
	PublisherLock        bool
	ReadingDirectionLock bool
	AgeRatingLock        bool
	LanguageLock         bool
	GenresLock           bool
	TagsLock             bool
	TotalBookCountLock   bool
	LinksLock            bool
}

// AlternateTitle is a secondary series title with its language.
type AlternateTitle struct {
	Label string
	Title string
}

// WebLink is an external reference attached to a series.
type WebLink struct {
	Label string
	URL   string
}

// Book is one volume/chapter file inside a series. FilePath is the
// server-reported path of the backing archive; empty when the server
// does not expose file locations.
type Book struct {
	ID        string
	SeriesID  string
	LibraryID string
	Name      string
	Number    float64
	FilePath  string
	Metadata  BookMetadata
}

// BookMetadata mirrors the server-side editable book fields.
type BookMetadata struct {
	Title       string
	Summary     string
	Number      string
	NumberSort  *float64
	ReleaseDate string
	Authors     []Author
	Tags        []string
	ISBN        string
	Links       []WebLink

	TitleLock       bool
	SummaryLock     bool
	NumberLock      bool
	NumberSortLock  bool
	ReleaseDateLock bool
	AuthorsLock     bool
	TagsLock        bool
	ISBNLock        bool
	LinksLock       bool
}

// Author is a creator credit with its role (writer, penciller, ...).
type Author struct {
	Name string
	Role string
}

// SeriesMetadataUpdate is a partial write-back request. Nil pointers mean
// "leave untouched"; the updater only populates fields whose lock flag is
// clear on the server side. LockAll requests the server to set the lock
// flag on every written field.
type SeriesMetadataUpdate struct {
	Status           *string
	Title            *string
	TitleSort        *string
	Summary          *string
	Publisher        *string
	ReadingDirection *string
	AgeRating        *int
	Language         *string
	Genres           []string
	Tags             []string
	TotalBookCount   *int
	AlternateTitles  []AlternateTitle
	Links            []WebLink
	LockAll          bool
}

// BookMetadataUpdate is the book-level partial write-back request.
type BookMetadataUpdate struct {
	Title       *string
	Summary     *string
	Number      *string
	NumberSort  *float64
	ReleaseDate *string
	Authors     []Author
	Tags        []string
	ISBN        *string
	Links       []WebLink
	LockAll     bool
}

// Image is a cover payload for thumbnail upload.
type Image struct {
	Bytes     []byte
	MediaType string
}

// Thumbnail is a server-side thumbnail record.
type Thumbnail struct {
	ID       string
	Selected bool
}
