// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package komga

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/komf-project/komf/internal/mediaserver"
)

func TestGetSeriesMapsMetadataAndLocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/series/s-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			t.Error("missing basic auth")
		}
		_, _ = w.Write([]byte(`{
			"id": "s-1",
			"libraryId": "lib-1",
			"name": "One Piece",
			"booksCount": 3,
			"metadata": {
				"status": "ONGOING",
				"title": "One Piece",
				"titleLock": true,
				"summary": "pirates",
				"genres": ["action"],
				"tags": ["shounen"],
				"tagsLock": true,
				"alternateTitles": [{"label": "ja", "title": "ワンピース"}],
				"links": [{"label": "MangaDex", "url": "https://mangadex.org/title/x"}]
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "admin", "secret")
	series, err := client.GetSeries(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}

	if series.ID != "s-1" || series.LibraryID != "lib-1" || series.BookCount != 3 {
		t.Errorf("series = %+v", series)
	}
	if !series.Metadata.TitleLock || series.Metadata.SummaryLock {
		t.Error("lock flags not mapped")
	}
	if !series.Metadata.TagsLock {
		t.Error("tags lock not mapped")
	}
	if len(series.Metadata.AlternateTitles) != 1 || series.Metadata.AlternateTitles[0].Label != "ja" {
		t.Errorf("alternate titles = %v", series.Metadata.AlternateTitles)
	}
	if len(series.Metadata.Links) != 1 || series.Metadata.Links[0].URL != "https://mangadex.org/title/x" {
		t.Errorf("links = %v", series.Metadata.Links)
	}
}

func TestGetBooksUnwrapsPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("unpaged") != "true" {
			t.Error("books request should be unpaged")
		}
		_, _ = w.Write([]byte(`{
			"content": [
				{"id": "b-1", "seriesId": "s-1", "number": 1, "metadata": {"number": "1", "authors": [{"name": "Oda", "role": "writer"}]}},
				{"id": "b-2", "seriesId": "s-1", "number": 2, "metadata": {"number": "2"}}
			],
			"last": true
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "u", "p")
	books, err := client.GetBooks(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("GetBooks: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("got %d books, want 2", len(books))
	}
	if books[0].Metadata.Authors[0].Name != "Oda" {
		t.Errorf("authors = %v", books[0].Metadata.Authors)
	}
}

func TestUpdateSeriesMetadataPatchBody(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Fatalf("body decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	title := "Updated Title"
	status := "ENDED"
	client := NewClient(server.URL, "u", "p")
	err := client.UpdateSeriesMetadata(context.Background(), "s-1", &mediaserver.SeriesMetadataUpdate{
		Title:   &title,
		Status:  &status,
		Genres:  []string{"action"},
		LockAll: true,
	})
	if err != nil {
		t.Fatalf("UpdateSeriesMetadata: %v", err)
	}

	if captured["title"] != "Updated Title" || captured["status"] != "ENDED" {
		t.Errorf("patch body = %v", captured)
	}
	if captured["titleLock"] != true || captured["genresLock"] != true {
		t.Error("LockAll should emit lock flags for written fields")
	}
	if _, ok := captured["summary"]; ok {
		t.Error("unset fields must be absent from the patch body")
	}
}

func TestUpdateSeriesMetadataWithoutLocks(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	title := "T"
	client := NewClient(server.URL, "u", "p")
	if err := client.UpdateSeriesMetadata(context.Background(), "s-1", &mediaserver.SeriesMetadataUpdate{Title: &title}); err != nil {
		t.Fatalf("UpdateSeriesMetadata: %v", err)
	}
	if _, ok := captured["titleLock"]; ok {
		t.Error("lock flags must be absent without LockAll")
	}
}

func TestResetSeriesMetadataClearsLocks(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "u", "p")
	if err := client.ResetSeriesMetadata(context.Background(), "s-1"); err != nil {
		t.Fatalf("ResetSeriesMetadata: %v", err)
	}
	if captured["titleLock"] != false || captured["tagsLock"] != false {
		t.Errorf("reset must release lock flags, body = %v", captured)
	}
	if captured["title"] != nil {
		t.Error("reset must null the title")
	}
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "u", "p")
	_, err := client.GetSeries(context.Background(), "missing")
	if !errors.Is(err, mediaserver.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUploadSeriesThumbnail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Query().Get("selected") != "true" {
			t.Error("selected query param missing")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "png-bytes" {
			t.Errorf("file payload = %q", data)
		}
		_, _ = w.Write([]byte(`{"id": "th-1", "selected": true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "u", "p")
	thumb, err := client.UploadSeriesThumbnail(context.Background(), "s-1", mediaserver.Image{
		Bytes:     []byte("png-bytes"),
		MediaType: "image/png",
	}, true)
	if err != nil {
		t.Fatalf("UploadSeriesThumbnail: %v", err)
	}
	if thumb.ID != "th-1" || !thumb.Selected {
		t.Errorf("thumbnail = %+v", thumb)
	}
}

func TestServerErrorIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "u", "p")
	_, err := client.GetSeries(context.Background(), "s-1")
	if err == nil {
		t.Fatal("want error")
	}
}
