package feed

import (
	"encoding/json"

	"github.com/mmcdole/gofeed"

	"github.com/jobgrid/feed-importer/internal/importer"
)

// Kind tags the wire shape a feed document was parsed from.
type Kind string

// Recognized document kinds.
const (
	KindRSS     Kind = "rss"
	KindAtom    Kind = "atom"
	KindUnknown Kind = "unknown"
)

// Document is the tagged parse result produced before normalization.
// A document of unknown kind carries no entries.
type Document struct {
	Kind    Kind
	Entries []*gofeed.Item
}

func parseDocument(body []byte) (Document, error) {
	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return Document{Kind: KindUnknown}, err
	}
	switch parsed.FeedType {
	case "rss":
		return Document{Kind: KindRSS, Entries: parsed.Items}, nil
	case "atom":
		return Document{Kind: KindAtom, Entries: parsed.Items}, nil
	default:
		return Document{Kind: KindUnknown}, nil
	}
}

// Normalize reduces every entry of a document to the uniform item shape.
func Normalize(doc Document) []importer.NormalizedItem {
	if len(doc.Entries) == 0 {
		return nil
	}
	items := make([]importer.NormalizedItem, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		if entry == nil {
			continue
		}
		items = append(items, normalizeEntry(entry))
	}
	return items
}

// normalizeEntry extracts fields with empty-string defaults. The
// external ID falls back through GUID (RSS guid, Atom id), link, and
// title before resorting to a serialized form of the whole entry, so
// it is never empty and stays deterministic across repeated fetches.
func normalizeEntry(entry *gofeed.Item) importer.NormalizedItem {
	return importer.NormalizedItem{
		ExternalID:  externalID(entry),
		Title:       entry.Title,
		Company:     entryAuthor(entry),
		Location:    entryLocation(entry),
		Description: entryDescription(entry),
		Raw:         rawEntry(entry),
	}
}

func externalID(entry *gofeed.Item) string {
	for _, candidate := range []string{entry.GUID, entry.Link, entry.Title} {
		if candidate != "" {
			return candidate
		}
	}
	if raw := rawEntry(entry); raw != nil {
		return string(raw)
	}
	return "{}"
}

func entryAuthor(entry *gofeed.Item) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	for _, author := range entry.Authors {
		if author != nil && author.Name != "" {
			return author.Name
		}
	}
	return ""
}

// entryLocation probes extension elements for a location value, since
// job feeds carry it under varying namespaces (job_listing:location,
// vacancy:location and similar).
func entryLocation(entry *gofeed.Item) string {
	if v, ok := entry.Custom["location"]; ok {
		return v
	}
	for _, ns := range entry.Extensions {
		if exts, ok := ns["location"]; ok && len(exts) > 0 {
			return exts[0].Value
		}
	}
	return ""
}

func entryDescription(entry *gofeed.Item) string {
	if entry.Description != "" {
		return entry.Description
	}
	// content:encoded lands here for RSS, <content> for Atom.
	return entry.Content
}

func rawEntry(entry *gofeed.Item) json.RawMessage {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil
	}
	return raw
}
