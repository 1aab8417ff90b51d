package feed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const rssDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:job="https://example.com/ns/job">
  <channel>
    <title>Jobs</title>
    <item>
      <guid>job-1</guid>
      <title>Backend Engineer</title>
      <author>Acme Corp</author>
      <link>https://example.com/jobs/1</link>
      <description>Build services</description>
      <job:location>Remote</job:location>
    </item>
    <item>
      <title>Data Engineer</title>
      <link>https://example.com/jobs/2</link>
    </item>
    <item>
      <title>Untracked Role</title>
    </item>
  </channel>
</rss>`

const atomDoc = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Jobs</title>
  <entry>
    <id>urn:job:77</id>
    <title>Platform Engineer</title>
    <link href="https://example.com/jobs/77"/>
    <author><name>Globex</name></author>
    <content>Run the platform</content>
  </entry>
</feed>`

func TestParseDocumentKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		kind    Kind
		entries int
		wantErr bool
	}{
		{name: "rss channel items", body: rssDoc, kind: KindRSS, entries: 3},
		{name: "atom entries", body: atomDoc, kind: KindAtom, entries: 1},
		{name: "malformed", body: "<html><body>not a feed</body></html>", kind: KindUnknown, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doc, err := parseDocument([]byte(tc.body))
			if tc.wantErr {
				require.Error(t, err)
				require.Empty(t, doc.Entries)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.kind, doc.Kind)
			require.Len(t, doc.Entries, tc.entries)
		})
	}
}

func TestNormalizeExternalIDFallbackChain(t *testing.T) {
	t.Parallel()

	doc, err := parseDocument([]byte(rssDoc))
	require.NoError(t, err)

	items := Normalize(doc)
	require.Len(t, items, 3)

	require.Equal(t, "job-1", items[0].ExternalID, "guid wins when present")
	require.Equal(t, "https://example.com/jobs/2", items[1].ExternalID, "link is next fallback")
	require.Equal(t, "Untracked Role", items[2].ExternalID, "title is next fallback")
}

func TestNormalizeFieldExtraction(t *testing.T) {
	t.Parallel()

	doc, err := parseDocument([]byte(rssDoc))
	require.NoError(t, err)
	items := Normalize(doc)
	require.Len(t, items, 3)

	first := items[0]
	require.Equal(t, "Backend Engineer", first.Title)
	require.Equal(t, "Remote", first.Location)
	require.Equal(t, "Build services", first.Description)
	require.NotEmpty(t, first.Raw)

	// missing optional fields never fail, they default to empty
	second := items[1]
	require.Equal(t, "", second.Company)
	require.Equal(t, "", second.Location)
	require.Equal(t, "", second.Description)
}

func TestNormalizeAtomEntry(t *testing.T) {
	t.Parallel()

	doc, err := parseDocument([]byte(atomDoc))
	require.NoError(t, err)
	items := Normalize(doc)
	require.Len(t, items, 1)

	item := items[0]
	require.Equal(t, "urn:job:77", item.ExternalID, "atom id maps through guid")
	require.Equal(t, "Globex", item.Company)
	require.Equal(t, "Run the platform", item.Description, "atom content backs description")
}

func TestNormalizeDeterministicAcrossParses(t *testing.T) {
	t.Parallel()

	first, err := parseDocument([]byte(rssDoc))
	require.NoError(t, err)
	second, err := parseDocument([]byte(rssDoc))
	require.NoError(t, err)

	a := Normalize(first)
	b := Normalize(second)
	require.Equal(t, len(a), len(b))
	for i := range a {
		require.Equal(t, a[i].ExternalID, b[i].ExternalID)
	}
}
