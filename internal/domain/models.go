package domain

// Domain contains the core records flowing through the harvest pipeline.

// Notice is one procurement record as delivered by a source, either a TED
// notice or a BeschA OCDS release. It stays a raw map so that every source
// field survives the pipeline verbatim; the accessors below cover the fields
// the publisher needs.
type Notice map[string]any

// Batch is the full result of one fetch invocation.
type Batch struct {
	Notices []Notice
	Total   int
}

// SourceFileKey is the provenance marker appended to stored documents.
const SourceFileKey = "source_file"

// PublicationNumber returns the TED publication identifier, or "unknown".
func (n Notice) PublicationNumber() string {
	return n.stringField("publication-number", "unknown")
}

// PublicationDate returns the raw publication timestamp string.
func (n Notice) PublicationDate() string {
	return n.stringField("publication-date", "")
}

// LocalizedTitle resolves the notice title trying each language code in order.
func (n Notice) LocalizedTitle(langs []string) (string, bool) {
	m, ok := n["title-proc"].(map[string]any)
	if !ok {
		return "", false
	}
	for _, code := range langs {
		if title, ok := m[code].(string); ok && title != "" {
			return title, true
		}
	}
	return "", false
}

// LocalizedBuyers resolves the buyer-name list trying each language code in order.
func (n Notice) LocalizedBuyers(langs []string) ([]string, bool) {
	m, ok := n["buyer-name"].(map[string]any)
	if !ok {
		return nil, false
	}
	for _, code := range langs {
		raw, ok := m[code].([]any)
		if !ok {
			continue
		}
		buyers := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				buyers = append(buyers, s)
			}
		}
		if len(buyers) > 0 {
			return buyers, true
		}
	}
	return nil, false
}

// Links returns the nested link-type -> language -> URL map.
func (n Notice) Links() map[string]map[string]string {
	raw, ok := n["links"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]map[string]string, len(raw))
	for ltype, langs := range raw {
		langMap, ok := langs.(map[string]any)
		if !ok {
			continue
		}
		urls := make(map[string]string, len(langMap))
		for lang, u := range langMap {
			if s, ok := u.(string); ok {
				urls[lang] = s
			}
		}
		if len(urls) > 0 {
			out[ltype] = urls
		}
	}
	return out
}

// ReleaseID returns the OCDS release identity, preferring the ocid.
func (n Notice) ReleaseID() string {
	if id := n.stringField("ocid", ""); id != "" {
		return id
	}
	return n.stringField("id", "unknown")
}

// ReleaseDate returns the OCDS release date string.
func (n Notice) ReleaseDate() string {
	return n.stringField("date", "")
}

// TenderTitle returns the OCDS tender title, if present.
func (n Notice) TenderTitle() (string, bool) {
	tender, ok := n["tender"].(map[string]any)
	if !ok {
		return "", false
	}
	title, ok := tender["title"].(string)
	return title, ok && title != ""
}

// ReleaseBuyer returns the OCDS buyer name, if present.
func (n Notice) ReleaseBuyer() (string, bool) {
	buyer, ok := n["buyer"].(map[string]any)
	if !ok {
		return "", false
	}
	name, ok := buyer["name"].(string)
	return name, ok && name != ""
}

// SourceFile returns the provenance marker, if the notice has been tagged.
func (n Notice) SourceFile() string {
	return n.stringField(SourceFileKey, "")
}

// SetSourceFile tags the notice with its originating snapshot or archive.
func (n Notice) SetSourceFile(name string) {
	n[SourceFileKey] = name
}

func (n Notice) stringField(key, fallback string) string {
	if s, ok := n[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
