package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dataminds-hq/tender-harvester/internal/domain"
	"github.com/dataminds-hq/tender-harvester/internal/logger"
)

// Outcome classifies one item's publication result.
type Outcome int

const (
	Published Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Published:
		return "published"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Summary reports a publish run over one batch.
type Summary struct {
	Total     int
	Accepted  int
	Skipped   int
	Failed    int
	Published []string
}

// Publisher maps notices and releases onto idempotent catalog entries.
// Dataset names are a pure function of the notice identity; an existing
// dataset is reused as-is (first write wins, fields are never updated) and an
// existing resource means the item was already published.
type Publisher struct {
	api      API
	ownerOrg string
	langs    []string
}

// NewPublisher builds a Publisher creating datasets under ownerOrg. langs is
// the ordered title/buyer language preference.
func NewPublisher(api API, ownerOrg string, langs []string) *Publisher {
	if len(langs) == 0 {
		langs = []string{"eng", "en"}
	}
	return &Publisher{api: api, ownerOrg: ownerOrg, langs: langs}
}

// PublishNotices publishes every TED notice in the batch. Item failures are
// logged and counted, never propagated.
func (p *Publisher) PublishNotices(ctx context.Context, notices []domain.Notice) Summary {
	return p.publishAll(ctx, notices, p.PublishNotice, func(n domain.Notice) string {
		return n.PublicationNumber()
	})
}

// PublishReleases publishes every BeschA OCDS release in the batch.
func (p *Publisher) PublishReleases(ctx context.Context, releases []domain.Notice) Summary {
	return p.publishAll(ctx, releases, p.PublishRelease, func(n domain.Notice) string {
		return n.ReleaseID()
	})
}

func (p *Publisher) publishAll(
	ctx context.Context,
	items []domain.Notice,
	publish func(context.Context, domain.Notice) (Outcome, error),
	identify func(domain.Notice) string,
) Summary {
	sum := Summary{Total: len(items)}
	for _, item := range items {
		outcome, err := publish(ctx, item)
		switch {
		case err != nil:
			sum.Failed++
			logger.ErrorObj("item publish failed", "publish_error", map[string]any{
				"id":    identify(item),
				"error": err.Error(),
			})
		case outcome == Published:
			sum.Accepted++
			sum.Published = append(sum.Published, datasetNameFor(item))
		default:
			sum.Skipped++
		}
	}
	logger.InfoObj("publish run completed", "publish_summary", map[string]any{
		"accepted": sum.Accepted,
		"skipped":  sum.Skipped,
		"failed":   sum.Failed,
		"total":    sum.Total,
	})
	return sum
}

// datasetNameFor picks the deterministic dataset name for either item kind.
func datasetNameFor(n domain.Notice) string {
	if _, isTed := n["title-proc"]; isTed {
		return DatasetName("ted", n.PublicationNumber())
	}
	return DatasetName("bescha", n.ReleaseID())
}

// PublishNotice projects one TED notice into the catalog.
func (p *Publisher) PublishNotice(ctx context.Context, n domain.Notice) (Outcome, error) {
	pubnum := n.PublicationNumber()

	title, ok := n.LocalizedTitle(p.langs)
	if !ok {
		logger.WarnObj("notice has no usable title, skipping", "notice_id", pubnum)
		return Skipped, nil
	}
	buyers, ok := n.LocalizedBuyers(p.langs)
	if !ok {
		logger.WarnObj("notice has no usable buyer name, skipping", "notice_id", pubnum)
		return Skipped, nil
	}
	buyer := strings.Join(buyers, ", ")

	rawDate := strings.TrimSuffix(n.PublicationDate(), "Z")
	dateOnly := dateOnlyOf(rawDate)

	description := noticeDescription(pubnum, buyer, rawDate, n.Links())
	tags := buildTags(append([]string{"TED", pubnum, dateOnly}, buyers...))
	extras := []Extra{
		{Key: "publication_number", Value: pubnum},
		{Key: "buyer_name", Value: buyer},
		{Key: "publication_date", Value: rawDate},
	}

	return p.publishEntry(ctx, entry{
		datasetName:  DatasetName("ted", pubnum),
		resourceName: fmt.Sprintf("ted_%s.json", pubnum),
		title:        strings.TrimSpace(title),
		description:  description,
		tags:         tags,
		extras:       extras,
		item:         n,
	})
}

// PublishRelease projects one OCDS release into the catalog. Release fields
// (ocid, tender title, buyer name, release date) stand in for the notice's
// multilingual lookups.
func (p *Publisher) PublishRelease(ctx context.Context, r domain.Notice) (Outcome, error) {
	id := r.ReleaseID()

	title, ok := r.TenderTitle()
	if !ok {
		logger.WarnObj("release has no tender title, skipping", "release_id", id)
		return Skipped, nil
	}
	buyer, _ := r.ReleaseBuyer()

	rawDate := strings.TrimSuffix(r.ReleaseDate(), "Z")
	dateOnly := dateOnlyOf(rawDate)

	description := releaseDescription(id, buyer, rawDate)
	tags := buildTags([]string{"BeschA", id, dateOnly, buyer})
	extras := []Extra{
		{Key: "ocid", Value: id},
		{Key: "buyer_name", Value: buyer},
		{Key: "release_date", Value: rawDate},
	}

	return p.publishEntry(ctx, entry{
		datasetName:  DatasetName("bescha", id),
		resourceName: fmt.Sprintf("bescha_%s.json", sanitizeNamePart(id)),
		title:        strings.TrimSpace(title),
		description:  description,
		tags:         tags,
		extras:       extras,
		item:         r,
	})
}

type entry struct {
	datasetName  string
	resourceName string
	title        string
	description  string
	tags         []Tag
	extras       []Extra
	item         domain.Notice
}

// publishEntry runs the shared resolve-or-create dataset + upload-once
// resource sequence.
func (p *Publisher) publishEntry(ctx context.Context, e entry) (Outcome, error) {
	ds, created, err := p.ensureDataset(ctx, e)
	if err != nil {
		return Failed, err
	}

	if !created && hasResource(ds, e.resourceName) {
		logger.DebugObj("resource already uploaded, skipping", "dataset", e.datasetName)
		return Skipped, nil
	}

	payload, err := json.MarshalIndent(e.item, "", "  ")
	if err != nil {
		return Failed, fmt.Errorf("encode %s: %w", e.resourceName, err)
	}
	if _, err := p.api.ResourceCreate(ctx, ResourceUpload{
		PackageID: ds.ID,
		Name:      e.resourceName,
		Format:    "json",
		Title:     e.title,
		Payload:   payload,
	}); err != nil {
		return Failed, fmt.Errorf("upload %s: %w", e.resourceName, err)
	}

	logger.InfoObj("catalog entry published", "publish_ok", map[string]any{
		"dataset":  e.datasetName,
		"resource": e.resourceName,
	})
	return Published, nil
}

// ensureDataset resolves the dataset by its deterministic name, creating it
// only when absent. An existing dataset is reused untouched.
func (p *Publisher) ensureDataset(ctx context.Context, e entry) (*Dataset, bool, error) {
	existing, err := p.api.PackageList(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list datasets: %w", err)
	}
	for _, name := range existing {
		if name == e.datasetName {
			ds, err := p.api.PackageShow(ctx, e.datasetName)
			if err != nil {
				return nil, false, fmt.Errorf("load dataset %s: %w", e.datasetName, err)
			}
			return ds, false, nil
		}
	}

	ds, err := p.api.PackageCreate(ctx, Dataset{
		Name:     e.datasetName,
		Title:    e.title,
		Notes:    e.description,
		OwnerOrg: p.ownerOrg,
		Private:  false,
		Tags:     e.tags,
		Extras:   e.extras,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create dataset %s: %w", e.datasetName, err)
	}
	return ds, true, nil
}

func hasResource(ds *Dataset, name string) bool {
	for _, r := range ds.Resources {
		if r.Name == name {
			return true
		}
	}
	return false
}

func noticeDescription(pubnum, buyer, rawDate string, links map[string]map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Notice Number:** %s\n\n", pubnum)
	fmt.Fprintf(&b, "**Buyer Name:** %s\n\n", buyer)
	fmt.Fprintf(&b, "**Publication Date:** %s\n\n", rawDate)
	b.WriteString("**Links:**\n\n")

	ltypes := make([]string, 0, len(links))
	for ltype := range links {
		ltypes = append(ltypes, ltype)
	}
	sort.Strings(ltypes)
	for _, ltype := range ltypes {
		langs := make([]string, 0, len(links[ltype]))
		for lang := range links[ltype] {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		for _, lang := range langs {
			fmt.Fprintf(&b, "- **%s/%s**: %s\n", ltype, lang, links[ltype][lang])
		}
	}
	return strings.TrimSpace(b.String())
}

func releaseDescription(id, buyer, rawDate string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**OCID:** %s\n\n", id)
	if buyer != "" {
		fmt.Fprintf(&b, "**Buyer Name:** %s\n\n", buyer)
	}
	fmt.Fprintf(&b, "**Release Date:** %s", rawDate)
	return strings.TrimSpace(b.String())
}

// dateOnlyOf extracts the date prefix from an ISO-8601 timestamp.
func dateOnlyOf(raw string) string {
	d := strings.SplitN(raw, "T", 2)[0]
	return strings.SplitN(d, "+", 2)[0]
}

var (
	tagInvalid  = regexp.MustCompile(`[^A-Za-z0-9 \-_.]+`)
	nameInvalid = regexp.MustCompile(`[^a-z0-9\-_]+`)
)

const maxTagLength = 63

// SanitizeTag reduces raw to a catalog-safe tag: only letters, digits,
// spaces, hyphens, underscores and dots, trimmed, at most 63 bytes. An input
// that sanitizes to empty yields "".
func SanitizeTag(raw string) string {
	s := tagInvalid.ReplaceAllString(raw, "")
	s = strings.TrimSpace(s)
	if len(s) > maxTagLength {
		s = strings.TrimSpace(s[:maxTagLength])
	}
	return s
}

// buildTags sanitizes the values, dropping empties and duplicates.
func buildTags(values []string) []Tag {
	seen := make(map[string]bool, len(values))
	tags := make([]Tag, 0, len(values))
	for _, v := range values {
		t := SanitizeTag(v)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, Tag{Name: t})
	}
	return tags
}

// DatasetName derives the deterministic dataset name from the source prefix
// and the item identity.
func DatasetName(prefix, id string) string {
	s := strings.ToLower(id)
	s = nameInvalid.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "unknown"
	}
	return prefix + "-" + s
}

func sanitizeNamePart(id string) string {
	s := strings.ToLower(id)
	s = nameInvalid.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
