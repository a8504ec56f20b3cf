package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dataminds-hq/tender-harvester/internal/domain"
)

// fakeAPI is an in-memory catalog for publisher tests.
type fakeAPI struct {
	datasets    map[string]*Dataset
	createCalls int
	uploadCalls int
	failCreate  bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{datasets: make(map[string]*Dataset)}
}

func (f *fakeAPI) PackageList(context.Context) ([]string, error) {
	names := make([]string, 0, len(f.datasets))
	for name := range f.datasets {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeAPI) PackageShow(_ context.Context, name string) (*Dataset, error) {
	ds, ok := f.datasets[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ds
	return &cp, nil
}

func (f *fakeAPI) PackageCreate(_ context.Context, ds Dataset) (*Dataset, error) {
	f.createCalls++
	if f.failCreate {
		return nil, errors.New("catalog rejected dataset")
	}
	ds.ID = "id-" + ds.Name
	f.datasets[ds.Name] = &ds
	return &ds, nil
}

func (f *fakeAPI) ResourceCreate(_ context.Context, up ResourceUpload) (*Resource, error) {
	f.uploadCalls++
	for _, ds := range f.datasets {
		if ds.ID == up.PackageID {
			ds.Resources = append(ds.Resources, Resource{ID: fmt.Sprintf("r%d", f.uploadCalls), Name: up.Name, Format: up.Format})
			return &ds.Resources[len(ds.Resources)-1], nil
		}
	}
	return nil, fmt.Errorf("unknown package %s", up.PackageID)
}

func tedNotice(pubnum string) domain.Notice {
	return domain.Notice{
		"publication-number": pubnum,
		"publication-date":   "2025-03-14T00:00:00+01:00Z",
		"title-proc":         map[string]any{"eng": "Road works"},
		"buyer-name":         map[string]any{"eng": []any{"City Council"}},
		"links": map[string]any{
			"pdf": map[string]any{"ENG": "https://ted.example/pdf/" + pubnum},
		},
	}
}

func TestPublishNoticeCreatesDatasetAndResource(t *testing.T) {
	api := newFakeAPI()
	pub := NewPublisher(api, "publicai", nil)

	outcome, err := pub.PublishNotice(context.Background(), tedNotice("123-2025"))
	if err != nil {
		t.Fatalf("PublishNotice: %v", err)
	}
	if outcome != Published {
		t.Fatalf("expected published, got %s", outcome)
	}

	ds, ok := api.datasets["ted-123-2025"]
	if !ok {
		t.Fatalf("dataset ted-123-2025 missing, have %v", api.datasets)
	}
	if ds.Title != "Road works" || ds.OwnerOrg != "publicai" {
		t.Fatalf("dataset fields wrong: %+v", ds)
	}
	if len(ds.Resources) != 1 || ds.Resources[0].Name != "ted_123-2025.json" {
		t.Fatalf("resource wrong: %+v", ds.Resources)
	}
	if !strings.Contains(ds.Notes, "**Buyer Name:** City Council") {
		t.Fatalf("description missing buyer: %q", ds.Notes)
	}
	if !strings.Contains(ds.Notes, "pdf/ENG") {
		t.Fatalf("description missing link: %q", ds.Notes)
	}

	var tagNames []string
	for _, tag := range ds.Tags {
		tagNames = append(tagNames, tag.Name)
	}
	for _, want := range []string{"TED", "123-2025", "2025-03-14", "City Council"} {
		found := false
		for _, got := range tagNames {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("tag %q missing from %v", want, tagNames)
		}
	}
}

func TestPublishNoticeIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	pub := NewPublisher(api, "publicai", nil)

	n := tedNotice("777-2025")
	if outcome, err := pub.PublishNotice(context.Background(), n); err != nil || outcome != Published {
		t.Fatalf("first publish: outcome=%v err=%v", outcome, err)
	}
	outcome, err := pub.PublishNotice(context.Background(), n)
	if err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if outcome != Skipped {
		t.Fatalf("expected second publish skipped, got %s", outcome)
	}
	if api.createCalls != 1 || api.uploadCalls != 1 {
		t.Fatalf("expected one create and one upload, got %d/%d", api.createCalls, api.uploadCalls)
	}
}

func TestPublishNoticeSkipsWithoutTitleOrBuyer(t *testing.T) {
	api := newFakeAPI()
	pub := NewPublisher(api, "publicai", nil)

	noTitle := domain.Notice{
		"publication-number": "1-2025",
		"buyer-name":         map[string]any{"eng": []any{"Buyer"}},
	}
	if outcome, err := pub.PublishNotice(context.Background(), noTitle); err != nil || outcome != Skipped {
		t.Fatalf("missing title: outcome=%v err=%v", outcome, err)
	}

	noBuyer := domain.Notice{
		"publication-number": "2-2025",
		"title-proc":         map[string]any{"eng": "Has title"},
	}
	if outcome, err := pub.PublishNotice(context.Background(), noBuyer); err != nil || outcome != Skipped {
		t.Fatalf("missing buyer: outcome=%v err=%v", outcome, err)
	}
	if api.createCalls != 0 {
		t.Fatalf("skipped notices must not touch the catalog")
	}
}

func TestPublishNoticeFallsBackAcrossLanguages(t *testing.T) {
	api := newFakeAPI()
	pub := NewPublisher(api, "publicai", []string{"eng", "en"})

	n := domain.Notice{
		"publication-number": "5-2025",
		"publication-date":   "2025-01-01T00:00:00Z",
		"title-proc":         map[string]any{"en": "English only"},
		"buyer-name":         map[string]any{"en": []any{"Buyer EN"}},
	}
	outcome, err := pub.PublishNotice(context.Background(), n)
	if err != nil || outcome != Published {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
	if api.datasets["ted-5-2025"].Title != "English only" {
		t.Fatalf("second language not used: %+v", api.datasets["ted-5-2025"])
	}
}

func TestPublishReleaseCreatesDataset(t *testing.T) {
	api := newFakeAPI()
	pub := NewPublisher(api, "publicai", nil)

	r := domain.Notice{
		"ocid": "ocds-abc-001",
		"date": "2025-02-02T10:00:00Z",
		"tender": map[string]any{
			"title": "Office furniture",
		},
		"buyer": map[string]any{"name": "Procurement Office"},
	}
	outcome, err := pub.PublishRelease(context.Background(), r)
	if err != nil || outcome != Published {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}

	ds, ok := api.datasets["bescha-ocds-abc-001"]
	if !ok {
		t.Fatalf("dataset missing, have %v", api.datasets)
	}
	if ds.Title != "Office furniture" {
		t.Fatalf("dataset title wrong: %+v", ds)
	}
	if len(ds.Resources) != 1 || ds.Resources[0].Name != "bescha_ocds-abc-001.json" {
		t.Fatalf("resource wrong: %+v", ds.Resources)
	}
}

func TestPublishReleaseSkipsWithoutTenderTitle(t *testing.T) {
	api := newFakeAPI()
	pub := NewPublisher(api, "publicai", nil)

	outcome, err := pub.PublishRelease(context.Background(), domain.Notice{"ocid": "ocds-x"})
	if err != nil || outcome != Skipped {
		t.Fatalf("outcome=%v err=%v", outcome, err)
	}
}

func TestPublishNoticesCountsFailuresWithoutAborting(t *testing.T) {
	api := newFakeAPI()
	api.failCreate = true
	pub := NewPublisher(api, "publicai", nil)

	sum := pub.PublishNotices(context.Background(), []domain.Notice{
		tedNotice("1-2025"),
		tedNotice("2-2025"),
	})
	if sum.Failed != 2 || sum.Accepted != 0 || sum.Total != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestSanitizeTag(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"City Council", "City Council"},
		{"Stadt Köln", "Stadt Kln"},
		{"  padded  ", "padded"},
		{"semi;colon/slash", "semicolonslash"},
		{"***", ""},
		{strings.Repeat("a", 100), strings.Repeat("a", 63)},
	}
	for _, c := range cases {
		if got := SanitizeTag(c.in); got != c.want {
			t.Fatalf("SanitizeTag(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDatasetName(t *testing.T) {
	cases := []struct {
		prefix, id, want string
	}{
		{"ted", "123-2025", "ted-123-2025"},
		{"ted", "123/2025 OJ", "ted-123-2025-oj"},
		{"bescha", "ocds-abc-001", "bescha-ocds-abc-001"},
		{"ted", "///", "ted-unknown"},
	}
	for _, c := range cases {
		if got := DatasetName(c.prefix, c.id); got != c.want {
			t.Fatalf("DatasetName(%q, %q) = %q, want %q", c.prefix, c.id, got, c.want)
		}
	}
}

func TestBuildTagsDropsEmptyAndDuplicates(t *testing.T) {
	tags := buildTags([]string{"TED", "TED", "***", "Buyer"})
	if len(tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", tags)
	}
}
