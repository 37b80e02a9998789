package harvest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/trailer-comments/app/catalog"
	"github.com/lysyi3m/trailer-comments/app/output"
	"github.com/lysyi3m/trailer-comments/app/state"
	"github.com/lysyi3m/trailer-comments/app/youtube"
)

var testNow = time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC)

// MockGateway serves trailers and comments from memory
type MockGateway struct {
	trailers   map[string]youtube.Trailer
	comments   map[string][]youtube.Comment
	findErr    map[string]error
	fetchErr   map[string]error
	searches   []string
	fetches    []string
	fetchSince []*time.Time

	// ignoreSince makes FetchComments return stale comments too
	ignoreSince bool
}

func newMockGateway() *MockGateway {
	return &MockGateway{
		trailers: map[string]youtube.Trailer{},
		comments: map[string][]youtube.Comment{},
		findErr:  map[string]error{},
		fetchErr: map[string]error{},
	}
}

func (m *MockGateway) FindTrailer(ctx context.Context, title string) (youtube.Trailer, bool, error) {
	m.searches = append(m.searches, title)
	if err := m.findErr[title]; err != nil {
		return youtube.Trailer{}, false, err
	}
	trailer, ok := m.trailers[title]
	return trailer, ok, nil
}

func (m *MockGateway) FetchComments(ctx context.Context, videoID string, since *time.Time) iter.Seq2[youtube.Comment, error] {
	m.fetches = append(m.fetches, videoID)
	m.fetchSince = append(m.fetchSince, since)
	return func(yield func(youtube.Comment, error) bool) {
		for _, c := range m.comments[videoID] {
			if !m.ignoreSince && since != nil && !c.PublishedAt.After(*since) {
				continue
			}
			if !yield(c, nil) {
				return
			}
		}
		if err := m.fetchErr[videoID]; err != nil {
			yield(youtube.Comment{}, err)
		}
	}
}

// MockStore keeps the document in memory
type MockStore struct {
	doc   *state.Document
	saves int
}

func (m *MockStore) Load(ctx context.Context) (*state.Document, error) {
	if m.doc == nil {
		return state.NewDocument(), nil
	}
	return copyDocument(m.doc), nil
}

func (m *MockStore) Save(ctx context.Context, doc *state.Document) error {
	m.doc = copyDocument(doc)
	m.saves++
	return nil
}

func copyDocument(doc *state.Document) *state.Document {
	c := state.NewDocument()
	c.NextIndex = doc.NextIndex
	c.LastRunID = doc.LastRunID
	c.UpdatedAt = doc.UpdatedAt
	for k, v := range doc.Items {
		c.Items[k] = v
	}
	return c
}

type MockCommentSink struct {
	batches [][]output.CommentRecord
}

func (m *MockCommentSink) Append(records []output.CommentRecord) error {
	if len(records) > 0 {
		m.batches = append(m.batches, records)
	}
	return nil
}

func (m *MockCommentSink) all() []output.CommentRecord {
	var all []output.CommentRecord
	for _, b := range m.batches {
		all = append(all, b...)
	}
	return all
}

// MockUnresolvedSink keeps the unresolved rows in memory. failures makes
// the next merges fail without touching the rows.
type MockUnresolvedSink struct {
	added    []output.UnresolvedRecord
	rows     []output.UnresolvedRecord
	failures int
}

func (m *MockUnresolvedSink) Merge(added []output.UnresolvedRecord, resolved func(catalog.Key) bool) (int, error) {
	if m.failures > 0 {
		m.failures--
		return 0, errors.New("disk full")
	}

	m.added = append(m.added, added...)
	var kept []output.UnresolvedRecord
	for _, r := range append(m.rows, added...) {
		if !resolved(r.Item.Key()) {
			kept = append(kept, r)
		}
	}
	m.rows = kept
	return len(m.rows), nil
}

func (m *MockUnresolvedSink) contains(key catalog.Key) bool {
	for _, r := range m.rows {
		if r.Item.Key() == key {
			return true
		}
	}
	return false
}

type fixture struct {
	items      []catalog.Item
	gateway    *MockGateway
	store      *MockStore
	comments   *MockCommentSink
	unresolved *MockUnresolvedSink
}

func newFixture(titles ...string) *fixture {
	f := &fixture{
		gateway:    newMockGateway(),
		store:      &MockStore{},
		comments:   &MockCommentSink{},
		unresolved: &MockUnresolvedSink{},
	}
	for _, title := range titles {
		f.items = append(f.items, catalog.Item{Title: title, Year: "2021", Release: "2021-01-01"})
	}
	return f
}

func (f *fixture) run(t *testing.T, budget int) (RunResult, error) {
	t.Helper()
	s := NewScheduler(f.items, f.store, f.gateway, f.comments, f.unresolved, Options{
		MaxPerRun: budget,
		Lifetime:  DefaultLifetime,
		Now:       func() time.Time { return testNow },
	})
	return s.Run(context.Background())
}

func (f *fixture) key(i int) catalog.Key {
	return f.items[i].Key()
}

func (f *fixture) setState(i int, h state.Harvest) {
	if f.store.doc == nil {
		f.store.doc = state.NewDocument()
	}
	f.store.doc.Set(f.key(i), h)
}

func (f *fixture) addTrailer(title, videoID string, publishedAt time.Time) {
	f.gateway.trailers[title] = youtube.Trailer{VideoID: videoID, PublishedAt: publishedAt}
}

func activeState(videoID string, publishedAt time.Time, watermark *time.Time) state.Active {
	return state.Active{
		Trailer:   state.Trailer{VideoID: videoID, PublishedAt: publishedAt},
		Watermark: watermark,
	}
}

func ts(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 10, 0, 0, 0, time.UTC)
}

func TestRunCircularTraversal(t *testing.T) {
	f := newFixture("A", "B", "C")

	result, err := f.run(t, 2)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if result.NextIndex != 2 {
		t.Errorf("Expected cursor 2 after first run, got %d", result.NextIndex)
	}
	if strings.Join(f.gateway.searches, ",") != "A,B" {
		t.Errorf("Expected searches A,B, got %v", f.gateway.searches)
	}

	f.gateway.searches = nil
	result, err = f.run(t, 2)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if strings.Join(f.gateway.searches, ",") != "C,A" {
		t.Errorf("Expected second run to visit C then wrap to A, got %v", f.gateway.searches)
	}
	if result.NextIndex != 1 {
		t.Errorf("Expected cursor 1 after wrap, got %d", result.NextIndex)
	}
	if f.store.doc.NextIndex != 1 {
		t.Errorf("Expected persisted cursor 1, got %d", f.store.doc.NextIndex)
	}
}

func TestRunSkipsFinishedWithoutBudget(t *testing.T) {
	f := newFixture("A", "B")
	f.setState(0, activeState("va", ts(2021, 1, 1), nil).Finish())
	f.setState(1, activeState("vb", ts(2023, 1, 1), nil))
	f.gateway.comments["vb"] = []youtube.Comment{
		{Author: "x", Text: "great", PublishedAt: ts(2023, 2, 1)},
	}

	result, err := f.run(t, 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Skipped != 1 || result.Processed != 1 {
		t.Errorf("Expected 1 skipped and 1 processed, got %d skipped and %d processed", result.Skipped, result.Processed)
	}
	if len(f.gateway.fetches) != 1 || f.gateway.fetches[0] != "vb" {
		t.Errorf("Expected only vb to be fetched, got %v", f.gateway.fetches)
	}
	if result.NewComments != 1 {
		t.Errorf("Expected 1 new comment, got %d", result.NewComments)
	}
	if result.NextIndex != 0 {
		t.Errorf("Expected cursor to wrap to 0, got %d", result.NextIndex)
	}
}

func TestRunResolvesAndHarvestsInSameVisit(t *testing.T) {
	f := newFixture("Dune")
	f.unresolved.rows = []output.UnresolvedRecord{{Item: f.items[0], LastChecked: "2023-01-01"}}
	f.addTrailer("Dune", "vd", ts(2023, 1, 1))
	f.gateway.comments["vd"] = []youtube.Comment{
		{Author: "a", Text: "one", PublishedAt: ts(2023, 1, 2)},
		{Author: "b", Text: "two", PublishedAt: ts(2023, 3, 5)},
	}

	result, err := f.run(t, 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Processed != 1 || result.Resolved != 1 {
		t.Errorf("Expected 1 processed and 1 resolved, got %+v", result)
	}
	active, ok := f.store.doc.Get(f.key(0)).(state.Active)
	if !ok {
		t.Fatalf("Expected Active state, got %T", f.store.doc.Get(f.key(0)))
	}
	if active.Trailer.VideoID != "vd" {
		t.Errorf("Expected video vd, got %s", active.Trailer.VideoID)
	}
	if active.Watermark == nil || !active.Watermark.Equal(ts(2023, 3, 5)) {
		t.Errorf("Expected watermark at latest comment, got %v", active.Watermark)
	}
	if f.gateway.fetchSince[0] != nil {
		t.Errorf("Expected first fetch without watermark, got %v", f.gateway.fetchSince[0])
	}

	records := f.comments.all()
	if len(records) != 2 || records[0].Title != "Dune" || records[0].VideoID != "vd" {
		t.Errorf("Unexpected comment records: %+v", records)
	}
	if f.unresolved.contains(f.key(0)) {
		t.Error("Expected resolved item to be dropped from the unresolved list")
	}
}

func TestRunUnresolvedConsumesBudget(t *testing.T) {
	f := newFixture("Missing", "Other")

	result, err := f.run(t, 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Processed != 1 || result.Unresolved != 1 {
		t.Errorf("Expected 1 processed unresolved item, got %+v", result)
	}
	if len(f.unresolved.added) != 1 {
		t.Fatalf("Expected 1 unresolved record, got %d", len(f.unresolved.added))
	}
	record := f.unresolved.added[0]
	if record.Item.Title != "Missing" {
		t.Errorf("Expected unresolved title 'Missing', got '%s'", record.Item.Title)
	}
	if record.LastChecked != testNow.In(time.Local).Format(time.DateOnly) {
		t.Errorf("Expected last checked today, got '%s'", record.LastChecked)
	}
	if _, ok := f.store.doc.Get(f.key(0)).(state.Unresolved); !ok {
		t.Errorf("Expected item to stay Unresolved, got %T", f.store.doc.Get(f.key(0)))
	}
	if len(f.gateway.searches) != 1 {
		t.Errorf("Expected one search, got %v", f.gateway.searches)
	}
}

func TestRunIsIdempotentWithoutNewComments(t *testing.T) {
	f := newFixture("A")
	f.addTrailer("A", "va", ts(2023, 1, 1))
	f.gateway.comments["va"] = []youtube.Comment{
		{Author: "a", Text: "one", PublishedAt: ts(2023, 2, 1)},
		{Author: "b", Text: "two", PublishedAt: ts(2023, 1, 15)},
	}

	if _, err := f.run(t, 1); err != nil {
		t.Fatal(err)
	}
	first := len(f.comments.all())
	firstWatermark := *f.store.doc.Get(f.key(0)).(state.Active).Watermark

	result, err := f.run(t, 1)
	if err != nil {
		t.Fatal(err)
	}

	if result.NewComments != 0 {
		t.Errorf("Expected no new comments on rerun, got %d", result.NewComments)
	}
	if len(f.comments.all()) != first {
		t.Errorf("Expected %d comments in total, got %d", first, len(f.comments.all()))
	}
	wm := f.store.doc.Get(f.key(0)).(state.Active).Watermark
	if wm == nil || !wm.Equal(firstWatermark) {
		t.Errorf("Expected watermark to stay at %v, got %v", firstWatermark, wm)
	}
	if f.gateway.fetchSince[1] == nil || !f.gateway.fetchSince[1].Equal(firstWatermark) {
		t.Errorf("Expected second fetch since %v, got %v", firstWatermark, f.gateway.fetchSince[1])
	}
}

func TestRunWatermarkNeverMovesBack(t *testing.T) {
	f := newFixture("A")
	wm := ts(2023, 5, 1)
	f.setState(0, activeState("va", ts(2023, 1, 1), &wm))
	f.gateway.ignoreSince = true
	f.gateway.comments["va"] = []youtube.Comment{
		{Author: "old", Text: "stale", PublishedAt: ts(2023, 4, 1)},
	}

	result, err := f.run(t, 1)
	if err != nil {
		t.Fatal(err)
	}

	if result.NewComments != 0 {
		t.Errorf("Expected stale comments to be dropped, got %d", result.NewComments)
	}
	got := f.store.doc.Get(f.key(0)).(state.Active).Watermark
	if got == nil || !got.Equal(wm) {
		t.Errorf("Expected watermark %v, got %v", wm, got)
	}
}

func TestRunDropsCommentsAtOrBeforeWatermark(t *testing.T) {
	f := newFixture("A")
	f.gateway.ignoreSince = true
	f.addTrailer("A", "va", ts(2023, 1, 1))
	f.gateway.comments["va"] = []youtube.Comment{
		{Author: "a", Text: "one", PublishedAt: ts(2023, 2, 1)},
		{Author: "b", Text: "two", PublishedAt: ts(2023, 3, 1)},
	}

	first, err := f.run(t, 1)
	if err != nil {
		t.Fatal(err)
	}
	if first.NewComments != 2 {
		t.Fatalf("Expected 2 comments on first run, got %d", first.NewComments)
	}

	second, err := f.run(t, 1)
	if err != nil {
		t.Fatal(err)
	}
	if second.NewComments != 0 {
		t.Errorf("Expected nothing re-emitted when the gateway repeats old comments, got %d", second.NewComments)
	}
	if len(f.comments.all()) != 2 {
		t.Errorf("Expected 2 comments in total, got %d", len(f.comments.all()))
	}

	// a comment exactly at the watermark is not new
	f.gateway.comments["va"] = append(f.gateway.comments["va"], youtube.Comment{Author: "c", Text: "same", PublishedAt: ts(2023, 3, 1)})
	third, err := f.run(t, 1)
	if err != nil {
		t.Fatal(err)
	}
	if third.NewComments != 0 {
		t.Errorf("Expected comment at the watermark to be dropped, got %d", third.NewComments)
	}
}

func TestRunRepairsUnresolvedListAfterFailedRewrite(t *testing.T) {
	f := newFixture("X")

	if _, err := f.run(t, 1); err != nil {
		t.Fatal(err)
	}
	if !f.unresolved.contains(f.key(0)) {
		t.Fatal("Expected X to be listed as unresolved")
	}

	f.addTrailer("X", "vx", ts(2023, 1, 1))
	f.unresolved.failures = 1
	if _, err := f.run(t, 1); err == nil {
		t.Fatal("Expected the failed unresolved rewrite to be reported")
	}
	if _, ok := f.store.doc.Get(f.key(0)).(state.Active); !ok {
		t.Fatalf("Expected X to be saved as Active, got %T", f.store.doc.Get(f.key(0)))
	}
	if !f.unresolved.contains(f.key(0)) {
		t.Fatal("Expected X to still be listed after the failed rewrite")
	}

	if _, err := f.run(t, 1); err != nil {
		t.Fatal(err)
	}
	if f.unresolved.contains(f.key(0)) {
		t.Errorf("Expected X to be dropped once its state is Active, got rows %+v", f.unresolved.rows)
	}
}

func TestRunFinishesTrailerWithCommentsDisabled(t *testing.T) {
	f := newFixture("Quiet", "Next")
	f.setState(0, activeState("vq", ts(2023, 1, 1), nil))
	f.gateway.fetchErr["vq"] = fmt.Errorf("failed to list comments: %w", youtube.ErrCommentsDisabled)

	result, err := f.run(t, 1)
	if err != nil {
		t.Fatalf("Expected disabled comments not to fail the run, got: %v", err)
	}

	if result.Disabled != 1 || result.Processed != 1 {
		t.Errorf("Expected 1 processed item with comments disabled, got %+v", result)
	}
	if _, ok := f.store.doc.Get(f.key(0)).(state.Finished); !ok {
		t.Errorf("Expected Finished state, got %T", f.store.doc.Get(f.key(0)))
	}
	if result.NextIndex != 1 {
		t.Errorf("Expected cursor to move past the item, got %d", result.NextIndex)
	}
}

func TestRunUnbucketedCommentsAdvanceWatermark(t *testing.T) {
	f := newFixture("Old")
	f.setState(0, activeState("vo", ts(2023, 1, 1), nil))
	// clock skewed comments: none falls in a bucket
	f.gateway.comments["vo"] = []youtube.Comment{
		{Author: "a", Text: "early", PublishedAt: ts(2019, 6, 1)},
		{Author: "b", Text: "earlier", PublishedAt: ts(2019, 3, 1)},
	}

	result, err := f.run(t, 1)
	if err != nil {
		t.Fatal(err)
	}

	if result.NewComments != 0 {
		t.Errorf("Expected no bucketed comments, got %d", result.NewComments)
	}
	wm := f.store.doc.Get(f.key(0)).(state.Active).Watermark
	if wm == nil || !wm.Equal(ts(2019, 6, 1)) {
		t.Errorf("Expected watermark to advance to unbucketed comment, got %v", wm)
	}
}

func TestRunClassifiesComments(t *testing.T) {
	f := newFixture("A")
	f.setState(0, activeState("va", ts(2023, 1, 1), nil))
	f.gateway.comments["va"] = []youtube.Comment{
		{Author: "c", Text: "covid", PublishedAt: ts(2021, 12, 31)},
		{Author: "p", Text: "post", PublishedAt: ts(2022, 1, 1)},
		{Author: "n", Text: "none", PublishedAt: ts(2019, 12, 31)},
	}

	if _, err := f.run(t, 1); err != nil {
		t.Fatal(err)
	}

	records := f.comments.all()
	if len(records) != 2 {
		t.Fatalf("Expected 2 bucketed comments, got %d", len(records))
	}
	if records[0].Bucket != "covid" || records[1].Bucket != "post_covid" {
		t.Errorf("Unexpected buckets: %s, %s", records[0].Bucket, records[1].Bucket)
	}
}

func TestRunExpiresOldTrailerWithoutFetching(t *testing.T) {
	f := newFixture("Old", "New")
	f.setState(0, activeState("vo", testNow.Add(-400*24*time.Hour), nil))
	f.gateway.comments["vo"] = []youtube.Comment{{Author: "a", Text: "x", PublishedAt: ts(2022, 1, 1)}}

	result, err := f.run(t, 1)
	if err != nil {
		t.Fatal(err)
	}

	if result.Expired != 1 || result.Processed != 1 {
		t.Errorf("Expected 1 expired processed item, got %+v", result)
	}
	if len(f.gateway.fetches) != 0 {
		t.Errorf("Expected no fetch for an expired trailer, got %v", f.gateway.fetches)
	}
	finished, ok := f.store.doc.Get(f.key(0)).(state.Finished)
	if !ok {
		t.Fatalf("Expected Finished state, got %T", f.store.doc.Get(f.key(0)))
	}
	if finished.Trailer.VideoID != "vo" {
		t.Errorf("Expected finished trailer to keep video vo, got %s", finished.Trailer.VideoID)
	}

	// Finished is terminal
	f.store.doc.NextIndex = 0
	result, err = f.run(t, 1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped != 1 {
		t.Errorf("Expected finished item to be skipped, got %+v", result)
	}
	if _, ok := f.store.doc.Get(f.key(0)).(state.Finished); !ok {
		t.Error("Expected item to stay Finished")
	}
}

func TestRunExpiresTrailerFoundTooLate(t *testing.T) {
	f := newFixture("Old")
	f.addTrailer("Old", "vo", testNow.Add(-2*DefaultLifetime))

	result, err := f.run(t, 5)
	if err != nil {
		t.Fatal(err)
	}

	if result.Resolved != 1 || result.Expired != 1 || result.Processed != 1 {
		t.Errorf("Expected resolve and expire in one charged visit, got %+v", result)
	}
	if len(f.gateway.fetches) != 0 {
		t.Errorf("Expected no fetch, got %v", f.gateway.fetches)
	}
}

func TestRunTerminatesWhenEverythingFinished(t *testing.T) {
	f := newFixture("A", "B", "C")
	for i := range f.items {
		f.setState(i, activeState("v", ts(2020, 1, 1), nil).Finish())
	}
	f.store.doc.NextIndex = 1

	result, err := f.run(t, 5)
	if err != nil {
		t.Fatal(err)
	}

	if result.Visited != 3 || result.Processed != 0 || result.Skipped != 3 {
		t.Errorf("Expected 3 visits with no budget used, got %+v", result)
	}
	if !result.Exhausted {
		t.Error("Expected run to be exhausted")
	}
	if result.NextIndex != 1 {
		t.Errorf("Expected cursor back at 1, got %d", result.NextIndex)
	}
}

func TestRunBudgetLargerThanCatalog(t *testing.T) {
	f := newFixture("A", "B")

	result, err := f.run(t, 10)
	if err != nil {
		t.Fatal(err)
	}

	if result.Visited != 2 || result.Processed != 2 {
		t.Errorf("Expected each item visited once, got %+v", result)
	}
	if len(f.gateway.searches) != 2 {
		t.Errorf("Expected 2 searches, got %v", f.gateway.searches)
	}
	if !result.Exhausted {
		t.Error("Expected run to be exhausted")
	}
}

func TestRunEmptyCatalog(t *testing.T) {
	f := newFixture()

	result, err := f.run(t, 3)
	if err != nil {
		t.Fatal(err)
	}

	if result.Visited != 0 || result.NextIndex != 0 {
		t.Errorf("Expected nothing visited, got %+v", result)
	}
	if f.store.saves != 1 {
		t.Errorf("Expected state to be saved once, got %d", f.store.saves)
	}
}

func TestRunResetsCursorWhenCatalogShrinks(t *testing.T) {
	f := newFixture("A", "B")
	f.store.doc = state.NewDocument()
	f.store.doc.NextIndex = 7

	result, err := f.run(t, 1)
	if err != nil {
		t.Fatal(err)
	}

	if len(f.gateway.searches) != 1 || f.gateway.searches[0] != "A" {
		t.Errorf("Expected run to restart at A, got %v", f.gateway.searches)
	}
	if result.NextIndex != 1 {
		t.Errorf("Expected cursor 1, got %d", result.NextIndex)
	}
}

func TestRunGatewayErrorPersistsCompletedItems(t *testing.T) {
	f := newFixture("A", "B", "C")
	f.addTrailer("A", "va", ts(2023, 1, 1))
	f.gateway.comments["va"] = []youtube.Comment{{Author: "a", Text: "ok", PublishedAt: ts(2023, 2, 1)}}
	// B gets a trailer but its comment fetch fails
	f.addTrailer("B", "vb", ts(2023, 1, 1))
	f.unresolved.rows = []output.UnresolvedRecord{{Item: f.items[1], LastChecked: "2023-01-01"}}
	f.gateway.fetchErr["vb"] = errors.New("quota exceeded")

	result, err := f.run(t, 3)
	if err == nil {
		t.Fatal("Expected error from failing gateway")
	}
	if !strings.Contains(err.Error(), "quota exceeded") || !strings.Contains(err.Error(), `"B"`) {
		t.Errorf("Expected error to name item and cause, got: %v", err)
	}

	if result.NextIndex != 1 || f.store.doc.NextIndex != 1 {
		t.Errorf("Expected cursor on failed item 1, got result %d, stored %d", result.NextIndex, f.store.doc.NextIndex)
	}
	if _, ok := f.store.doc.Get(f.key(0)).(state.Active); !ok {
		t.Error("Expected A to be persisted as Active")
	}
	if _, ok := f.store.doc.Get(f.key(1)).(state.Unresolved); !ok {
		t.Errorf("Expected B's in-flight trailer to be discarded, got %T", f.store.doc.Get(f.key(1)))
	}
	if !f.unresolved.contains(f.key(1)) {
		t.Error("Expected B to stay in the unresolved list")
	}
	if len(f.comments.all()) != 1 {
		t.Errorf("Expected A's comment to be written, got %d", len(f.comments.all()))
	}
	for _, title := range f.gateway.searches {
		if title == "C" {
			t.Error("Expected traversal to stop before C")
		}
	}

	// the next run resumes at B
	delete(f.gateway.fetchErr, "vb")
	f.gateway.searches = nil
	if _, err := f.run(t, 1); err != nil {
		t.Fatal(err)
	}
	if len(f.gateway.searches) != 1 || f.gateway.searches[0] != "B" {
		t.Errorf("Expected next run to retry B, got %v", f.gateway.searches)
	}
}

func TestRunSearchErrorStopsRun(t *testing.T) {
	f := newFixture("A", "B")
	f.gateway.findErr["A"] = errors.New("network down")

	result, err := f.run(t, 2)
	if err == nil {
		t.Fatal("Expected error")
	}
	if result.Visited != 0 || result.NextIndex != 0 {
		t.Errorf("Expected nothing visited, got %+v", result)
	}
	if len(f.unresolved.added) != 0 {
		t.Error("Expected failed search not to be recorded as unresolved")
	}
}

func TestRunCancelledContext(t *testing.T) {
	f := newFixture("A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScheduler(f.items, f.store, f.gateway, f.comments, f.unresolved, Options{MaxPerRun: 1})
	_, err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(f.gateway.searches) != 0 {
		t.Errorf("Expected no gateway calls, got %v", f.gateway.searches)
	}
	if f.store.saves != 1 {
		t.Errorf("Expected state to be saved after cancellation, got %d saves", f.store.saves)
	}
}

func TestRunRecordsRunID(t *testing.T) {
	f := newFixture("A")

	result, err := f.run(t, 1)
	if err != nil {
		t.Fatal(err)
	}

	if result.RunID == "" {
		t.Fatal("Expected run id")
	}
	if f.store.doc.LastRunID != result.RunID {
		t.Errorf("Expected stored run id %s, got %s", result.RunID, f.store.doc.LastRunID)
	}
	if !f.store.doc.UpdatedAt.Equal(testNow) {
		t.Errorf("Expected updated_at %v, got %v", testNow, f.store.doc.UpdatedAt)
	}
}
