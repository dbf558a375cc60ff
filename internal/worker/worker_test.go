// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/article-engine/internal/failure"
	"github.com/pdiddy/article-engine/internal/ports"
	"github.com/pdiddy/article-engine/internal/state"
	"github.com/pdiddy/article-engine/internal/testsupport"
	"github.com/pdiddy/article-engine/pkg/types"
)

var testLimits = state.Limits{
	MaxRevisions:       2,
	MaxExpansionPasses: 2,
	MaxSearchRounds:    4,
	MinChapters:        2,
	MaxChapters:        4,
	ScoreThreshold:     70,
}

func testInput(chapterID string) Input {
	cfg := testsupport.NewPipelineConfig()
	return Input{
		RunID:     "run-1",
		Config:    cfg,
		Profile:   types.LengthProfile{MinChapters: 2, MaxChapters: 4, TargetWords: 40, Strictness: types.DepthMedium, ScoreThreshold: 70},
		ChapterID: chapterID,
		Round:     1,
	}
}

// newDoc returns a document with a two-chapter outline.
func newDoc(t *testing.T, req types.DocumentRequest) *state.Document {
	t.Helper()
	doc := state.New(req, testLimits)
	require.NoError(t, doc.Apply(context.Background(), state.Patch{Outline: &types.Outline{
		Title: "Go Channels",
		Chapters: []types.ChapterSpec{
			{ID: "ch-01", Title: "Basics", Summary: "channel basics", TargetDepth: 40, CodeBlocks: 1, ImageHint: "flowchart"},
			{ID: "ch-02", Title: "Select", Summary: "select statement", TargetDepth: 40},
		},
	}}))
	return doc
}

func setDraft(t *testing.T, doc *state.Document, id, text string) {
	t.Helper()
	require.NoError(t, doc.Apply(context.Background(), state.Patch{
		Chapter: &state.ChapterUpdate{ID: id, Status: types.StatusDrafted, Draft: &text},
	}))
}

func TestParseGaps(t *testing.T) {
	text := "Intro.\n\n<gap>\n<kind>no_example</kind>\n<question>How is close used?</question>\n<query>go close channel example</query>\n</gap>\n\n\n\nMore.<GAP><question>Default size?</question></GAP><gap><kind>x</kind></gap>"
	cleaned, gaps := parseGaps(text, "ch-01")
	assert.Equal(t, "Intro.\n\nMore.", cleaned)
	require.Len(t, gaps, 2)
	assert.Equal(t, types.GapNoExample, gaps[0].Kind)
	assert.Equal(t, "go close channel example", gaps[0].Query)
	assert.Equal(t, "ch-01", gaps[0].ChapterID)
	assert.Equal(t, types.GapMissingData, gaps[1].Kind)
	assert.Equal(t, "Default size?", gaps[1].Query, "query falls back to the question")
	assert.True(t, strings.HasPrefix(gaps[0].ID, "gap-"))

	again, _ := parseGaps(text, "ch-01")
	assert.Equal(t, cleaned, again)
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Score int `json:"score"`
	}
	require.NoError(t, decodeJSON("review", "Here you go:\n```json\n{\"score\": 72}\n```", &v))
	assert.Equal(t, 72, v.Score)

	err := decodeJSON("review", "no json here", &v)
	var pe *ports.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ports.ProviderMalformed, pe.Kind)
}

func TestResearch(t *testing.T) {
	req := testsupport.Request("goroutine leaks")
	doc := state.New(req, testLimits)
	search := &testsupport.Search{}
	set := NewSet(Deps{Text: testsupport.NewText(), Search: search, SearchResults: 2})

	res, err := set.Research.Apply(context.Background(), doc, testInput(""))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Patch.Findings)
	assert.Equal(t, len(res.Patch.Findings), res.Signal.NewFindings)
	for _, f := range res.Patch.Findings {
		assert.Equal(t, 1, f.Round)
		assert.True(t, strings.HasPrefix(f.ID, "f-"))
	}
	assert.Contains(t, search.Queries(), "goroutine leaks tutorial")
	assert.Contains(t, search.Queries(), "site:go.dev goroutine leaks")
}

type stubKnowledge struct{ findings []types.Finding }

func (s stubKnowledge) Lookup(context.Context, []types.KnowledgeRef, string, int) ([]types.Finding, error) {
	return s.findings, nil
}

func TestResearch_Knowledge(t *testing.T) {
	req := testsupport.Request("channels")
	doc := state.New(req, testLimits)
	kn := stubKnowledge{findings: []types.Finding{{ID: "kn-1", Title: "notes", URL: "knowledge://notes.md#0", Source: "knowledge"}}}
	set := NewSet(Deps{Text: testsupport.NewText(), Search: &testsupport.Search{}, Knowledge: kn})

	res, err := set.Research.Apply(context.Background(), doc, testInput(""))
	require.NoError(t, err)
	last := res.Patch.Findings[len(res.Patch.Findings)-1]
	assert.Equal(t, "knowledge", last.Source)
	assert.Equal(t, 1, last.Round)
}

func TestResearch_AllQueriesFail(t *testing.T) {
	doc := state.New(testsupport.Request("channels"), testLimits)
	search := &testsupport.Search{Fail: func(string) bool { return true }}
	set := NewSet(Deps{Text: testsupport.NewText(), Search: search})

	_, err := set.Research.Apply(context.Background(), doc, testInput(""))
	require.Error(t, err)
	assert.True(t, failure.IsTransient(err))
	var unavailable *ports.SearchUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestOutline(t *testing.T) {
	tests := []struct {
		name      string
		req       types.DocumentRequest
		reply     string
		wantCount int
		wantErr   bool
		wantCode  bool
	}{
		{
			name:      "offline plan",
			req:       testsupport.Request("Go channels"),
			wantCount: 2,
			wantCode:  true,
		},
		{
			name:    "too few chapters",
			req:     testsupport.Request("Go channels"),
			reply:   "title: T\nchapters:\n  - title: Only one\n",
			wantErr: true,
		},
		{
			name:      "extra chapters dropped",
			req:       testsupport.Request("Go channels"),
			reply:     "```yaml\ntitle: T\nchapters:\n  - title: A\n    code_blocks: 1\n  - title: B\n  - title: C\n  - title: D\n  - title: E\n  - title: F\n```",
			wantCount: 4,
			wantCode:  true,
		},
		{
			name:      "comparative drops code",
			req:       types.DocumentRequest{Topic: "Go vs Rust", ArticleType: types.ArticleComparative, Length: types.LengthShort},
			reply:     "title: T\nchapters:\n  - title: A\n    code_blocks: 2\n  - title: B\n",
			wantCount: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := testsupport.NewText()
			if tt.reply != "" {
				text.Queue("outline", testsupport.Reply{Text: tt.reply})
			}
			doc := state.New(tt.req, testLimits)
			set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})

			res, err := set.Outline.Apply(context.Background(), doc, testInput(""))
			if tt.wantErr {
				var pe *ports.ProviderError
				require.True(t, errors.As(err, &pe), "got %v", err)
				assert.Equal(t, ports.ProviderMalformed, pe.Kind)
				assert.True(t, failure.IsTransient(err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, res.Patch.Outline)
			chapters := res.Patch.Outline.Chapters
			assert.Len(t, chapters, tt.wantCount)
			assert.Equal(t, "ch-01", chapters[0].ID)
			assert.Equal(t, 40, chapters[0].TargetDepth)
			hasCode := false
			for _, c := range chapters {
				hasCode = hasCode || c.CodeBlocks > 0
			}
			assert.Equal(t, tt.wantCode, hasCode)
			require.NoError(t, doc.Apply(context.Background(), res.Patch))
		})
	}
}

func TestDraft(t *testing.T) {
	doc := newDoc(t, testsupport.Request("Go channels"))
	require.NoError(t, doc.Apply(context.Background(), state.Patch{Findings: []types.Finding{
		{ID: "f-1", Title: "Effective Go", URL: "https://go.dev/doc/effective_go", Snippet: "channel basics"},
	}}))
	text := testsupport.NewText()
	text.Queue("draft", testsupport.Reply{Text: "Channels connect goroutines [1].\n\n<gap><kind>missing_data</kind><question>Buffer default?</question><query>go channel default buffer</query></gap>"})
	set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})

	res, err := set.Draft.Apply(context.Background(), doc, testInput("ch-01"))
	require.NoError(t, err)
	require.NotNil(t, res.Patch.Chapter)
	assert.Equal(t, types.StatusDrafted, res.Patch.Chapter.Status)
	assert.Equal(t, "Channels connect goroutines [1].", *res.Patch.Chapter.Draft)
	require.Len(t, res.Patch.AddGaps, 1)
	assert.True(t, res.Signal.GapDetected)

	prompt := text.Prompts("draft")[0].User
	assert.Contains(t, prompt, "[1] Effective Go")
	assert.Contains(t, prompt, "[CODE: code-<n>")
	assert.Contains(t, prompt, "[IMAGE: flowchart")
	assert.Contains(t, prompt, `The next chapter is "Select"`)
	require.NoError(t, doc.Apply(context.Background(), res.Patch))
}

func TestDraft_RedraftIncludesReviewNotes(t *testing.T) {
	doc := newDoc(t, testsupport.Request("Go channels"))
	setDraft(t, doc, "ch-01", "first attempt")
	score := 40
	ctx := context.Background()
	require.NoError(t, doc.Apply(ctx, state.Patch{Chapter: &state.ChapterUpdate{ID: "ch-01", Status: types.StatusReviewed, Score: &score, ReviewNotes: []string{"explain close"}}}))
	require.NoError(t, doc.Apply(ctx, state.Patch{Chapter: &state.ChapterUpdate{ID: "ch-01", Status: types.StatusRejected, FailedReview: true}}))

	text := testsupport.NewText()
	set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})
	_, err := set.Draft.Apply(ctx, doc, testInput("ch-01"))
	require.NoError(t, err)
	prompt := text.Prompts("draft")[0].User
	assert.Contains(t, prompt, "- explain close")
	assert.Contains(t, prompt, "first attempt")
}

func TestDraft_EmptyIsMalformed(t *testing.T) {
	doc := newDoc(t, testsupport.Request("Go channels"))
	text := testsupport.NewText().Queue("draft", testsupport.Reply{Text: "<gap><question>q</question></gap>"})
	set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})
	_, err := set.Draft.Apply(context.Background(), doc, testInput("ch-01"))
	assert.True(t, failure.IsTransient(err))
}

func TestNeedsExpansion(t *testing.T) {
	spec := types.ChapterSpec{TargetDepth: 10}
	short := types.Chapter{Draft: "too short"}
	long := types.Chapter{Draft: strings.Repeat("word ", 20)}
	tests := []struct {
		name       string
		strictness types.DepthStrictness
		ch         types.Chapter
		want       bool
	}{
		{"shallow never", types.DepthShallow, short, false},
		{"medium short", types.DepthMedium, short, true},
		{"medium long enough", types.DepthMedium, long, false},
		{"deep first pass", types.DepthDeep, long, true},
		{"budget spent", types.DepthDeep, types.Chapter{Draft: "x", ExpansionPasses: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NeedsExpansion(types.LengthProfile{Strictness: tt.strictness}, testLimits, spec, tt.ch)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDepthExpand(t *testing.T) {
	doc := newDoc(t, testsupport.Request("Go channels"))
	setDraft(t, doc, "ch-01", "Channels are typed conduits.")
	text := testsupport.NewText().
		Queue("depth-check", testsupport.Reply{Text: `{"sufficient": false, "depth_score": 40, "vague_points": [{"concept": "buffering", "question": "How big is the buffer?", "query": "go channel buffer size", "kind": "missing_data"}], "split": {"title": "Closing channels", "summary": "close and range"}}`}).
		Queue("depth-expand", testsupport.Reply{Text: "Channels are typed conduits. Buffered channels hold values until a receiver is ready."})
	set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})

	res, err := set.DepthExpand.Apply(context.Background(), doc, testInput("ch-01"))
	require.NoError(t, err)
	u := res.Patch.Chapter
	require.NotNil(t, u)
	assert.Equal(t, types.StatusExpanded, u.Status)
	assert.True(t, u.ExpansionPass)
	assert.True(t, res.Signal.GapDetected)
	assert.False(t, res.Signal.DepthSufficient)
	assert.Equal(t, "go channel buffer size", res.Signal.Gaps[0].Query)
	assert.Equal(t, []string{"ch-01-1"}, res.Signal.Inserted)

	require.NoError(t, doc.Apply(context.Background(), res.Patch))
	outline, _ := doc.Outline()
	assert.Equal(t, []string{"ch-01", "ch-01-1", "ch-02"}, outline.ChapterIDs())
	ch, _ := doc.Chapter("ch-01")
	assert.Equal(t, 1, ch.ExpansionPasses)
}

func TestDepthExpand_Sufficient(t *testing.T) {
	doc := newDoc(t, testsupport.Request("Go channels"))
	setDraft(t, doc, "ch-01", strings.Repeat("word ", 50))
	text := testsupport.NewText()
	set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})

	res, err := set.DepthExpand.Apply(context.Background(), doc, testInput("ch-01"))
	require.NoError(t, err)
	assert.True(t, res.Signal.DepthSufficient)
	assert.True(t, res.Patch.Empty())
	assert.Equal(t, 0, text.Calls("depth-expand"))
}

func TestDepthExpand_PassesSpent(t *testing.T) {
	ctx := context.Background()
	doc := newDoc(t, testsupport.Request("Go channels"))
	setDraft(t, doc, "ch-01", "Channels are typed conduits.")
	for i := 0; i < testLimits.MaxExpansionPasses; i++ {
		require.NoError(t, doc.Apply(ctx, state.Patch{
			Chapter: &state.ChapterUpdate{ID: "ch-01", Status: types.StatusExpanded, ExpansionPass: true},
		}))
	}
	text := testsupport.NewText()
	set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})

	res, err := set.DepthExpand.Apply(ctx, doc, testInput("ch-01"))
	require.NoError(t, err)
	assert.True(t, res.Signal.DepthSufficient)
	assert.True(t, res.Patch.Empty())
	assert.Equal(t, 0, text.Calls(promptDepthCheck))
	assert.Equal(t, 0, text.Calls(StageDepthExpand))
}

func TestSearchCoordinate(t *testing.T) {
	doc := newDoc(t, testsupport.Request("Go channels"))
	ctx := context.Background()
	require.NoError(t, doc.Apply(ctx, state.Patch{AddGaps: []types.KnowledgeGap{
		newGap("ch-01", types.GapMissingData, "buffer size", "go channel buffer"),
		newGap("ch-01", types.GapNoExample, "obscure", "nothing matches this"),
		newGap("ch-02", types.GapMissingData, "other chapter", "select fairness"),
	}}))
	search := &testsupport.Search{Empty: func(q string) bool { return q == "nothing matches this" }}
	set := NewSet(Deps{Text: testsupport.NewText(), Search: search, SearchResults: 2})

	in := testInput("ch-01")
	in.Round = 2
	res, err := set.SearchCoordinate.Apply(ctx, doc, in)
	require.NoError(t, err)
	assert.Len(t, res.Patch.ResolveGaps, 1)
	assert.True(t, res.Signal.GapDetected)
	assert.Equal(t, 2, res.Signal.NewFindings)
	for _, f := range res.Patch.Findings {
		assert.Equal(t, 2, f.Round)
		assert.Equal(t, "ch-01", f.ChapterID)
	}
	assert.NotContains(t, search.Queries(), "select fairness")

	require.NoError(t, doc.Apply(ctx, res.Patch))
	assert.Len(t, doc.Gaps("ch-01"), 1)
}

func TestSearchCoordinate_NoGaps(t *testing.T) {
	doc := newDoc(t, testsupport.Request("Go channels"))
	search := &testsupport.Search{}
	set := NewSet(Deps{Text: testsupport.NewText(), Search: search})
	res, err := set.SearchCoordinate.Apply(context.Background(), doc, testInput("ch-01"))
	require.NoError(t, err)
	assert.True(t, res.Patch.Empty())
	assert.Empty(t, search.Queries())
}

func TestCodeEnrich(t *testing.T) {
	doc := newDoc(t, testsupport.Request("Go channels"))
	setDraft(t, doc, "ch-01", "Intro.\n\n[CODE: code-1 - unbuffered send]\n\n[CODE: code-2 - buffered send]")
	ctx := context.Background()
	require.NoError(t, doc.Apply(ctx, state.Patch{Code: []types.CodeSnippet{{ID: "code-1", ChapterID: "ch-01", Code: "x"}}}))

	text := testsupport.NewText().Queue("code", testsupport.Reply{Text: `{"language": "Go", "code": "ch := make(chan int, 1)", "output": "", "explanation": "buffered"}`})
	set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})
	res, err := set.CodeEnrich.Apply(ctx, doc, testInput("ch-01"))
	require.NoError(t, err)
	require.Len(t, res.Patch.Code, 1)
	assert.Equal(t, "code-2", res.Patch.Code[0].ID)
	assert.Equal(t, "go", res.Patch.Code[0].Language)
	assert.Equal(t, 1, text.Calls("code"))
}

func TestCodeEnrich_SkipsWithoutCode(t *testing.T) {
	req := types.DocumentRequest{Topic: "Go vs Rust", ArticleType: types.ArticleComparative, Length: types.LengthShort}
	doc := state.New(req, testLimits)
	require.NoError(t, doc.Apply(context.Background(), state.Patch{Outline: &types.Outline{Chapters: []types.ChapterSpec{{ID: "ch-01", Title: "A"}, {ID: "ch-02", Title: "B"}}}}))
	setDraft(t, doc, "ch-01", "[CODE: code-1 - sample]")
	text := testsupport.NewText()
	set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})
	res, err := set.CodeEnrich.Apply(context.Background(), doc, testInput("ch-01"))
	require.NoError(t, err)
	assert.True(t, res.Patch.Empty())
	assert.Equal(t, 0, text.Calls("code"))
}

func TestIllustrate(t *testing.T) {
	draft := "[IMAGE: sequence - request flow]\n\n[IMAGE: illustration - a gopher juggling]"
	tests := []struct {
		name      string
		images    *testsupport.Images
		wantKinds []types.IllustrationKind
	}{
		{"with image generator", &testsupport.Images{}, []types.IllustrationKind{types.IllustrationMermaid, types.IllustrationImage}},
		{"diagram fallback", nil, []types.IllustrationKind{types.IllustrationMermaid, types.IllustrationMermaid}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newDoc(t, testsupport.Request("Go channels"))
			setDraft(t, doc, "ch-01", draft)
			deps := Deps{Text: testsupport.NewText(), Search: &testsupport.Search{}}
			if tt.images != nil {
				deps.Images = tt.images
			}
			set := NewSet(deps)
			res, err := set.Illustrate.Apply(context.Background(), doc, testInput("ch-01"))
			require.NoError(t, err)
			require.Len(t, res.Patch.Illustrations, 2)
			for i, ill := range res.Patch.Illustrations {
				assert.Equal(t, tt.wantKinds[i], ill.Kind)
			}
			assert.True(t, strings.HasPrefix(res.Patch.Illustrations[0].Content, "sequenceDiagram"))
		})
	}
}

func TestIllustrate_InvalidMermaid(t *testing.T) {
	doc := newDoc(t, testsupport.Request("Go channels"))
	setDraft(t, doc, "ch-01", "[IMAGE: flowchart - steps]")
	text := testsupport.NewText().Queue("diagram", testsupport.Reply{Text: "Sure! Here is a diagram."})
	set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})
	_, err := set.Illustrate.Apply(context.Background(), doc, testInput("ch-01"))
	var pe *ports.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ports.ProviderMalformed, pe.Kind)
}

func TestReview(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		wantScore int
		wantErr   bool
	}{
		{"passing", `{"score": 88, "issues": ["tighten intro"], "gaps": []}`, 88, false},
		{"with gaps", `{"score": 50, "issues": [], "gaps": [{"kind": "no_example", "description": "needs example", "query": "go select example"}]}`, 50, false},
		{"out of range", `{"score": 140}`, 0, true},
		{"missing score", `{"issues": []}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newDoc(t, testsupport.Request("Go channels"))
			setDraft(t, doc, "ch-01", "Channels [1].")
			text := testsupport.NewText().Queue("review", testsupport.Reply{Text: tt.reply})
			set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})

			res, err := set.Review.Apply(context.Background(), doc, testInput("ch-01"))
			if tt.wantErr {
				assert.True(t, failure.IsTransient(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, res.Signal.Score)
			assert.True(t, res.Signal.Scored)
			u := res.Patch.Chapter
			assert.Equal(t, types.StatusReviewed, u.Status)
			assert.Equal(t, state.DraftHash("Channels [1]."), u.ReviewedHash)
			assert.Contains(t, u.ReviewNotes, "cites findings that do not exist; cite only the numbered findings")
			assert.Equal(t, res.Signal.GapDetected, len(res.Patch.AddGaps) > 0)
			require.NoError(t, doc.Apply(context.Background(), res.Patch))
		})
	}
}

func TestReview_IdempotentOnAccepted(t *testing.T) {
	ctx := context.Background()
	doc := newDoc(t, testsupport.Request("Go channels"))
	setDraft(t, doc, "ch-01", "Final text.")
	text := testsupport.NewText().Queue("review", testsupport.Reply{Text: `{"score": 90}`})
	set := NewSet(Deps{Text: text, Search: &testsupport.Search{}})

	res, err := set.Review.Apply(ctx, doc, testInput("ch-01"))
	require.NoError(t, err)
	require.NoError(t, doc.Apply(ctx, res.Patch))
	require.NoError(t, doc.Apply(ctx, state.Patch{Chapter: &state.ChapterUpdate{ID: "ch-01", Status: types.StatusAccepted}}))
	version := doc.Version()

	again, err := set.Review.Apply(ctx, doc, testInput("ch-01"))
	require.NoError(t, err)
	assert.True(t, again.Patch.Empty())
	assert.Equal(t, 90, again.Signal.Score)
	assert.Equal(t, 1, text.Calls("review"))
	require.NoError(t, doc.Apply(ctx, again.Patch))
	assert.Equal(t, version, doc.Version())
}

func TestAssemble(t *testing.T) {
	ctx := context.Background()
	doc := newDoc(t, testsupport.Request("Go channels"))
	setDraft(t, doc, "ch-01", "Basics text.")
	setDraft(t, doc, "ch-02", "Select text.")
	set := NewSet(Deps{Text: testsupport.NewText(), Search: &testsupport.Search{}})

	res, err := set.Assemble.Apply(ctx, doc, testInput(""))
	require.NoError(t, err)
	require.NotNil(t, res.Patch.Final)
	assert.Equal(t, []string{"ch-01", "ch-02"}, res.Patch.Final.ChapterIDs())
	assert.Equal(t, "run-1", res.Patch.Final.RunID)
}

func TestAssemble_Cover(t *testing.T) {
	tests := []struct {
		name        string
		images      *testsupport.Images
		wantCover   bool
		wantSkipped string
		wantSummary int
	}{
		{name: "cover drawn", images: &testsupport.Images{}, wantCover: true, wantSummary: 1},
		{name: "image failure skips cover", images: &testsupport.Images{Err: errors.New("quota exceeded")}, wantSkipped: "quota exceeded", wantSummary: 1},
		{name: "no image generator"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			doc := newDoc(t, testsupport.Request("Go channels"))
			setDraft(t, doc, "ch-01", "Basics text.")
			setDraft(t, doc, "ch-02", "Select text.")
			text := testsupport.NewText()
			deps := Deps{Text: text, Search: &testsupport.Search{}}
			if tt.images != nil {
				deps.Images = tt.images
			}
			set := NewSet(deps)

			res, err := set.Assemble.Apply(ctx, doc, testInput(""))
			require.NoError(t, err)
			final := res.Patch.Final
			require.NotNil(t, final)
			assert.Equal(t, tt.wantSummary, text.Calls(promptCover))
			if tt.wantSkipped != "" {
				assert.Contains(t, res.Signal.CoverSkipped, tt.wantSkipped)
			} else {
				assert.Empty(t, res.Signal.CoverSkipped)
			}
			if !tt.wantCover {
				assert.Nil(t, final.Cover)
				assert.NotContains(t, final.Markdown, "![")
				return
			}
			require.NotNil(t, final.Cover)
			assert.Equal(t, types.IllustrationImage, final.Cover.Kind)
			assert.Empty(t, final.Cover.ChapterID)
			assert.Equal(t, 1, tt.images.Calls())
			assert.Less(t, strings.Index(final.Markdown, "![Cover image"), strings.Index(final.Markdown, "## Contents"))
		})
	}
}

func TestAssemble_CoverSummaryFallsBack(t *testing.T) {
	doc := newDoc(t, testsupport.Request("Go channels"))
	setDraft(t, doc, "ch-01", "Basics text.")
	setDraft(t, doc, "ch-02", "Select text.")
	text := testsupport.NewText().Queue(promptCover,
		testsupport.Reply{Err: ports.NewProviderError(ports.ProviderQuota, errors.New("quota exceeded"))})
	images := &testsupport.Images{}
	set := NewSet(Deps{Text: text, Search: &testsupport.Search{}, Images: images})

	res, err := set.Assemble.Apply(context.Background(), doc, testInput(""))
	require.NoError(t, err)
	require.NotNil(t, res.Patch.Final.Cover)
	assert.Empty(t, res.Signal.CoverSkipped)
	assert.Equal(t, 1, images.Calls())
}

func TestAssemble_NoOutlineIsFatal(t *testing.T) {
	doc := state.New(testsupport.Request("Go channels"), testLimits)
	set := NewSet(Deps{Text: testsupport.NewText(), Search: &testsupport.Search{}})
	_, err := set.Assemble.Apply(context.Background(), doc, testInput(""))
	assert.True(t, failure.IsFatal(err))
}
