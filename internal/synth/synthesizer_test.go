package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rschmaelzle/aeneas/internal/audio"
	"github.com/rschmaelzle/aeneas/internal/textfile"
	"github.com/rschmaelzle/aeneas/internal/tts"
)

const testRate = 1000

type fakeEngine struct {
	name    string
	samples map[string]int // text -> sample count at testRate
	langs   map[string]bool
	err     error
	calls   []string
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) IsLanguageSupported(lang string) bool {
	if f.langs == nil {
		return true
	}
	return f.langs[lang]
}

func (f *fakeEngine) Synthesize(_ context.Context, text, _ string) ([]float32, int, error) {
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, 0, f.err
	}
	n, ok := f.samples[text]
	if !ok {
		n = len(text) * 100
	}
	return make([]float32, n), testRate, nil
}

type fakeSink struct {
	appended    int
	appendErr   error
	finalizeErr error
	finalized   bool
	aborted     bool
}

func (s *fakeSink) Append(samples []float32, _ int) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended += len(samples)
	return nil
}

func (s *fakeSink) Finalize() error {
	s.finalized = true
	return s.finalizeErr
}

func (s *fakeSink) Abort() { s.aborted = true }

type fixture struct {
	native *fakeEngine
	pure   *fakeEngine
	sink   *fakeSink
	synth  *Synthesizer
	dest   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		native: &fakeEngine{name: "native", samples: map[string]int{}},
		pure:   &fakeEngine{name: "pure", samples: map[string]int{}},
		sink:   &fakeSink{},
		dest:   filepath.Join(t.TempDir(), "out.wav"),
	}
	s, err := New(f.native, f.pure, WithSinkOpener(func(string) (audio.Sink, error) {
		return f.sink, nil
	}))
	require.NoError(t, err)
	f.synth = s
	return f
}

func (f *fixture) run(src FragmentSource, opts Options) (*Result, error) {
	return f.synth.Synthesize(context.Background(), src, f.dest, opts)
}

func helloWorld() *textfile.TextFile {
	return textfile.New([]textfile.Fragment{
		{ID: "1", Language: "en", Text: "Hello"},
		{ID: "2", Language: "en", Text: ""},
		{ID: "3", Language: "en", Text: "World"},
	})
}

func uniform(n int) *textfile.TextFile {
	frags := make([]textfile.Fragment, n)
	for i := range frags {
		frags[i] = textfile.Fragment{ID: fmt.Sprintf("f%d", i+1), Language: "en", Text: fmt.Sprintf("text-%d", i+1)}
	}
	return textfile.New(frags)
}

func assertGapless(t *testing.T, r *Result) {
	t.Helper()
	var sum time.Duration
	for i, a := range r.Anchors {
		assert.GreaterOrEqual(t, a.Begin, time.Duration(0))
		assert.LessOrEqual(t, a.Begin, a.End)
		if i > 0 {
			assert.Equal(t, r.Anchors[i-1].End, a.Begin, "anchor %d not contiguous", i)
		}
		sum += a.Duration()
	}
	assert.Equal(t, r.TotalDuration, sum)
}

func TestSynthesize_WorkedExample(t *testing.T) {
	f := newFixture(t)
	f.native.samples["Hello"] = 1000
	f.native.samples["World"] = 1200

	r, err := f.run(helloWorld(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []Anchor{
		{FragmentID: "1", Begin: 0, End: time.Second},
		{FragmentID: "2", Begin: time.Second, End: time.Second},
		{FragmentID: "3", Begin: time.Second, End: 2200 * time.Millisecond},
	}, r.Anchors)
	assert.Equal(t, 2200*time.Millisecond, r.TotalDuration)
	assert.False(t, r.EarlyStop)
	assert.Equal(t, 3, r.Fragments)
	assert.Equal(t, 10, r.Characters)
	assert.Equal(t, []string{"Hello", "World"}, f.native.calls, "empty text must not reach the backend")
	assert.Equal(t, 2200, f.sink.appended)
	assert.True(t, f.sink.finalized)
	assertGapless(t, r)
}

func TestSynthesize_GaplessAndConserved(t *testing.T) {
	f := newFixture(t)
	src := textfile.New([]textfile.Fragment{
		{ID: "a", Text: "one"},
		{ID: "b", Text: "three"},
		{ID: "c", Text: ""},
		{ID: "d", Text: "seventeen"},
		{ID: "e", Text: "x"},
	})
	f.native.samples["x"] = 7

	for _, dir := range []Direction{Forward, Backward} {
		r, err := f.run(src, Options{Direction: dir})
		require.NoError(t, err, dir.String())
		assert.Len(t, r.Anchors, 5)
		assertGapless(t, r)
	}
}

func TestSynthesize_QuitAfter(t *testing.T) {
	f := newFixture(t)
	src := uniform(5)
	for _, frag := range src.Fragments() {
		f.native.samples[frag.Text] = testRate
	}

	r, err := f.run(src, Options{QuitAfter: 2500 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, r.EarlyStop)
	assert.Equal(t, 3, r.Fragments)
	require.Len(t, r.Anchors, 3)
	assert.Equal(t, 3*time.Second, r.TotalDuration, "the crossing fragment is kept in full")
	assert.Equal(t, "f3", r.Anchors[2].FragmentID)
	assert.Len(t, f.native.calls, 3)
}

func TestSynthesize_QuitAfterExactBoundary(t *testing.T) {
	f := newFixture(t)
	src := uniform(4)
	for _, frag := range src.Fragments() {
		f.native.samples[frag.Text] = testRate
	}

	r, err := f.run(src, Options{QuitAfter: 2 * time.Second})
	require.NoError(t, err)
	assert.True(t, r.EarlyStop)
	assert.Equal(t, 2, r.Fragments)
}

func TestSynthesize_QuitAfterReachedOnLastFragment(t *testing.T) {
	f := newFixture(t)
	src := uniform(3)
	for _, frag := range src.Fragments() {
		f.native.samples[frag.Text] = testRate
	}

	r, err := f.run(src, Options{QuitAfter: 3 * time.Second})
	require.NoError(t, err)
	assert.False(t, r.EarlyStop, "every fragment was processed")
	assert.Equal(t, 3, r.Fragments)

	r, err = f.run(src, Options{QuitAfter: time.Hour})
	require.NoError(t, err)
	assert.False(t, r.EarlyStop)
}

func TestSynthesize_QuitAfterBackward(t *testing.T) {
	f := newFixture(t)
	src := uniform(5)
	for _, frag := range src.Fragments() {
		f.native.samples[frag.Text] = testRate
	}

	r, err := f.run(src, Options{QuitAfter: 1500 * time.Millisecond, Direction: Backward})
	require.NoError(t, err)
	assert.True(t, r.EarlyStop)
	require.Len(t, r.Anchors, 2)
	assert.Equal(t, "f5", r.Anchors[0].FragmentID)
	assert.Equal(t, "f4", r.Anchors[1].FragmentID)
}

func TestSynthesize_DirectionSymmetry(t *testing.T) {
	f := newFixture(t)
	f.native.samples["A"] = 300
	f.native.samples["B"] = 1700
	f.native.samples["C"] = 900
	src := textfile.New([]textfile.Fragment{
		{ID: "A", Text: "A"},
		{ID: "B", Text: "B"},
		{ID: "C", Text: "C"},
	})

	fwd, err := f.run(src, Options{Direction: Forward})
	require.NoError(t, err)
	bwd, err := f.run(src, Options{Direction: Backward})
	require.NoError(t, err)

	require.Len(t, bwd.Anchors, 3)
	for i, a := range fwd.Anchors {
		b := bwd.Anchors[len(bwd.Anchors)-1-i]
		assert.Equal(t, a.FragmentID, b.FragmentID)
		assert.Equal(t, a.Duration(), b.Duration())
	}
	assert.Equal(t, fwd.TotalDuration, bwd.TotalDuration)
	assert.Equal(t, []string{"C", "B", "A"}, f.native.calls[3:])
}

func TestSynthesize_UnsupportedLanguage(t *testing.T) {
	f := newFixture(t)
	f.native.langs = map[string]bool{"en": true}
	src := textfile.New([]textfile.Fragment{
		{ID: "1", Language: "en", Text: "Hello"},
		{ID: "2", Language: "tlh", Text: "Qapla'"},
	})

	_, err := f.run(src, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)

	var fe *FragmentError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "2", fe.FragmentID)
	assert.Equal(t, "tlh", fe.Language)
	assert.True(t, f.sink.aborted)
	assert.False(t, f.sink.finalized)
}

func TestSynthesize_AllowUnlistedLanguages(t *testing.T) {
	f := newFixture(t)
	f.native.langs = map[string]bool{"en": true}
	src := textfile.New([]textfile.Fragment{{ID: "1", Language: "tlh", Text: "Qapla'"}})

	r, err := f.run(src, Options{AllowUnlistedLanguages: true})
	require.NoError(t, err)
	assert.Len(t, r.Anchors, 1)
	assert.Equal(t, []string{"Qapla'"}, f.native.calls)
}

func TestSynthesize_LanguageGateUsesPureWhenForced(t *testing.T) {
	f := newFixture(t)
	f.native.langs = map[string]bool{}
	f.pure.langs = map[string]bool{"ita": true}
	src := textfile.New([]textfile.Fragment{{ID: "1", Language: "ita", Text: "Ciao"}})

	_, err := f.run(src, Options{})
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)

	r, err := f.run(src, Options{ForcePure: true})
	require.NoError(t, err)
	assert.Len(t, r.Anchors, 1)
	assert.Empty(t, f.native.calls)
	assert.Equal(t, []string{"Ciao"}, f.pure.calls)
}

func TestSynthesize_FallbackOncePerFragment(t *testing.T) {
	f := newFixture(t)
	f.native.err = fmt.Errorf("model missing: %w", tts.ErrBackendUnavailable)
	f.pure.samples["Hello"] = 500
	f.pure.samples["World"] = 700

	r, err := f.run(helloWorld(), Options{AllowFallback: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", "World"}, f.native.calls)
	assert.Equal(t, []string{"Hello", "World"}, f.pure.calls)
	assert.Equal(t, 2, r.FallbackCount)
	assert.Equal(t, 1200*time.Millisecond, r.TotalDuration)
}

func TestSynthesize_FallbackDisabled(t *testing.T) {
	f := newFixture(t)
	f.native.err = fmt.Errorf("model missing: %w", tts.ErrBackendUnavailable)

	_, err := f.run(helloWorld(), Options{})
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.ErrorIs(t, err, tts.ErrBackendUnavailable)
	assert.Empty(t, f.pure.calls)
}

func TestSynthesize_EngineErrorIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.native.err = errors.New("garbled output")

	_, err := f.run(helloWorld(), Options{AllowFallback: true})
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.Empty(t, f.pure.calls)
}

func TestSynthesize_FallbackAlsoFails(t *testing.T) {
	f := newFixture(t)
	f.native.err = fmt.Errorf("offline: %w", tts.ErrBackendUnavailable)
	f.pure.err = errors.New("espeak crashed")

	_, err := f.run(helloWorld(), Options{AllowFallback: true})
	assert.ErrorIs(t, err, ErrSynthesisFailed)

	var fe *FragmentError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "1", fe.FragmentID)
	assert.Len(t, f.pure.calls, 1)
}

func TestSynthesize_NoNativeUsesPure(t *testing.T) {
	pure := &fakeEngine{name: "pure"}
	sink := &fakeSink{}
	s, err := New(nil, pure, WithSinkOpener(func(string) (audio.Sink, error) { return sink, nil }))
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), helloWorld(), filepath.Join(t.TempDir(), "o.wav"), Options{})
	require.NoError(t, err)
	assert.Len(t, pure.calls, 2)
}

func TestSynthesize_InvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(nil, Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	dup := textfile.New([]textfile.Fragment{{ID: "1", Text: "a"}, {ID: "1", Text: "b"}})
	_, err = f.run(dup, Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	noID := textfile.New([]textfile.Fragment{{ID: "", Text: "a"}})
	_, err = f.run(noID, Options{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.run(helloWorld(), Options{QuitAfter: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.run(helloWorld(), Options{Direction: Direction(7)})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, f.native.calls)
	assert.False(t, f.sink.finalized)
}

func TestSynthesize_EmptySource(t *testing.T) {
	f := newFixture(t)
	r, err := f.run(textfile.New(nil), Options{QuitAfter: time.Second})
	require.NoError(t, err)
	assert.Empty(t, r.Anchors)
	assert.Zero(t, r.TotalDuration)
	assert.False(t, r.EarlyStop)
	assert.True(t, f.sink.finalized)
}

func TestSynthesize_DestinationUnwritable(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()

	_, err := f.synth.Synthesize(context.Background(), helloWorld(), filepath.Join(dir, "missing", "out.wav"), Options{})
	assert.ErrorIs(t, err, ErrDestinationUnwritable)

	_, err = f.synth.Synthesize(context.Background(), helloWorld(), dir, Options{})
	assert.ErrorIs(t, err, ErrDestinationUnwritable)

	s, err := New(f.native, f.pure, WithSinkOpener(func(string) (audio.Sink, error) {
		return nil, errors.New("disk full")
	}))
	require.NoError(t, err)
	_, err = s.Synthesize(context.Background(), helloWorld(), filepath.Join(dir, "out.wav"), Options{})
	assert.ErrorIs(t, err, ErrDestinationUnwritable)
	assert.Empty(t, f.native.calls)
}

func TestSynthesize_SinkFailures(t *testing.T) {
	f := newFixture(t)
	f.sink.appendErr = errors.New("short write")
	_, err := f.run(helloWorld(), Options{})
	assert.ErrorIs(t, err, ErrDestinationWriteFailed)
	assert.True(t, f.sink.aborted)

	f = newFixture(t)
	f.sink.finalizeErr = errors.New("close failed")
	_, err = f.run(helloWorld(), Options{})
	assert.ErrorIs(t, err, ErrDestinationWriteFailed)
}

func TestSynthesize_Canceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.synth.Synthesize(ctx, helloWorld(), f.dest, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.native.calls)
	assert.True(t, f.sink.aborted)
}

func TestSynthesize_WritesWAV(t *testing.T) {
	native := &fakeEngine{name: "native", samples: map[string]int{"Hello": 1000, "World": 500}}
	s, err := New(native, &fakeEngine{name: "pure"})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out.wav")
	r, err := s.Synthesize(context.Background(), helloWorld(), dest, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, r.TotalDuration)

	samples, rate, err := audio.ReadWAV(dest)
	require.NoError(t, err)
	assert.Equal(t, testRate, rate)
	assert.Len(t, samples, 1500)
}

func TestNew_RequiresPure(t *testing.T) {
	_, err := New(&fakeEngine{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCanBeWritten(t *testing.T) {
	dir := t.TempDir()

	fresh := filepath.Join(dir, "fresh.wav")
	assert.True(t, CanBeWritten(fresh))
	_, err := os.Stat(fresh)
	assert.True(t, os.IsNotExist(err), "probe must not leave a file behind")

	existing := filepath.Join(dir, "existing.wav")
	require.NoError(t, os.WriteFile(existing, []byte("keep"), 0644))
	assert.True(t, CanBeWritten(existing))
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))

	assert.False(t, CanBeWritten(dir))
	assert.False(t, CanBeWritten(""))
	assert.False(t, CanBeWritten(filepath.Join(dir, "nope", "x.wav")))
}

func TestSamplesDuration(t *testing.T) {
	assert.Equal(t, time.Second, samplesDuration(22050, 22050))
	assert.Equal(t, 500*time.Millisecond, samplesDuration(8000, 16000))
	assert.Equal(t, time.Duration(0), samplesDuration(0, 16000))
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "forward", Forward.String())
	assert.Equal(t, "backward", Backward.String())
	assert.Equal(t, "Direction(9)", Direction(9).String())
}
