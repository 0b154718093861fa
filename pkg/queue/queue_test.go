package queue

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueueWith(titles ...string) *Queue {
	q := NewWithSource("guild-1", rand.New(rand.NewPCG(1, 2)))
	for _, title := range titles {
		q.Add(NewTrack("https://example.com/"+title, title, "tester", 0))
	}
	return q
}

func titles(tracks []*Track) []string {
	out := make([]string, len(tracks))
	for i, tr := range tracks {
		out[i] = tr.Title
	}
	return out
}

func TestGetNextLoopQueueWraps(t *testing.T) {
	q := newQueueWith("A", "B", "C")
	q.SetLoop(LoopQueue)

	var got []string
	for i := 0; i < 4; i++ {
		next := q.GetNext()
		require.NotNil(t, next)
		got = append(got, next.Title)
	}
	assert.Equal(t, []string{"A", "B", "C", "A"}, got)
}

func TestGetNextLoopTrackRepeats(t *testing.T) {
	q := newQueueWith("A", "B")
	first := q.GetNext()
	require.NotNil(t, first)

	q.SetLoop(LoopTrack)
	for i := 0; i < 5; i++ {
		assert.Same(t, first, q.GetNext())
		assert.Equal(t, 0, q.CurrentIndex())
	}

	q.SetLoop(LoopNone)
	assert.Equal(t, "B", q.GetNext().Title)
}

func TestSkipNextLeavesLoopedTrack(t *testing.T) {
	q := newQueueWith("A", "B")
	q.GetNext()
	q.SetLoop(LoopTrack)

	assert.Equal(t, "B", q.SkipNext().Title)
	assert.Equal(t, "B", q.GetNext().Title, "track loop applies to the new track")
	assert.Nil(t, q.SkipNext())
}

func TestGetNextLoopTrackBeforeStartAdvances(t *testing.T) {
	q := newQueueWith("A")
	q.SetLoop(LoopTrack)

	assert.Equal(t, "A", q.GetNext().Title)
	assert.Equal(t, "A", q.GetNext().Title)
}

func TestGetNextExhausted(t *testing.T) {
	q := newQueueWith("A")
	assert.Equal(t, "A", q.GetNext().Title)
	assert.Nil(t, q.GetNext())
	assert.Equal(t, 0, q.CurrentIndex())
	assert.Equal(t, 1, q.Size())

	q.Add(NewTrack("u", "B", "tester", 0))
	assert.Equal(t, "B", q.GetNext().Title)
}

func TestGetNextEmpty(t *testing.T) {
	q := New("g")
	q.SetLoop(LoopQueue)
	assert.Nil(t, q.GetNext())
	assert.Nil(t, q.GetCurrent())
	assert.Equal(t, -1, q.CurrentIndex())
}

func TestGetQueueIsUnplayedView(t *testing.T) {
	q := newQueueWith("A", "B", "C")
	assert.Equal(t, []string{"A", "B", "C"}, titles(q.GetQueue()))

	q.GetNext()
	assert.Equal(t, []string{"B", "C"}, titles(q.GetQueue()))

	view := q.GetQueue()
	view[0] = nil
	assert.Equal(t, []string{"B", "C"}, titles(q.GetQueue()))
}

func TestRemove(t *testing.T) {
	tests := []struct {
		name        string
		advance     int
		index       int
		wantCurrent string
		wantIndex   int
		wantAll     []string
	}{
		{"after current keeps position", 2, 2, "B", 1, []string{"A", "B", "D"}},
		{"before current shifts back", 2, 0, "B", 0, []string{"B", "C", "D"}},
		{"nothing started", 0, 1, "", -1, []string{"A", "C", "D"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQueueWith("A", "B", "C", "D")
			for i := 0; i < tt.advance; i++ {
				q.GetNext()
			}

			removed, err := q.Remove(tt.index)
			require.NoError(t, err)
			assert.NotNil(t, removed)
			assert.Equal(t, tt.wantAll, titles(q.All()))
			assert.Equal(t, tt.wantIndex, q.CurrentIndex())
			if tt.wantCurrent == "" {
				assert.Nil(t, q.GetCurrent())
			} else {
				assert.Equal(t, tt.wantCurrent, q.GetCurrent().Title)
			}
		})
	}
}

func TestRemoveOutOfRange(t *testing.T) {
	q := newQueueWith("A", "B")
	q.GetNext()

	for _, index := range []int{-1, 2, 100} {
		removed, err := q.Remove(index)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, removed)
	}
	assert.Equal(t, []string{"A", "B"}, titles(q.All()))
	assert.Equal(t, 0, q.CurrentIndex())
}

func TestRemoveLastRemainingTrack(t *testing.T) {
	q := newQueueWith("A")
	q.GetNext()

	_, err := q.Remove(0)
	require.NoError(t, err)
	assert.Equal(t, -1, q.CurrentIndex())
	assert.Nil(t, q.GetCurrent())
}

func TestShuffleKeepsPlayedPrefix(t *testing.T) {
	q := newQueueWith("A", "B", "C", "D", "E", "F")
	q.GetNext()
	q.GetNext()

	for i := 0; i < 50; i++ {
		q.Shuffle()
		all := titles(q.All())
		assert.Equal(t, []string{"A", "B"}, all[:2])
		assert.Equal(t, "B", q.GetCurrent().Title)
		assert.ElementsMatch(t, []string{"C", "D", "E", "F"}, all[2:])
	}
}

func TestShuffleIsUniform(t *testing.T) {
	q := newQueueWith("X", "A", "B", "C")
	q.GetNext()

	const trials = 6000
	counts := make(map[string]int)
	for i := 0; i < trials; i++ {
		q.Shuffle()
		counts[strings.Join(titles(q.GetQueue()), "")]++
	}

	require.Len(t, counts, 6, "every permutation of the suffix should appear")
	expected := trials / 6
	for perm, n := range counts {
		assert.InDelta(t, expected, n, float64(expected)*0.15, "permutation %s", perm)
	}
}

func TestShuffleShortSuffixNoop(t *testing.T) {
	q := newQueueWith("A", "B")
	q.GetNext()
	q.Shuffle()
	assert.Equal(t, []string{"A", "B"}, titles(q.All()))
}

func TestClear(t *testing.T) {
	q := newQueueWith("A", "B")
	q.GetNext()
	q.Clear()

	assert.Equal(t, 0, q.Size())
	assert.Equal(t, -1, q.CurrentIndex())
	assert.Nil(t, q.GetCurrent())
}

func TestParseLoopMode(t *testing.T) {
	tests := []struct {
		in      string
		want    LoopMode
		wantErr bool
	}{
		{"off", LoopNone, false},
		{"Track", LoopTrack, false},
		{"queue", LoopQueue, false},
		{"forever", LoopNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			mode, err := ParseLoopMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, mode)
		})
	}
}
