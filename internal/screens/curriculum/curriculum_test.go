package curriculum

import (
	"context"
	"fmt"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/profacademy/profacademy/internal/catalog"
	"github.com/profacademy/profacademy/internal/progress"
	"github.com/profacademy/profacademy/internal/router"
	"github.com/profacademy/profacademy/internal/screen"
	"github.com/profacademy/profacademy/internal/screens/lesson"
	"github.com/profacademy/profacademy/internal/store"
)

func newScreen(t *testing.T) (*CurriculumScreen, *progress.Repository) {
	t.Helper()
	s, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cat := catalog.Default()
	repo := progress.NewRepository(s.KVRepo(), zap.NewNop())
	lang, err := cat.Language("python")
	require.NoError(t, err)
	return New(screen.Deps{Catalog: cat, Progress: repo}, lang), repo
}

func key(code rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: code}
}

func TestEntries_LockedCategoriesAreSkipped(t *testing.T) {
	c, _ := newScreen(t)

	require.Equal(t, 0, c.entries[0].moduleID, "free conversation comes first")
	for range 20 {
		c.Update(key(tea.KeyDown))
	}
	last := c.entries[c.cursor]
	assert.Equal(t, 4, last.moduleID, "cursor stops at the last unlocked module")
	assert.Contains(t, c.View(100, 40), "gesperrt")
}

func TestEnter_PushesLesson(t *testing.T) {
	c, _ := newScreen(t)

	_, cmd := c.Update(key(tea.KeyEnter))
	require.NotNil(t, cmd)
	push, ok := cmd().(router.PushScreenMsg)
	require.True(t, ok)
	assert.IsType(t, &lesson.LessonScreen{}, push.Screen)

	c.Update(key(tea.KeyDown))
	_, cmd = c.Update(key(tea.KeyEnter))
	require.NotNil(t, cmd)
	push = cmd().(router.PushScreenMsg)
	assert.Equal(t, "Prof. Python", push.Screen.Title(), "the module title shows once the lesson has started")
}

func TestInit_ReloadsProgress(t *testing.T) {
	c, repo := newScreen(t)
	ctx := context.Background()
	lang := c.lang

	_, err := repo.Update(ctx, func(l progress.Ledger) {
		l.EnsureLanguage(lang.Key, lang.CategoryNames())
		l.Complete(lang.Key, 1, "Grundlagen")
		l[lang.Key].Categories["Grundlagen"].Level = progress.MaxLevel
	})
	require.NoError(t, err)
	c.Init()

	assert.True(t, c.entries[1].completed)
	for _, e := range c.entries {
		if e.category == 1 {
			assert.False(t, e.locked, "second category opens once the first is mastered")
		}
		if e.category == 2 {
			assert.True(t, e.locked)
		}
	}
	view := c.View(100, 40)
	assert.Contains(t, view, "✓")
	assert.Contains(t, view, "Lv MAX")
}
