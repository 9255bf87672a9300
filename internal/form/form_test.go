package form

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/ragdocs/internal/config"
	"github.com/fyrsmithlabs/ragdocs/internal/ingest"
)

type fakeProcessor struct {
	calls []ingest.Request
	err   error
}

func (f *fakeProcessor) Process(_ context.Context, req ingest.Request) (ingest.Status, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return ingest.Status{}, f.err
	}
	return ingest.Status{Collection: req.CollectionName, Added: 3}, nil
}

func newTestModel(p Processor, files ...string) Model {
	return NewModel(context.Background(), p, config.Default().Ingest, files)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

// drain executes cmd, expanding batches, and returns the produced messages.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var msgs []tea.Msg
		for _, c := range batch {
			msgs = append(msgs, drain(c)...)
		}
		return msgs
	}
	return []tea.Msg{msg}
}

// submitAndWait presses ctrl+s and feeds the pipeline result back.
func submitAndWait(t *testing.T, m Model) Model {
	t.Helper()
	m, cmd := update(t, m, key("ctrl+s"))
	for _, msg := range drain(cmd) {
		if pm, ok := msg.(processedMsg); ok {
			m, _ = update(t, m, pm)
		}
	}
	return m
}

func TestNewModel_Defaults(t *testing.T) {
	m := newTestModel(&fakeProcessor{}, "a.pdf", "b.pdf")

	req, err := m.Request()
	require.NoError(t, err)
	assert.Equal(t, ingest.Request{
		Files:          []string{"a.pdf", "b.pdf"},
		CollectionName: "khmer_press_release",
		Description:    "This is a collection of Khmer press release documents.",
		Source:         "Khmer Press Release",
		Language:       "English",
		DocType:        "PDF",
		ChunkSize:      500,
		ChunkOverlap:   100,
	}, req)
	assert.Equal(t, fieldFiles, m.focus)
	assert.NotNil(t, m.Init())
}

func TestModel_FocusNavigation(t *testing.T) {
	m := newTestModel(&fakeProcessor{})

	testCases := []struct {
		key  string
		want int
	}{
		{key: "tab", want: fieldChunkSize},
		{key: "enter", want: fieldChunkOverlap},
		{key: "shift+tab", want: fieldChunkSize},
		{key: "shift+tab", want: fieldFiles},
		{key: "shift+tab", want: submitIndex},
		{key: "tab", want: fieldFiles},
	}

	for _, tc := range testCases {
		m, _ = update(t, m, key(tc.key))
		assert.Equal(t, tc.want, m.focus, "after %s", tc.key)
	}
}

func TestModel_TypingEditsFocusedField(t *testing.T) {
	m := newTestModel(&fakeProcessor{})
	m, _ = update(t, m, key("x.pdf"))

	req, err := m.Request()
	require.NoError(t, err)
	assert.Equal(t, []string{"x.pdf"}, req.Files)
}

func TestModel_SubmitSuccess(t *testing.T) {
	p := &fakeProcessor{}
	m := submitAndWait(t, newTestModel(p, "a.pdf"))

	require.Len(t, p.calls, 1)
	assert.Equal(t, "khmer_press_release", p.calls[0].CollectionName)
	assert.False(t, m.running)
	assert.Equal(t, "Successfully added 3 documents to the vector store 'khmer_press_release'.", m.Output())
	assert.Contains(t, m.View(), "Successfully added 3 documents")
}

func TestModel_SubmitWithEnterOnButton(t *testing.T) {
	p := &fakeProcessor{}
	m := newTestModel(p, "a.pdf").setFocus(submitIndex)

	m, cmd := update(t, m, key("enter"))
	assert.True(t, m.running)
	assert.Contains(t, m.View(), "Processing...")

	// A second submit while running is ignored.
	_, again := update(t, m, key("ctrl+s"))
	assert.Nil(t, again)

	for _, msg := range drain(cmd) {
		if pm, ok := msg.(processedMsg); ok {
			m, _ = update(t, m, pm)
		}
	}
	assert.Len(t, p.calls, 1)
	assert.False(t, m.running)
}

func TestModel_SubmitPipelineError(t *testing.T) {
	p := &fakeProcessor{err: errors.New("loading a.pdf: no such file")}
	m := submitAndWait(t, newTestModel(p, "a.pdf"))

	assert.Equal(t, "loading a.pdf: no such file", m.Output())
	assert.Contains(t, m.View(), "no such file")
}

func TestModel_SubmitInvalidInput(t *testing.T) {
	testCases := []struct {
		name    string
		files   []string
		mutate  func(m *Model)
		wantErr string
	}{
		{
			name:    "no files",
			wantErr: "no files to ingest",
		},
		{
			name:    "empty chunk size",
			files:   []string{"a.pdf"},
			mutate:  func(m *Model) { m.inputs[fieldChunkSize].SetValue("") },
			wantErr: "chunk size must be a whole number",
		},
		{
			name:    "overlap not below size",
			files:   []string{"a.pdf"},
			mutate:  func(m *Model) { m.inputs[fieldChunkOverlap].SetValue("500") },
			wantErr: "chunk overlap must be in [0, 500)",
		},
		{
			name:    "empty collection",
			files:   []string{"a.pdf"},
			mutate:  func(m *Model) { m.inputs[fieldCollection].SetValue(" ") },
			wantErr: "collection",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProcessor{}
			m := newTestModel(p, tc.files...)
			if tc.mutate != nil {
				tc.mutate(&m)
			}

			m, cmd := update(t, m, key("ctrl+s"))
			assert.Nil(t, cmd)
			assert.Empty(t, p.calls)
			assert.False(t, m.running)
			assert.Contains(t, strings.ToLower(m.Output()), tc.wantErr)
		})
	}
}

func TestModel_Quit(t *testing.T) {
	m, cmd := update(t, newTestModel(&fakeProcessor{}), key("esc"))
	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())
}

func TestModel_View(t *testing.T) {
	view := newTestModel(&fakeProcessor{}).View()

	for _, want := range []string{
		"File Upload",
		"Text Splitter Configuration",
		"Collection Configuration",
		"Chunk Size",
		"Collection Name",
		"Document Type",
		"Process and Add to Vector Store",
		"Output will appear here.",
	} {
		assert.Contains(t, view, want)
	}
}
