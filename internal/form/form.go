// Package form is the interactive terminal front end for ingestion.
//
// The left pane takes the PDF paths and the splitter settings, the right
// pane the collection settings. Submitting runs the ingestion pipeline and
// prints its status line, or the error, in the output area.
package form

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/ragdocs/internal/config"
	"github.com/fyrsmithlabs/ragdocs/internal/ingest"
)

const paneWidth = 48

// Input positions. The submit button follows the last input.
const (
	fieldFiles = iota
	fieldChunkSize
	fieldChunkOverlap
	fieldCollection
	fieldDescription
	fieldSource
	fieldLanguage
	fieldDocType
	fieldCount
)

const submitIndex = fieldCount

var fieldLabels = [fieldCount]string{
	fieldFiles:        "PDF Files (comma separated)",
	fieldChunkSize:    "Chunk Size",
	fieldChunkOverlap: "Chunk Overlap",
	fieldCollection:   "Collection Name",
	fieldDescription:  "Description",
	fieldSource:       "Source",
	fieldLanguage:     "Language",
	fieldDocType:      "Document Type",
}

// Processor runs one ingestion request.
type Processor interface {
	Process(ctx context.Context, req ingest.Request) (ingest.Status, error)
}

// Model is the bubbletea model of the form.
type Model struct {
	ctx       context.Context
	processor Processor

	inputs  []textinput.Model
	focus   int
	spinner spinner.Model

	running  bool
	output   string
	err      error
	quitting bool
}

type processedMsg struct {
	status ingest.Status
	err    error
}

// NewModel creates a form prefilled from defaults. files, when given, fill
// the file field.
func NewModel(ctx context.Context, processor Processor, defaults config.IngestConfig, files []string) Model {
	values := [fieldCount]string{
		fieldFiles:        strings.Join(files, ", "),
		fieldChunkSize:    strconv.Itoa(defaults.ChunkSize),
		fieldChunkOverlap: strconv.Itoa(defaults.ChunkOverlap),
		fieldCollection:   defaults.Collection,
		fieldDescription:  defaults.Description,
		fieldSource:       defaults.Source,
		fieldLanguage:     defaults.Language,
		fieldDocType:      defaults.DocType,
	}

	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		in := textinput.New()
		in.Prompt = "> "
		in.Width = paneWidth - 6
		in.SetValue(values[i])
		switch i {
		case fieldFiles:
			in.Placeholder = "report.pdf, annex.pdf"
		case fieldChunkSize, fieldChunkOverlap:
			in.CharLimit = 7
			in.Validate = digitsOnly
		}
		inputs[i] = in
	}
	inputs[fieldFiles].Focus()

	return Model{
		ctx:       ctx,
		processor: processor,
		inputs:    inputs,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func digitsOnly(s string) error {
	for _, r := range s {
		if r < '0' || r > '9' {
			return fmt.Errorf("%q is not a digit", r)
		}
	}
	return nil
}

// Init starts the cursor blinking.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles key presses and pipeline results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "tab", "down":
			return m.setFocus(m.focus + 1), nil
		case "shift+tab", "up":
			return m.setFocus(m.focus - 1), nil
		case "ctrl+s":
			return m.submit()
		case "enter":
			if m.focus == submitIndex {
				return m.submit()
			}
			return m.setFocus(m.focus + 1), nil
		}

	case processedMsg:
		m.running = false
		m.err = msg.err
		m.output = ""
		if msg.err == nil {
			m.output = msg.status.String()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.focus < fieldCount {
		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		return m, cmd
	}
	return m, nil
}

// setFocus moves focus to i, wrapping around the inputs and the button.
func (m Model) setFocus(i int) Model {
	n := fieldCount + 1
	m.focus = ((i % n) + n) % n
	for j := range m.inputs {
		if j == m.focus {
			m.inputs[j].Focus()
		} else {
			m.inputs[j].Blur()
		}
	}
	return m
}

// Request builds the ingestion request from the current field values.
func (m Model) Request() (ingest.Request, error) {
	var files []string
	for _, f := range strings.Split(m.inputs[fieldFiles].Value(), ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}

	chunkSize, err := strconv.Atoi(strings.TrimSpace(m.inputs[fieldChunkSize].Value()))
	if err != nil {
		return ingest.Request{}, fmt.Errorf("chunk size must be a whole number")
	}
	chunkOverlap, err := strconv.Atoi(strings.TrimSpace(m.inputs[fieldChunkOverlap].Value()))
	if err != nil {
		return ingest.Request{}, fmt.Errorf("chunk overlap must be a whole number")
	}

	return ingest.Request{
		Files:          files,
		CollectionName: strings.TrimSpace(m.inputs[fieldCollection].Value()),
		Description:    m.inputs[fieldDescription].Value(),
		Source:         m.inputs[fieldSource].Value(),
		Language:       m.inputs[fieldLanguage].Value(),
		DocType:        m.inputs[fieldDocType].Value(),
		ChunkSize:      chunkSize,
		ChunkOverlap:   chunkOverlap,
	}, nil
}

// submit starts the pipeline unless a run is already in progress.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.running {
		return m, nil
	}
	req, err := m.Request()
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		m.output = ""
		m.err = err
		return m, nil
	}

	m.running = true
	m.output = ""
	m.err = nil
	ctx, processor := m.ctx, m.processor
	run := func() tea.Msg {
		status, err := processor.Process(ctx, req)
		return processedMsg{status: status, err: err}
	}
	return m, tea.Batch(run, m.spinner.Tick)
}

// Output returns the last status line, or the last error text.
func (m Model) Output() string {
	if m.err != nil {
		return m.err.Error()
	}
	return m.output
}

// View renders both panes and the output area.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render("File Upload"),
		m.renderField(fieldFiles),
		sectionStyle.Render("Text Splitter Configuration"),
		m.renderField(fieldChunkSize),
		m.renderField(fieldChunkOverlap),
	)

	button := buttonStyle.Render("Process and Add to Vector Store")
	if m.focus == submitIndex {
		button = focusedButtonStyle.Render("Process and Add to Vector Store")
	}
	right := lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render("Collection Configuration"),
		m.renderField(fieldCollection),
		m.renderField(fieldDescription),
		m.renderField(fieldSource),
		m.renderField(fieldLanguage),
		m.renderField(fieldDocType),
		"",
		button,
	)

	var out string
	switch {
	case m.running:
		out = m.spinner.View() + " Processing..."
	case m.err != nil:
		out = errorStyle.Render(m.err.Error())
	case m.output != "":
		out = successStyle.Render(m.output)
	default:
		out = dimStyle.Render("Output will appear here.")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render("PDF Processor"),
		lipgloss.JoinHorizontal(lipgloss.Top, paneStyle.Render(left), paneStyle.Render(right)),
		outputStyle.Render(out),
		footerStyle.Render("[tab/shift+tab] move  [enter] next/submit  [ctrl+s] submit  [esc] quit"),
	) + "\n"
}

func (m Model) renderField(i int) string {
	label := labelStyle.Render(fieldLabels[i])
	if m.focus == i {
		label = focusedLabelStyle.Render(fieldLabels[i])
	}
	return label + "\n" + m.inputs[i].View()
}

// Run shows the form until the user quits or ctx is cancelled.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen()).Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("running form: %w", err)
	}
	return nil
}
